package service

import (
	"context"
	"fmt"

	"github.com/atinyakov/GraphPaste/internal/models"
	"go.uber.org/zap"
)

// Sample data created when BootstrapOptions.SeedTestData is set.
const (
	TestUsername = "test_user"
	TestPassword = "test_password"
)

var testPastes = []struct {
	title, content string
	public, burn   bool
}{
	{"Public Test Paste", "This is a public test paste", true, false},
	{"Private Test Paste", "This is a private test paste", false, false},
	{"Burn After Reading", "This paste will be deleted after reading", false, true},
}

// Bootstrap prepares the store at startup: it creates the administrator
// when missing, applies the initial difficulty unless a mode is already
// stored, and optionally seeds sample data. It is safe to run on every start.
func (r *Resolver) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	if _, err := r.ensureAccount(ctx, opts.AdminUsername, opts.AdminPassword, true); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	mode := opts.InitialMode
	if mode == "" {
		mode = models.ModeEasy
	}
	if !models.ValidMode(mode) {
		return fmt.Errorf("initial mode %q: must be easy or hard", mode)
	}
	current, err := r.store.ServerMode(ctx)
	if err != nil {
		return fmt.Errorf("load server mode: %w", err)
	}
	if current == nil {
		if _, err := r.store.UpsertServerMode(ctx, mode, r.now()); err != nil {
			return fmt.Errorf("apply initial mode: %w", err)
		}
		r.log.Info("server mode applied", zap.String("mode", mode))
	} else {
		r.log.Info("server mode kept", zap.String("mode", current.Mode))
	}

	if opts.SeedTestData {
		if err := r.seedTestData(ctx); err != nil {
			return fmt.Errorf("seed test data: %w", err)
		}
	}
	return nil
}

// ensureAccount creates the account unless one with that username exists.
// It returns nil when the account was already there.
func (r *Resolver) ensureAccount(ctx context.Context, username, password string, admin bool) (*models.User, error) {
	existing, err := r.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      admin,
		CreatedAt:    r.now(),
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	r.log.Info("account seeded", zap.String("username", username), zap.Bool("admin", admin))
	return user, nil
}

func (r *Resolver) seedTestData(ctx context.Context) error {
	user, err := r.ensureAccount(ctx, TestUsername, TestPassword, false)
	if err != nil || user == nil {
		return err
	}
	return r.store.Atomic(ctx, func(q Queries) error {
		for _, tp := range testPastes {
			paste := &models.Paste{
				Title:     tp.title,
				Public:    tp.public,
				Burn:      tp.burn,
				CreatedAt: r.now(),
				OwnerID:   &user.ID,
				UserID:    &user.ID,
			}
			paste.SetContent(tp.content)
			if err := r.insertPaste(ctx, q, paste); err != nil {
				return err
			}
		}
		return nil
	})
}
