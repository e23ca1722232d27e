package service

import (
	"context"
	"time"

	"github.com/atinyakov/GraphPaste/internal/broadcast"
	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/metrics"
	"github.com/atinyakov/GraphPaste/internal/models"
	"go.uber.org/zap"
)

// Resolver implements the operations of the GraphQL schema. Field
// resolution beyond these entry points performs no authorization.
type Resolver struct {
	store   Store
	auth    *AuthService
	tokens  *TokenService
	audit   *AuditLog
	rate    *RateTracker
	broker  *broadcast.Broker[models.Paste]
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewResolver wires the engine. The broker is owned by the caller.
func NewResolver(
	store Store,
	auth *AuthService,
	tokens *TokenService,
	audit *AuditLog,
	rate *RateTracker,
	broker *broadcast.Broker[models.Paste],
	log *zap.Logger,
	opts ...Option,
) *Resolver {
	o := applyOptions(opts)
	return &Resolver{
		store:   store,
		auth:    auth,
		tokens:  tokens,
		audit:   audit,
		rate:    rate,
		broker:  broker,
		log:     log,
		metrics: o.metrics,
		now:     o.now,
	}
}

// Admit identifies the caller in ctx from its token and counts the request
// against its rate limit.
func (r *Resolver) Admit(ctx context.Context) error {
	caller := CallerFrom(ctx)
	user, err := r.auth.Identify(ctx, caller.Token)
	if err != nil {
		return err
	}
	caller.User = user
	return r.rate.Admit(ctx, user)
}

// Health pings the store.
func (r *Resolver) Health(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Users lists every account.
func (r *Resolver) Users(ctx context.Context) ([]models.User, error) {
	users, err := r.store.ListUsers(ctx)
	return users, apperr.Persistence(err)
}

// User returns one account or nil.
func (r *Resolver) User(ctx context.Context, id int64) (*models.User, error) {
	user, err := r.store.UserByID(ctx, id)
	return user, apperr.Persistence(err)
}

// Me returns the account behind the caller's credentials.
func (r *Resolver) Me(ctx context.Context) (*models.User, error) {
	caller := CallerFrom(ctx)
	if caller.User == nil && caller.Token != "" {
		user, err := r.auth.Identify(ctx, caller.Token)
		if err != nil {
			return nil, err
		}
		caller.User = user
	}
	if caller.User == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	return caller.User, nil
}

// Pastes lists pastes newest first.
func (r *Resolver) Pastes(ctx context.Context, f PastesFilter) ([]models.Paste, error) {
	filter := models.PasteFilter{Public: f.Public}
	if f.Limit > 0 {
		filter.Limit = f.Limit
	}
	pastes, err := r.store.ListPastes(ctx, filter)
	return pastes, apperr.Persistence(err)
}

// Paste looks a paste up by id, falling back to title. Nothing found is not
// an error.
func (r *Resolver) Paste(ctx context.Context, l PasteLookup) (*models.Paste, error) {
	var (
		paste *models.Paste
		err   error
	)
	switch {
	case l.ID > 0:
		paste, err = r.store.PasteByID(ctx, l.ID)
	case l.Title != "":
		paste, err = r.store.PasteByTitle(ctx, l.Title)
	}
	return paste, apperr.Persistence(err)
}

// PasteVersions lists the content history of a paste.
func (r *Resolver) PasteVersions(ctx context.Context, pasteID int64) ([]models.PasteVersion, error) {
	versions, err := r.store.PasteVersions(ctx, pasteID)
	return versions, apperr.Persistence(err)
}

func (r *Resolver) Audits(ctx context.Context, limit int) ([]models.Audit, error) {
	audits, err := r.store.ListAudits(ctx, limit)
	return audits, apperr.Persistence(err)
}

func (r *Resolver) ServerMode(ctx context.Context) (*models.ServerMode, error) {
	return r.auth.Mode(ctx)
}

// CreateUser registers an account. Uniqueness is left to storage.
func (r *Resolver) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    r.now(),
	}
	err = r.store.Atomic(ctx, func(q Queries) error {
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		return r.audit.Record(ctx, q, Event{Action: models.ActionCreateUser, UserID: &user.ID})
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	r.log.Info("user created", zap.String("username", user.Username))
	return user, nil
}

// CreatePaste stores a paste with its first version and audit record in
// one transaction, then notifies pasteCreated subscribers.
func (r *Resolver) CreatePaste(ctx context.Context, in CreatePasteInput) (*models.Paste, error) {
	caller := CallerFrom(ctx)
	now := r.now()
	paste := &models.Paste{
		Title:     in.Title,
		Public:    in.Public,
		Burn:      in.Burn,
		CreatedAt: now,
		Language:  in.Language,
		Metadata:  in.Metadata,
		UserID:    caller.userID(),
		IPAddress: caller.IPAddress,
		UserAgent: caller.UserAgent,
	}
	paste.SetContent(in.Content)
	if in.ExpiresIn > 0 {
		expires := now.Add(in.ExpiresIn)
		paste.ExpiresAt = &expires
	}

	err := r.store.Atomic(ctx, func(q Queries) error {
		owner, err := q.EnsureUser(ctx, models.DefaultOwner, now)
		if err != nil {
			return err
		}
		paste.OwnerID = &owner.ID
		return r.insertPaste(ctx, q, paste)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	r.publish(*paste)
	return paste, nil
}

// insertPaste writes paste as version 1 together with its snapshot and the
// create audit row.
func (r *Resolver) insertPaste(ctx context.Context, q Queries, paste *models.Paste) error {
	paste.Version = 1
	if err := q.CreatePaste(ctx, paste); err != nil {
		return err
	}
	version := &models.PasteVersion{
		PasteID:   paste.ID,
		Content:   paste.Content,
		Version:   paste.Version,
		CreatedAt: paste.CreatedAt,
	}
	if err := q.CreatePasteVersion(ctx, version); err != nil {
		return err
	}
	return r.audit.Record(ctx, q, Event{Action: models.ActionCreate, PasteID: &paste.ID})
}

func (r *Resolver) publish(paste models.Paste) {
	if r.broker == nil {
		return
	}
	delivered := r.broker.Publish(paste)
	r.metrics.Published()
	r.log.Debug("paste published", zap.Int64("paste_id", paste.ID), zap.Int("subscribers", delivered))
}

// UpdatePaste edits a paste. A content change bumps the version by one and
// records a snapshot. There is no ownership check.
func (r *Resolver) UpdatePaste(ctx context.Context, in UpdatePasteInput) (*models.Paste, error) {
	var paste *models.Paste
	err := r.store.Atomic(ctx, func(q Queries) error {
		var err error
		if paste, err = q.PasteByIDForUpdate(ctx, in.ID); err != nil {
			return err
		}
		if paste == nil {
			return apperr.ErrNotFound
		}
		if in.Title != nil {
			paste.Title = *in.Title
		}
		if in.Content != nil && *in.Content != paste.Content {
			paste.SetContent(*in.Content)
			paste.Version++
			version := &models.PasteVersion{
				PasteID:   paste.ID,
				Content:   paste.Content,
				Version:   paste.Version,
				CreatedAt: r.now(),
			}
			if err := q.CreatePasteVersion(ctx, version); err != nil {
				return err
			}
		}
		if err := q.UpdatePaste(ctx, paste); err != nil {
			return err
		}
		return r.audit.Record(ctx, q, Event{Action: models.ActionUpdate, PasteID: &paste.ID})
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return paste, nil
}

// DeletePaste removes a paste and its versions after auditing the action.
func (r *Resolver) DeletePaste(ctx context.Context, id int64) (bool, error) {
	err := r.store.Atomic(ctx, func(q Queries) error {
		paste, err := q.PasteByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if paste == nil {
			return apperr.ErrNotFound
		}
		ev := Event{Action: models.ActionDelete, PasteID: &paste.ID, Severity: models.SeverityWarning}
		if err := r.audit.Record(ctx, q, ev); err != nil {
			return err
		}
		_, err = q.DeletePaste(ctx, id)
		return err
	})
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return true, nil
}

// Login compares the submitted password with the stored value verbatim and
// issues a token pair on a match. Failures are not counted.
func (r *Resolver) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	user, err := r.store.UserByCredentials(ctx, in.Username, in.Password)
	if err != nil {
		return TokenPair{}, apperr.Persistence(err)
	}
	if user == nil {
		return TokenPair{}, apperr.ErrAuthenticationFailed
	}
	return r.tokens.Generate(user.Username)
}

// Authenticate runs the lockout-protected login for the caller.
func (r *Resolver) Authenticate(ctx context.Context, in LoginInput) (*AuthResult, error) {
	caller := CallerFrom(ctx)
	return r.auth.Authenticate(ctx, AuthenticateInput{
		Username:  in.Username,
		Password:  in.Password,
		IPAddress: caller.IPAddress,
		UserAgent: caller.UserAgent,
	})
}

// Logout revokes the caller's session token.
func (r *Resolver) Logout(ctx context.Context) (bool, error) {
	caller := CallerFrom(ctx)
	if caller.Token == "" {
		return false, apperr.ErrNotAuthenticated
	}
	return r.auth.Revoke(ctx, caller.Token)
}

// SetDifficulty switches the server mode. It is open to anyone.
func (r *Resolver) SetDifficulty(ctx context.Context, mode string) (*models.ServerMode, error) {
	return r.auth.SetDifficulty(ctx, mode, CallerFrom(ctx).User)
}

// SubscribePasteCreated streams pastes created from now on until ctx is
// done. The channel is closed after cancellation or broker shutdown, and
// right away when the resolver has no broker.
func (r *Resolver) SubscribePasteCreated(ctx context.Context) <-chan models.Paste {
	if r.broker == nil {
		closed := make(chan models.Paste)
		close(closed)
		return closed
	}
	listener := r.broker.Subscribe()
	r.metrics.Subscribers(r.broker.Len())

	go func() {
		<-ctx.Done()
		r.broker.Unsubscribe(listener)
		r.metrics.Subscribers(r.broker.Len())
	}()
	return listener.C
}
