package service

import (
	"context"
	"sync"
	"time"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/metrics"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Capability is something a credential may allow.
type Capability int

const (
	CapabilityAuthenticated Capability = iota
	CapabilityAdmin
)

// AuthenticateInput carries the credentials and origin of a login.
type AuthenticateInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// AuthResult is returned by a successful Authenticate.
type AuthResult struct {
	Session      *models.Session
	AccessToken  string
	RefreshToken string
}

// AuthService is the security state machine: credential checks with
// lockout, sessions and the server difficulty mode.
type AuthService struct {
	store      Store
	tokens     *TokenService
	audit      *AuditLog
	sessionTTL time.Duration
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	locks keyedMutex
}

// NewAuthService constructs an AuthService. Sessions live for sessionTTL.
func NewAuthService(store Store, tokens *TokenService, audit *AuditLog, sessionTTL time.Duration, log *zap.Logger, opts ...Option) *AuthService {
	o := applyOptions(opts)
	return &AuthService{
		store:      store,
		tokens:     tokens,
		audit:      audit,
		sessionTTL: sessionTTL,
		log:        log,
		metrics:    o.metrics,
		now:        o.now,
	}
}

// Authenticate checks a password against the stored bcrypt hash. Five
// consecutive failures lock the account for LockoutDuration; while locked
// every attempt fails with ErrAccountLocked. Every call is recorded as a
// login attempt. Calls for the same username are serialised.
func (s *AuthService) Authenticate(ctx context.Context, in AuthenticateInput) (*AuthResult, error) {
	unlock := s.locks.Lock(in.Username)
	defer unlock()

	now := s.now()
	attempt := &models.LoginAttempt{
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Timestamp: now,
	}

	user, err := s.store.UserByUsername(ctx, in.Username)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if user == nil {
		if err := s.store.CreateLoginAttempt(ctx, attempt); err != nil {
			return nil, apperr.Persistence(err)
		}
		s.metrics.Login(metrics.LoginUnknown)
		return nil, apperr.ErrInvalidCredentials
	}
	attempt.UserID = &user.ID

	if user.Locked(now) {
		if err := s.store.CreateLoginAttempt(ctx, attempt); err != nil {
			return nil, apperr.Persistence(err)
		}
		s.metrics.Login(metrics.LoginLocked)
		s.log.Info("login rejected for locked account",
			zap.String("username", user.Username),
			zap.Timep("locked_until", user.LockedUntil),
		)
		return nil, apperr.ErrAccountLocked
	}

	if !CheckPassword(user.PasswordHash, in.Password) {
		return nil, s.recordFailure(ctx, user, attempt, now)
	}

	tokens, err := s.tokens.Generate(user.Username)
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	attempt.Success = true

	err = s.store.Atomic(ctx, func(q Queries) error {
		if err := q.RecordLoginSuccess(ctx, user.ID, now); err != nil {
			return err
		}
		if err := q.CreateSession(ctx, session); err != nil {
			return err
		}
		if err := q.CreateLoginAttempt(ctx, attempt); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, Event{Action: models.ActionLogin, UserID: &user.ID})
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	s.metrics.Login(metrics.LoginSuccess)
	s.log.Info("user authenticated", zap.String("username", user.Username), zap.String("ip", in.IPAddress))
	return &AuthResult{
		Session:      session,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, user *models.User, attempt *models.LoginAttempt, now time.Time) error {
	var attempts int
	err := s.store.Atomic(ctx, func(q Queries) error {
		var err error
		attempts, _, err = q.RecordLoginFailure(ctx, user.ID, models.MaxFailedLogins, now.Add(models.LockoutDuration))
		if err != nil {
			return err
		}
		return q.CreateLoginAttempt(ctx, attempt)
	})
	if err != nil {
		return apperr.Persistence(err)
	}

	s.metrics.Login(metrics.LoginFailure)
	if attempts >= models.MaxFailedLogins {
		s.metrics.Lockout()
		s.log.Warn("account locked",
			zap.String("username", user.Username),
			zap.Int("failed_attempts", attempts),
			zap.String("ip", attempt.IPAddress),
		)
	}
	return apperr.ErrInvalidCredentials
}

// Identify resolves the user behind a JWT access token or an active
// session token. It returns nil when the token identifies nobody.
func (s *AuthService) Identify(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	if claims, err := s.tokens.VerifyAccessToken(token); err == nil {
		user, err := s.store.UserByUsername(ctx, claims.Subject)
		if err != nil {
			return nil, apperr.Persistence(err)
		}
		return user, nil
	}

	session, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if session == nil || !session.Active(s.now()) {
		return nil, nil
	}
	user, err := s.store.UserByID(ctx, session.UserID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return user, nil
}

// Authorize reports whether token grants the capability.
func (s *AuthService) Authorize(ctx context.Context, token string, capability Capability) (bool, error) {
	user, err := s.Identify(ctx, token)
	if err != nil || user == nil {
		return false, err
	}
	switch capability {
	case CapabilityAdmin:
		return user.IsAdmin, nil
	default:
		return true, nil
	}
}

// Revoke moves an active session to the revoked state. It reports false
// when the token is unknown or already revoked.
func (s *AuthService) Revoke(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := s.store.Atomic(ctx, func(q Queries) error {
		session, err := q.SessionByToken(ctx, token)
		if err != nil || session == nil {
			return err
		}
		if revoked, err = q.RevokeSession(ctx, token); err != nil || !revoked {
			return err
		}
		return s.audit.Record(ctx, q, Event{Action: models.ActionLogout, UserID: &session.UserID})
	})
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return revoked, nil
}

// Mode returns the server settings, falling back to the defaults when the
// singleton has not been created yet.
func (s *AuthService) Mode(ctx context.Context) (*models.ServerMode, error) {
	mode, err := s.store.ServerMode(ctx)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if mode == nil {
		def := models.DefaultServerMode()
		return &def, nil
	}
	return mode, nil
}

// SetDifficulty switches the server mode. actor may be nil.
func (s *AuthService) SetDifficulty(ctx context.Context, mode string, actor *models.User) (*models.ServerMode, error) {
	if !models.ValidMode(mode) {
		return nil, apperr.ErrInvalidMode
	}

	var ev Event
	if actor != nil {
		ev.UserID = &actor.ID
	}
	ev.Action = models.ActionSetMode
	ev.Severity = models.SeverityWarning

	var updated *models.ServerMode
	err := s.store.Atomic(ctx, func(q Queries) error {
		var err error
		if updated, err = q.UpsertServerMode(ctx, mode, s.now()); err != nil {
			return err
		}
		return s.audit.Record(ctx, q, ev)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	s.log.Info("difficulty changed", zap.String("mode", mode), zap.String("ip", CallerFrom(ctx).IPAddress))
	return updated, nil
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
