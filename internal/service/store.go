// Package service implements the request-serving core: the security state
// machine, audit log, rate tracker and the resolver engine behind the GraphQL
// schema. Persistence is delegated to a Store.
package service

import (
	"context"
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
)

// Queries is the set of persistence operations available both on the store
// and inside a transaction. Lookups return (nil, nil) when nothing matches.
type Queries interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByCredentials matches username and the stored password value
	// verbatim.
	UserByCredentials(ctx context.Context, username, password string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// CreateUser inserts u and sets its ID.
	CreateUser(ctx context.Context, u *models.User) error
	// EnsureUser returns the user with the given name, creating a bare
	// account if it does not exist.
	EnsureUser(ctx context.Context, username string, at time.Time) (*models.User, error)

	// RecordLoginFailure increments the failure counter and, once it reaches
	// threshold, sets locked_until. It returns the updated counter and lock.
	RecordLoginFailure(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, *time.Time, error)
	// RecordLoginSuccess clears the failure counter and lock and stamps
	// last_login.
	RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error
	// TouchRequest restarts the request counter at 1 when the last request
	// is older than windowStart, otherwise increments it, and stamps
	// last_request. It returns the new counter.
	TouchRequest(ctx context.Context, userID int64, at, windowStart time.Time) (int, error)
	CreateLoginAttempt(ctx context.Context, a *models.LoginAttempt) error

	CreateSession(ctx context.Context, s *models.Session) error
	SessionByToken(ctx context.Context, token string) (*models.Session, error)
	// RevokeSession flags an unrevoked session and reports whether one was
	// changed.
	RevokeSession(ctx context.Context, token string) (bool, error)

	CreatePaste(ctx context.Context, p *models.Paste) error
	UpdatePaste(ctx context.Context, p *models.Paste) error
	DeletePaste(ctx context.Context, id int64) (bool, error)
	PasteByID(ctx context.Context, id int64) (*models.Paste, error)
	// PasteByIDForUpdate is PasteByID that also locks the row until the
	// surrounding transaction ends.
	PasteByIDForUpdate(ctx context.Context, id int64) (*models.Paste, error)
	PasteByTitle(ctx context.Context, title string) (*models.Paste, error)
	ListPastes(ctx context.Context, f models.PasteFilter) ([]models.Paste, error)
	CreatePasteVersion(ctx context.Context, v *models.PasteVersion) error
	PasteVersions(ctx context.Context, pasteID int64) ([]models.PasteVersion, error)

	CreateAudit(ctx context.Context, a *models.Audit) error
	ListAudits(ctx context.Context, limit int) ([]models.Audit, error)

	// ServerMode returns the singleton row or nil when absent.
	ServerMode(ctx context.Context) (*models.ServerMode, error)
	// UpsertServerMode creates the singleton with defaults or updates its
	// mode in place.
	UpsertServerMode(ctx context.Context, mode string, at time.Time) (*models.ServerMode, error)
}

// Store is the persistence gateway.
type Store interface {
	Queries
	// Atomic runs fn in a transaction. A non-nil return rolls back every
	// write made through q.
	Atomic(ctx context.Context, fn func(q Queries) error) error
	// Ping is a trivial liveness query.
	Ping(ctx context.Context) error
}

// Cleanup describes a retention pass over stored data.
type Cleanup struct {
	Now time.Time
	// Retention is the age past which audits and login attempts are purged.
	Retention time.Duration
	// RateWindow is the request window; counters idle for longer are reset.
	RateWindow time.Duration
}

// CleanupReport counts rows touched by a cleanup pass.
type CleanupReport struct {
	Sessions      int64
	Pastes        int64
	Audits        int64
	LoginAttempts int64
	RateCounters  int64
}

// Cleaner removes expired and aged data.
type Cleaner interface {
	Cleanup(ctx context.Context, c Cleanup) (CleanupReport, error)
}
