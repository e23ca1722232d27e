package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
)

const userColumns = `id, username, email, password_hash, is_admin, created_at, last_login,
	failed_login_attempts, locked_until, reset_token, reset_token_expires, last_request, request_count`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.LastLogin,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.ResetToken, &u.ResetTokenExpires, &u.LastRequest, &u.RequestCount,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *Queries) userBy(ctx context.Context, op, where string, args ...any) (*models.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// UserByID returns the user with the given id or nil.
func (q *Queries) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return q.userBy(ctx, "UserByID", `id = $1`, id)
}

// UserByUsername returns the user with the given name or nil.
func (q *Queries) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return q.userBy(ctx, "UserByUsername", `username = $1`, username)
}

// UserByCredentials looks a user up by username and the raw stored
// password value. No hashing is involved.
func (q *Queries) UserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	return q.userBy(ctx, "UserByCredentials", `username = $1 AND password_hash = $2`, username, password)
}

// ListUsers returns every user ordered by id.
func (q *Queries) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, wrap("ListUsers", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListUsers", err)
	}
	return users, nil
}

// CreateUser inserts u and fills in its generated id. A taken username
// yields ErrConflict.
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return wrap("CreateUser", err)
	}
	return nil
}

// EnsureUser returns the named user, creating a bare account first when it
// does not exist yet.
func (q *Queries) EnsureUser(ctx context.Context, username string, at time.Time) (*models.User, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES ($1, '', '', $2)
		ON CONFLICT (username) DO NOTHING
	`, username, at)
	if err != nil {
		return nil, wrap("EnsureUser", err)
	}
	u, err := q.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("EnsureUser: user %q missing after insert", username)
	}
	return u, nil
}

// RecordLoginFailure increments the failure counter in a single statement
// and sets locked_until once the counter reaches threshold.
func (q *Queries) RecordLoginFailure(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		attempts int
		locked   *time.Time
	)
	err := q.db.QueryRowContext(ctx, `
		UPDATE users
		   SET failed_login_attempts = failed_login_attempts + 1,
		       locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		 WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`, userID, threshold, lockUntil).Scan(&attempts, &locked)
	if err != nil {
		return 0, nil, wrap("RecordLoginFailure", err)
	}
	return attempts, locked, nil
}

// RecordLoginSuccess clears the failure counter and lock.
func (q *Queries) RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login = $2 WHERE id = $1
	`, userID, at)
	if err != nil {
		return wrap("RecordLoginSuccess", err)
	}
	return nil
}

// TouchRequest advances the per-user request window. It returns 0 when the
// user does not exist.
func (q *Queries) TouchRequest(ctx context.Context, userID int64, at, windowStart time.Time) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		UPDATE users
		   SET request_count = CASE WHEN last_request IS NULL OR last_request < $3 THEN 1 ELSE request_count + 1 END,
		       last_request = $2
		 WHERE id = $1
		RETURNING request_count
	`, userID, at, windowStart).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("TouchRequest", err)
	}
	return count, nil
}

// CreateLoginAttempt appends a login attempt record.
func (q *Queries) CreateLoginAttempt(ctx context.Context, a *models.LoginAttempt) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO login_attempts (user_id, success, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.UserID, a.Success, a.IPAddress, a.UserAgent, a.Timestamp).Scan(&a.ID)
	if err != nil {
		return wrap("CreateLoginAttempt", err)
	}
	return nil
}

// CreateSession stores a new session.
func (q *Queries) CreateSession(ctx context.Context, s *models.Session) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO user_sessions (user_id, token, ip_address, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.UserID, s.Token, s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt).Scan(&s.ID)
	if err != nil {
		return wrap("CreateSession", err)
	}
	return nil
}

// SessionByToken returns the session with the given token or nil.
func (q *Queries) SessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var s models.Session
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, ip_address, user_agent, created_at, expires_at, revoked
		  FROM user_sessions WHERE token = $1
	`, token).Scan(&s.ID, &s.UserID, &s.Token, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt, &s.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("SessionByToken", err)
	}
	return &s, nil
}

// RevokeSession marks an unrevoked session as revoked.
func (q *Queries) RevokeSession(ctx context.Context, token string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE user_sessions SET revoked = TRUE WHERE token = $1 AND revoked = FALSE
	`, token)
	if err != nil {
		return false, wrap("RevokeSession", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("RevokeSession", err)
	}
	return n > 0, nil
}
