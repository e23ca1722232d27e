// Package models defines the core data structures for users, sessions,
// pastes and the security bookkeeping around them.
package models

import (
	"time"
)

// Difficulty modes.
const (
	ModeEasy = "easy"
	ModeHard = "hard"
)

// Operation kinds recorded on audit rows.
const (
	OperationQuery        = "query"
	OperationMutation     = "mutation"
	OperationSubscription = "subscription"
)

// Audit severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Audit actions.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionCreateUser = "create_user"
	ActionLogin      = "login"
	ActionLogout     = "logout"
	ActionSetMode    = "set_mode"
)

// Lockout policy.
const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

// User represents an application account together with its lockout and
// rate counters.
type User struct {
	// ID is the unique identifier for the user.
	ID int64 `json:"id"`
	// Username is the login name, unique across users.
	Username string `json:"username"`
	// Email is the address supplied at signup.
	Email string `json:"email"`
	// PasswordHash is the stored credential. It is never serialised.
	PasswordHash string `json:"-"`
	// IsAdmin marks administrative accounts.
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`

	LastLogin           *time.Time `json:"last_login,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	ResetToken          *string    `json:"reset_token,omitempty"`
	ResetTokenExpires   *time.Time `json:"reset_token_expires,omitempty"`

	LastRequest  *time.Time `json:"last_request,omitempty"`
	RequestCount int        `json:"request_count"`
}

// Locked reports whether the account is locked at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Session is an issued login session. Only the Revoked flag ever changes
// after creation.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// Active reports whether the session is neither revoked nor expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// LoginAttempt is an immutable record of one authenticate call.
type LoginAttempt struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit is an append-only record of a mutating or security relevant action.
type Audit struct {
	ID             int64             `json:"id"`
	PasteID        *int64            `json:"paste_id,omitempty"`
	UserID         *int64            `json:"user_id,omitempty"`
	Action         string            `json:"action"`
	Timestamp      time.Time         `json:"timestamp"`
	IPAddress      string            `json:"ip_address"`
	UserAgent      string            `json:"user_agent"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	Operation      string            `json:"graphql_operation"`
	OperationType  string            `json:"operation_type"`
	SecurityLevel  string            `json:"security_level"`
}
