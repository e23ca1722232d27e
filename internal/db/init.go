// Package db opens the PostgreSQL database, creates the schema and runs the
// periodic retention cleaner.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username VARCHAR(80) NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login TIMESTAMPTZ,
    failed_login_attempts INTEGER NOT NULL DEFAULT 0,
    locked_until TIMESTAMPTZ,
    reset_token VARCHAR(100) UNIQUE,
    reset_token_expires TIMESTAMPTZ,
    last_request TIMESTAMPTZ,
    request_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_user_username_admin ON users (username, is_admin);

CREATE TABLE IF NOT EXISTS user_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token VARCHAR(255) NOT NULL UNIQUE,
    ip_address VARCHAR(45) NOT NULL DEFAULT '',
    user_agent VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    revoked BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_session_user ON user_sessions (user_id);
CREATE INDEX IF NOT EXISTS idx_session_expires ON user_sessions (expires_at);

CREATE TABLE IF NOT EXISTS login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
    success BOOLEAN NOT NULL,
    ip_address VARCHAR(45) NOT NULL DEFAULT '',
    user_agent VARCHAR(255) NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_login_attempt_user_time ON login_attempts (user_id, timestamp);

CREATE TABLE IF NOT EXISTS pastes (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(100) NOT NULL,
    content TEXT NOT NULL,
    public BOOLEAN NOT NULL DEFAULT FALSE,
    burn BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    language VARCHAR(50) NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    metadata JSONB,
    owner_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
    user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
    ip_addr VARCHAR(45) NOT NULL DEFAULT '',
    user_agent VARCHAR(255) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_paste_public_created ON pastes (public, created_at);
CREATE INDEX IF NOT EXISTS idx_paste_title ON pastes (title);
CREATE INDEX IF NOT EXISTS idx_paste_expiry ON pastes (expires_at);

CREATE TABLE IF NOT EXISTS paste_versions (
    id BIGSERIAL PRIMARY KEY,
    paste_id BIGINT NOT NULL REFERENCES pastes(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (paste_id, version)
);

CREATE TABLE IF NOT EXISTS audits (
    id BIGSERIAL PRIMARY KEY,
    paste_id BIGINT REFERENCES pastes(id) ON DELETE SET NULL,
    user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
    action VARCHAR(50) NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ip_address VARCHAR(45) NOT NULL DEFAULT '',
    user_agent VARCHAR(255) NOT NULL DEFAULT '',
    request_headers JSONB,
    graphql_operation VARCHAR(100) NOT NULL DEFAULT '',
    operation_type VARCHAR(20) NOT NULL DEFAULT '',
    security_level VARCHAR(20) NOT NULL DEFAULT 'info'
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audits (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audits (action);

CREATE TABLE IF NOT EXISTS server_mode (
    id INTEGER PRIMARY KEY,
    mode VARCHAR(10) NOT NULL DEFAULT 'easy',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    rate_limit INTEGER NOT NULL DEFAULT 100,
    max_paste_size INTEGER NOT NULL DEFAULT 1048576,
    max_file_size INTEGER NOT NULL DEFAULT 5242880,
    allowed_file_types VARCHAR(255) NOT NULL DEFAULT 'txt,pdf,png,jpg',
    log_level VARCHAR(10) NOT NULL DEFAULT 'INFO',
    security_config JSONB
);
`

// InitPostgres opens the database, verifies the connection and creates any
// missing tables.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := CreateSchema(db); err != nil {
		return nil, err
	}

	return db, nil
}

// CreateSchema applies the idempotent table definitions.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
