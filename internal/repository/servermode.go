package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
)

const serverModeColumns = `id, mode, updated_at, rate_limit, max_paste_size, max_file_size,
	allowed_file_types, log_level, security_config`

func scanServerMode(row scanner) (*models.ServerMode, error) {
	var (
		m   models.ServerMode
		cfg []byte
	)
	err := row.Scan(&m.ID, &m.Mode, &m.UpdatedAt, &m.RateLimit, &m.MaxPasteSize, &m.MaxFileSize,
		&m.AllowedFileTypes, &m.LogLevel, &cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		m.SecurityConfig = cfg
	}
	return &m, nil
}

// ServerMode returns the singleton settings row or nil.
func (q *Queries) ServerMode(ctx context.Context) (*models.ServerMode, error) {
	m, err := scanServerMode(q.db.QueryRowContext(ctx,
		`SELECT `+serverModeColumns+` FROM server_mode WHERE id = $1`, models.ServerModeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("ServerMode", err)
	}
	return m, nil
}

// UpsertServerMode creates the singleton with default limits or switches
// the mode of the existing row, in one statement.
func (q *Queries) UpsertServerMode(ctx context.Context, mode string, at time.Time) (*models.ServerMode, error) {
	def := models.DefaultServerMode()
	m, err := scanServerMode(q.db.QueryRowContext(ctx, `
		INSERT INTO server_mode (id, mode, updated_at, rate_limit, max_paste_size, max_file_size,
		                         allowed_file_types, log_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode, updated_at = EXCLUDED.updated_at
		RETURNING `+serverModeColumns,
		models.ServerModeID, mode, at, def.RateLimit, def.MaxPasteSize, def.MaxFileSize,
		def.AllowedFileTypes, def.LogLevel))
	if err != nil {
		return nil, wrap("UpsertServerMode", err)
	}
	return m, nil
}
