package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/GraphPaste/internal/models"
)

const pasteColumns = `id, title, content, public, burn, created_at, expires_at, language, size,
	version, metadata, owner_id, user_id, ip_addr, user_agent`

func scanPaste(row scanner) (*models.Paste, error) {
	var (
		p    models.Paste
		meta []byte
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Public, &p.Burn, &p.CreatedAt, &p.ExpiresAt, &p.Language, &p.Size,
		&p.Version, &meta, &p.OwnerID, &p.UserID, &p.IPAddress, &p.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &p, nil
}

// CreatePaste inserts p and fills in its generated id.
func (q *Queries) CreatePaste(ctx context.Context, p *models.Paste) error {
	meta, err := marshalJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("CreatePaste: %w", err)
	}
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO pastes (title, content, public, burn, created_at, expires_at, language, size,
		                    version, metadata, owner_id, user_id, ip_addr, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, p.Title, p.Content, p.Public, p.Burn, p.CreatedAt, p.ExpiresAt, p.Language, p.Size,
		p.Version, meta, p.OwnerID, p.UserID, p.IPAddress, p.UserAgent).Scan(&p.ID)
	if err != nil {
		return wrap("CreatePaste", err)
	}
	return nil
}

// UpdatePaste overwrites the mutable columns of an existing paste.
func (q *Queries) UpdatePaste(ctx context.Context, p *models.Paste) error {
	meta, err := marshalJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("UpdatePaste: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE pastes
		   SET title = $2, content = $3, public = $4, burn = $5, expires_at = $6,
		       language = $7, size = $8, version = $9, metadata = $10
		 WHERE id = $1
	`, p.ID, p.Title, p.Content, p.Public, p.Burn, p.ExpiresAt, p.Language, p.Size, p.Version, meta)
	if err != nil {
		return wrap("UpdatePaste", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdatePaste: paste %d: %w", p.ID, sql.ErrNoRows)
	}
	return nil
}

// DeletePaste removes a paste. Its versions go with it.
func (q *Queries) DeletePaste(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM pastes WHERE id = $1`, id)
	if err != nil {
		return false, wrap("DeletePaste", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("DeletePaste", err)
	}
	return n > 0, nil
}

func (q *Queries) pasteBy(ctx context.Context, op, where string, args ...any) (*models.Paste, error) {
	p, err := scanPaste(q.db.QueryRowContext(ctx, `SELECT `+pasteColumns+` FROM pastes WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	return p, nil
}

// PasteByID returns the paste with the given id or nil.
func (q *Queries) PasteByID(ctx context.Context, id int64) (*models.Paste, error) {
	return q.pasteBy(ctx, "PasteByID", `id = $1`, id)
}

// PasteByIDForUpdate returns the paste with the given id or nil and holds a
// row lock on it until the transaction ends.
func (q *Queries) PasteByIDForUpdate(ctx context.Context, id int64) (*models.Paste, error) {
	return q.pasteBy(ctx, "PasteByIDForUpdate", `id = $1 FOR UPDATE`, id)
}

// PasteByTitle returns the oldest paste carrying title, or nil.
func (q *Queries) PasteByTitle(ctx context.Context, title string) (*models.Paste, error) {
	return q.pasteBy(ctx, "PasteByTitle", `title = $1 ORDER BY id LIMIT 1`, title)
}

// ListPastes returns pastes newest first, optionally narrowed by visibility
// and capped by a positive limit.
func (q *Queries) ListPastes(ctx context.Context, f models.PasteFilter) ([]models.Paste, error) {
	query := `SELECT ` + pasteColumns + ` FROM pastes`
	var args []any
	if f.Public != nil {
		args = append(args, *f.Public)
		query += ` WHERE public = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("ListPastes", err)
	}
	defer rows.Close()

	var pastes []models.Paste
	for rows.Next() {
		p, err := scanPaste(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		pastes = append(pastes, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListPastes", err)
	}
	return pastes, nil
}

// CreatePasteVersion appends a content snapshot.
func (q *Queries) CreatePasteVersion(ctx context.Context, v *models.PasteVersion) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO paste_versions (paste_id, content, version, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, v.PasteID, v.Content, v.Version, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		return wrap("CreatePasteVersion", err)
	}
	return nil
}

// PasteVersions lists the snapshots of a paste in version order.
func (q *Queries) PasteVersions(ctx context.Context, pasteID int64) ([]models.PasteVersion, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, paste_id, content, version, created_at
		  FROM paste_versions WHERE paste_id = $1 ORDER BY version
	`, pasteID)
	if err != nil {
		return nil, wrap("PasteVersions", err)
	}
	defer rows.Close()

	var versions []models.PasteVersion
	for rows.Next() {
		var v models.PasteVersion
		if err := rows.Scan(&v.ID, &v.PasteID, &v.Content, &v.Version, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("PasteVersions", err)
	}
	return versions, nil
}
