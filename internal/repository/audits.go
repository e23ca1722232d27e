package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atinyakov/GraphPaste/internal/models"
)

// CreateAudit appends an audit record.
func (q *Queries) CreateAudit(ctx context.Context, a *models.Audit) error {
	headers, err := marshalJSON(a.RequestHeaders)
	if err != nil {
		return fmt.Errorf("CreateAudit: %w", err)
	}
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO audits (paste_id, user_id, action, timestamp, ip_address, user_agent,
		                    request_headers, graphql_operation, operation_type, security_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, a.PasteID, a.UserID, a.Action, a.Timestamp, a.IPAddress, a.UserAgent,
		headers, a.Operation, a.OperationType, a.SecurityLevel).Scan(&a.ID)
	if err != nil {
		return wrap("CreateAudit", err)
	}
	return nil
}

// ListAudits returns the newest audit records first. A non-positive limit
// returns everything.
func (q *Queries) ListAudits(ctx context.Context, limit int) ([]models.Audit, error) {
	query := `
		SELECT id, paste_id, user_id, action, timestamp, ip_address, user_agent,
		       request_headers, graphql_operation, operation_type, security_level
		  FROM audits ORDER BY timestamp DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("ListAudits", err)
	}
	defer rows.Close()

	var audits []models.Audit
	for rows.Next() {
		var (
			a       models.Audit
			headers []byte
		)
		if err := rows.Scan(&a.ID, &a.PasteID, &a.UserID, &a.Action, &a.Timestamp, &a.IPAddress, &a.UserAgent,
			&headers, &a.Operation, &a.OperationType, &a.SecurityLevel); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &a.RequestHeaders); err != nil {
				return nil, fmt.Errorf("decode headers: %w", err)
			}
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("ListAudits", err)
	}
	return audits, nil
}
