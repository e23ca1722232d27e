package service

import (
	"context"
	"maps"
	"time"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/models"
	"go.uber.org/zap"
)

// AuditAppender is the single write the audit log needs. Transactions pass
// their Queries so the audit row commits with the change it documents.
type AuditAppender interface {
	CreateAudit(ctx context.Context, a *models.Audit) error
}

// Event is an auditable action. Unset fields are filled from the caller in
// the context.
type Event struct {
	Action   string
	PasteID  *int64
	UserID   *int64
	Severity string
}

// AuditLog turns events into audit rows.
type AuditLog struct {
	log *zap.Logger
	now func() time.Time
}

func NewAuditLog(log *zap.Logger, opts ...Option) *AuditLog {
	o := applyOptions(opts)
	return &AuditLog{log: log, now: o.now}
}

// Record appends one audit row through dst. Storage failures are returned
// as ErrPersistence.
func (a *AuditLog) Record(ctx context.Context, dst AuditAppender, ev Event) error {
	caller := CallerFrom(ctx)

	row := &models.Audit{
		PasteID:        ev.PasteID,
		UserID:         ev.UserID,
		Action:         ev.Action,
		Timestamp:      a.now(),
		IPAddress:      caller.IPAddress,
		UserAgent:      caller.UserAgent,
		RequestHeaders: maps.Clone(caller.Headers),
		Operation:      caller.Operation,
		OperationType:  caller.OperationType,
		SecurityLevel:  ev.Severity,
	}
	if row.UserID == nil {
		row.UserID = caller.userID()
	}
	if row.OperationType == "" {
		row.OperationType = models.OperationMutation
	}
	if row.SecurityLevel == "" {
		row.SecurityLevel = models.SeverityInfo
	}

	if err := dst.CreateAudit(ctx, row); err != nil {
		return apperr.Persistence(err)
	}
	a.log.Debug("audit recorded",
		zap.String("action", row.Action),
		zap.String("severity", row.SecurityLevel),
		zap.String("ip", row.IPAddress),
	)
	return nil
}
