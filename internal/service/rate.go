package service

import (
	"context"
	"time"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/metrics"
	"github.com/atinyakov/GraphPaste/internal/models"
	"go.uber.org/zap"
)

// RateWindow is the length of the per-user request window.
const RateWindow = time.Minute

// ModeSource yields the current server settings.
type ModeSource interface {
	Mode(ctx context.Context) (*models.ServerMode, error)
}

// RateTracker counts requests per user and enforces the limit in hard mode.
type RateTracker struct {
	store   Store
	modes   ModeSource
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRateTracker(store Store, modes ModeSource, log *zap.Logger, opts ...Option) *RateTracker {
	o := applyOptions(opts)
	return &RateTracker{store: store, modes: modes, log: log, metrics: o.metrics, now: o.now}
}

// Admit counts one request for user. Requests past the limit are rejected
// with ErrRateLimited only in hard mode. Anonymous callers are not tracked.
func (r *RateTracker) Admit(ctx context.Context, user *models.User) error {
	if user == nil {
		return nil
	}
	now := r.now()
	count, err := r.store.TouchRequest(ctx, user.ID, now, now.Add(-RateWindow))
	if err != nil {
		return apperr.Persistence(err)
	}

	mode, err := r.modes.Mode(ctx)
	if err != nil {
		return err
	}
	if mode.Mode == models.ModeHard && count > mode.RateLimit {
		r.metrics.RateLimited()
		r.log.Warn("rate limit exceeded",
			zap.String("username", user.Username),
			zap.Int("count", count),
			zap.Int("limit", mode.RateLimit),
		)
		return apperr.ErrRateLimited
	}
	return nil
}
