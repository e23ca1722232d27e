package db

import (
	"context"
	"time"

	"github.com/atinyakov/GraphPaste/internal/service"
	"go.uber.org/zap"
)

// Retention is how long audit and login attempt records are kept.
const Retention = 30 * 24 * time.Hour

// StartCleaner purges expired and aged data every interval until ctx is
// cancelled.
func StartCleaner(
	ctx context.Context,
	cleaner service.Cleaner,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				report, err := cleaner.Cleanup(ctx, service.Cleanup{
					Now:        now,
					Retention:  retention,
					RateWindow: service.RateWindow,
				})
				if err != nil {
					log.Error("failed to clean expired data", zap.Error(err))
					continue
				}
				if report != (service.CleanupReport{}) {
					log.Info("cleaned expired data",
						zap.Int64("sessions", report.Sessions),
						zap.Int64("pastes", report.Pastes),
						zap.Int64("audits", report.Audits),
						zap.Int64("login_attempts", report.LoginAttempts),
						zap.Int64("rate_counters", report.RateCounters),
					)
				}
			}
		}
	}()
}
