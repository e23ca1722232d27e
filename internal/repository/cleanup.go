package repository

import (
	"context"
	"fmt"

	"github.com/atinyakov/GraphPaste/internal/service"
)

// Cleanup purges expired sessions and pastes, ages out audit and login
// attempt records and resets idle rate counters, all in one transaction.
func (s *PostgresStore) Cleanup(ctx context.Context, c service.Cleanup) (service.CleanupReport, error) {
	var report service.CleanupReport

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cutoff := c.Now.Add(-c.Retention)
	steps := []struct {
		dst   *int64
		query string
		arg   any
	}{
		{&report.Sessions, `DELETE FROM user_sessions WHERE expires_at < $1`, c.Now},
		{&report.Pastes, `DELETE FROM pastes WHERE expires_at IS NOT NULL AND expires_at < $1`, c.Now},
		{&report.Audits, `DELETE FROM audits WHERE timestamp < $1`, cutoff},
		{&report.LoginAttempts, `DELETE FROM login_attempts WHERE timestamp < $1`, cutoff},
		{&report.RateCounters, `UPDATE users SET request_count = 0 WHERE request_count > 0 AND last_request < $1`, c.Now.Add(-c.RateWindow)},
	}
	for _, st := range steps {
		res, err := tx.ExecContext(ctx, st.query, st.arg)
		if err != nil {
			return service.CleanupReport{}, fmt.Errorf("cleanup: %w", err)
		}
		*st.dst, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return service.CleanupReport{}, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}
