package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/flighttrack/internal/tracker"
)

// RefreshUserStats recomputes a user's aggregate stats from their
// completed flights. Called after each completion; recomputing from
// scratch keeps it idempotent under sweeper retries.
func (s *Store) RefreshUserStats(ctx context.Context, userID int64) error {
	var completed int64
	var totalDistance float64
	var totalDuration int64
	var avgLanding, avgSmoothness float64
	var bestRate sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(distance_nm), 0),
			COALESCE(SUM(duration_secs), 0),
			COALESCE(AVG(landing_score), 0),
			COALESCE(AVG(smoothness_score), 0),
			MIN(ABS(landing_rate_fpm))
		FROM flights WHERE user_id = ? AND status = ?`,
		userID, string(tracker.StatusCompleted)).
		Scan(&completed, &totalDistance, &totalDuration, &avgLanding, &avgSmoothness, &bestRate)
	if err != nil {
		return fmt.Errorf("failed to aggregate user flights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, flights_completed, total_distance_nm, total_duration_secs,
			avg_landing_score, avg_smoothness_score, best_landing_rate_fpm, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			flights_completed = excluded.flights_completed,
			total_distance_nm = excluded.total_distance_nm,
			total_duration_secs = excluded.total_duration_secs,
			avg_landing_score = excluded.avg_landing_score,
			avg_smoothness_score = excluded.avg_smoothness_score,
			best_landing_rate_fpm = excluded.best_landing_rate_fpm,
			updated_at = excluded.updated_at`,
		userID, completed, totalDistance, totalDuration, avgLanding, avgSmoothness,
		bestRate, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert user stats: %w", err)
	}
	return nil
}
