package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thanhpk/randstr"
	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/pkg/logger"
)

const flightColumns = `id, user_id, reporter_id, callsign, departure, arrival, status,
	operator_status, controlled, share_token, created_at, activated_at, landed_at, ended_at,
	duration_secs, distance_nm, max_altitude_ft, max_speed_kts, avg_speed_kts,
	landing_rate_fpm, smoothness_score, landing_score, landing_runway, landing_airport`

// CreateFlight inserts a new pending flight and assigns it a share token.
// Flight submission normally happens in the user-facing system; this
// exists for staging and tests that drive the engine end to end.
func (s *Store) CreateFlight(ctx context.Context, f *tracker.FlightRecord) error {
	if f.ShareToken == "" {
		f.ShareToken = randstr.String(16)
	}
	if f.Status == "" {
		f.Status = tracker.StatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO flights (user_id, reporter_id, callsign, departure, arrival, status, operator_status, controlled, share_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.ReporterID, f.Callsign, f.Departure, f.Arrival, string(f.Status),
		f.OperatorStatus, boolToInt(f.Controlled), f.ShareToken, fmtTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert flight: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read flight id: %w", err)
	}
	f.ID = id
	return nil
}

// GetFlightByID returns a flight by id, or (nil, nil) when it does not exist
func (s *Store) GetFlightByID(ctx context.Context, id int64) (*tracker.FlightRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query flight: %w", err)
	}
	return f, nil
}

// ActivateFlight moves a pending flight to active. Guarded on the current
// status so a duplicate activation is a no-op.
func (s *Store) ActivateFlight(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flights SET status = ?, activated_at = ? WHERE id = ? AND status = ?`,
		string(tracker.StatusActive), fmtTime(at), id, string(tracker.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to activate flight: %w", err)
	}
	return nil
}

// MarkFlightLanded records the landing timestamp once
func (s *Store) MarkFlightLanded(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flights SET landed_at = ? WHERE id = ? AND landed_at IS NULL`,
		fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark flight landed: %w", err)
	}
	return nil
}

// CompleteFlight applies the finalize transaction: the flight row gets
// its terminal status and aggregate stats, and the tracking entry is
// removed, atomically.
func (s *Store) CompleteFlight(ctx context.Context, fin tracker.FlightFinalization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE flights SET
			status = ?, ended_at = ?, landed_at = COALESCE(landed_at, ?),
			duration_secs = ?, distance_nm = ?, max_altitude_ft = ?, max_speed_kts = ?,
			avg_speed_kts = ?, landing_rate_fpm = ?, smoothness_score = ?, landing_score = ?,
			landing_runway = ?, landing_airport = ?
		WHERE id = ? AND status = ?`,
		string(tracker.StatusCompleted), fmtTime(fin.EndedAt), fmtTimePtr(fin.LandedAt),
		fin.DurationSecs, fin.DistanceNM, fin.MaxAltitudeFt, fin.MaxSpeedKts,
		fin.AvgSpeedKts, fin.LandingRateFPM, fin.SmoothnessScore, fin.LandingScore,
		nullIfEmpty(fin.LandingRunway), nullIfEmpty(fin.LandingAirport),
		fin.FlightID, string(tracker.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to finalize flight: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finalize result: %w", err)
	}
	if affected == 0 {
		// Already completed by a concurrent path; nothing to do
		s.logger.Warn("Finalize skipped, flight no longer active",
			logger.Int64("flight_id", fin.FlightID))
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM tracking_entries WHERE reporter_id = ?`, fin.ReporterID)
	if err != nil {
		return fmt.Errorf("failed to remove tracking entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalize: %w", err)
	}
	return nil
}

// AbortFlight moves an active flight to aborted and removes its tracking
// entry in one transaction
func (s *Store) AbortFlight(ctx context.Context, id int64, reporterID uint32, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE flights SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(tracker.StatusAborted), fmtTime(at), id, string(tracker.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to abort flight: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM tracking_entries WHERE reporter_id = ?`, reporterID)
	if err != nil {
		return fmt.Errorf("failed to remove tracking entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit abort: %w", err)
	}
	return nil
}

// CancelFlight moves a pending flight to cancelled. Reports false without
// error when the flight is no longer pending.
func (s *Store) CancelFlight(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE flights SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		string(tracker.StatusCancelled), fmtTime(at), id, string(tracker.StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel flight: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result: %w", err)
	}
	return affected > 0, nil
}

// DeleteFlight removes a flight and its telemetry outright
func (s *Store) DeleteFlight(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM telemetry WHERE flight_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flight telemetry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM flights WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flight deletion: %w", err)
	}
	return nil
}

// ListPendingCreatedBefore returns pending flights created before the cutoff
func (s *Store) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*tracker.FlightRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE status = ? AND created_at < ?`,
		string(tracker.StatusPending), fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending flights: %w", err)
	}
	defer rows.Close()

	var flights []*tracker.FlightRecord
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlight(row rowScanner) (*tracker.FlightRecord, error) {
	var f tracker.FlightRecord
	var status string
	var operatorStatus, landingRunway, landingAirport sql.NullString
	var controlled int
	var createdAt string
	var activatedAt, landedAt, endedAt sql.NullString
	var durationSecs sql.NullInt64
	var distanceNM, maxAltitudeFt, maxSpeedKts, avgSpeedKts sql.NullFloat64
	var landingRateFPM, smoothnessScore, landingScore sql.NullFloat64

	err := row.Scan(&f.ID, &f.UserID, &f.ReporterID, &f.Callsign, &f.Departure, &f.Arrival, &status,
		&operatorStatus, &controlled, &f.ShareToken, &createdAt, &activatedAt, &landedAt, &endedAt,
		&durationSecs, &distanceNM, &maxAltitudeFt, &maxSpeedKts, &avgSpeedKts,
		&landingRateFPM, &smoothnessScore, &landingScore, &landingRunway, &landingAirport)
	if err != nil {
		return nil, err
	}

	f.Status = tracker.Status(status)
	f.Controlled = controlled != 0
	f.CreatedAt = parseTime(createdAt)
	f.ActivatedAt = parseTimePtr(activatedAt)
	f.LandedAt = parseTimePtr(landedAt)
	f.EndedAt = parseTimePtr(endedAt)
	if operatorStatus.Valid && operatorStatus.String != "" {
		f.OperatorStatus = &operatorStatus.String
	}
	if durationSecs.Valid {
		f.DurationSecs = &durationSecs.Int64
	}
	f.DistanceNM = nullFloatPtr(distanceNM)
	f.MaxAltitudeFt = nullFloatPtr(maxAltitudeFt)
	f.MaxSpeedKts = nullFloatPtr(maxSpeedKts)
	f.AvgSpeedKts = nullFloatPtr(avgSpeedKts)
	f.LandingRateFPM = nullFloatPtr(landingRateFPM)
	f.SmoothnessScore = nullFloatPtr(smoothnessScore)
	f.LandingScore = nullFloatPtr(landingScore)
	if landingRunway.Valid && landingRunway.String != "" {
		f.LandingRunway = &landingRunway.String
	}
	if landingAirport.Valid && landingAirport.String != "" {
		f.LandingAirport = &landingAirport.String
	}
	return &f, nil
}

func nullFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
