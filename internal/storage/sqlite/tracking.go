package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/flighttrack/internal/tracker"
)

const trackingColumns = `reporter_id, flight_id, phase, last_x, last_y, last_altitude_ft,
	last_speed_kts, last_heading, last_update_at, first_seen_at, telemetry_seen,
	takeoff_detected, landing_detected, initial_x, initial_y, initial_at,
	movement_started, movement_at, stationary_x, stationary_y, stationary_since,
	descent_samples, waypoints`

// GetTrackingEntry returns the entry for a reporter, or (nil, nil) when
// the reporter is not tracked
func (s *Store) GetTrackingEntry(ctx context.Context, reporterID uint32) (*tracker.TrackingEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trackingColumns+` FROM tracking_entries WHERE reporter_id = ?`, reporterID)
	e, err := scanTrackingEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking entry: %w", err)
	}
	return e, nil
}

// ListTrackingEntries returns all tracking entries
func (s *Store) ListTrackingEntries(ctx context.Context) ([]*tracker.TrackingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackingColumns+` FROM tracking_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking entries: %w", err)
	}
	defer rows.Close()

	var entries []*tracker.TrackingEntry
	for rows.Next() {
		e, err := scanTrackingEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertTrackingEntry writes an entry through, inserting or replacing the
// full row
func (s *Store) UpsertTrackingEntry(ctx context.Context, e *tracker.TrackingEntry) error {
	descentJSON, err := json.Marshal(e.DescentSamples)
	if err != nil {
		return fmt.Errorf("failed to marshal descent samples: %w", err)
	}
	waypointsJSON, err := json.Marshal(e.Waypoints)
	if err != nil {
		return fmt.Errorf("failed to marshal waypoints: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracking_entries (`+trackingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reporter_id) DO UPDATE SET
			flight_id = excluded.flight_id,
			phase = excluded.phase,
			last_x = excluded.last_x,
			last_y = excluded.last_y,
			last_altitude_ft = excluded.last_altitude_ft,
			last_speed_kts = excluded.last_speed_kts,
			last_heading = excluded.last_heading,
			last_update_at = excluded.last_update_at,
			first_seen_at = excluded.first_seen_at,
			telemetry_seen = excluded.telemetry_seen,
			takeoff_detected = excluded.takeoff_detected,
			landing_detected = excluded.landing_detected,
			initial_x = excluded.initial_x,
			initial_y = excluded.initial_y,
			initial_at = excluded.initial_at,
			movement_started = excluded.movement_started,
			movement_at = excluded.movement_at,
			stationary_x = excluded.stationary_x,
			stationary_y = excluded.stationary_y,
			stationary_since = excluded.stationary_since,
			descent_samples = excluded.descent_samples,
			waypoints = excluded.waypoints`,
		e.ReporterID, e.FlightID, string(e.Phase), e.LastX, e.LastY, e.LastAltitudeFt,
		e.LastSpeedKts, e.LastHeading, nullableTime(e.LastUpdateAt), fmtTime(e.FirstSeenAt),
		boolToInt(e.TelemetrySeen), boolToInt(e.TakeoffDetected), boolToInt(e.LandingDetected),
		e.InitialX, e.InitialY, fmtTimePtr(e.InitialAt),
		boolToInt(e.MovementStarted), fmtTimePtr(e.MovementAt),
		e.StationaryX, e.StationaryY, fmtTimePtr(e.StationarySince),
		string(descentJSON), string(waypointsJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert tracking entry: %w", err)
	}
	return nil
}

// DeleteTrackingEntry removes the entry for a reporter; deleting a
// missing entry is a no-op
func (s *Store) DeleteTrackingEntry(ctx context.Context, reporterID uint32) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracking_entries WHERE reporter_id = ?`, reporterID)
	if err != nil {
		return fmt.Errorf("failed to delete tracking entry: %w", err)
	}
	return nil
}

// AppendWaypoints merges collected waypoints onto an entry's waypoint
// column without rewriting the rest of the row
func (s *Store) AppendWaypoints(ctx context.Context, reporterID uint32, waypoints []tracker.Waypoint) error {
	if len(waypoints) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT waypoints FROM tracking_entries WHERE reporter_id = ?`, reporterID).Scan(&existingJSON)
	if err == sql.ErrNoRows {
		// Entry gone (flight finalized mid-collection); drop silently
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read waypoints: %w", err)
	}

	var existing []tracker.Waypoint
	if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
		return fmt.Errorf("failed to unmarshal waypoints: %w", err)
	}
	merged, err := json.Marshal(append(existing, waypoints...))
	if err != nil {
		return fmt.Errorf("failed to marshal waypoints: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tracking_entries SET waypoints = ? WHERE reporter_id = ?`,
		string(merged), reporterID)
	if err != nil {
		return fmt.Errorf("failed to update waypoints: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit waypoint append: %w", err)
	}
	return nil
}

// ListLandedStale returns entries with a detected landing whose last
// update is older than the cutoff
func (s *Store) ListLandedStale(ctx context.Context, cutoff time.Time) ([]*tracker.TrackingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackingColumns+` FROM tracking_entries WHERE landing_detected = 1 AND last_update_at < ?`,
		fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale landed entries: %w", err)
	}
	defer rows.Close()

	var entries []*tracker.TrackingEntry
	for rows.Next() {
		e, err := scanTrackingEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanTrackingEntry(row rowScanner) (*tracker.TrackingEntry, error) {
	var e tracker.TrackingEntry
	var phase string
	var lastUpdateAt sql.NullString
	var firstSeenAt string
	var telemetrySeen, takeoffDetected, landingDetected, movementStarted int
	var initialX, initialY, stationaryX, stationaryY sql.NullFloat64
	var initialAt, movementAt, stationarySince sql.NullString
	var descentJSON, waypointsJSON string

	err := row.Scan(&e.ReporterID, &e.FlightID, &phase, &e.LastX, &e.LastY, &e.LastAltitudeFt,
		&e.LastSpeedKts, &e.LastHeading, &lastUpdateAt, &firstSeenAt, &telemetrySeen,
		&takeoffDetected, &landingDetected, &initialX, &initialY, &initialAt,
		&movementStarted, &movementAt, &stationaryX, &stationaryY, &stationarySince,
		&descentJSON, &waypointsJSON)
	if err != nil {
		return nil, err
	}

	e.Phase = tracker.Phase(phase)
	if lastUpdateAt.Valid {
		e.LastUpdateAt = parseTime(lastUpdateAt.String)
	}
	e.FirstSeenAt = parseTime(firstSeenAt)
	e.TelemetrySeen = telemetrySeen != 0
	e.TakeoffDetected = takeoffDetected != 0
	e.LandingDetected = landingDetected != 0
	e.MovementStarted = movementStarted != 0
	e.InitialX = nullFloatPtr(initialX)
	e.InitialY = nullFloatPtr(initialY)
	e.InitialAt = parseTimePtr(initialAt)
	e.MovementAt = parseTimePtr(movementAt)
	e.StationaryX = nullFloatPtr(stationaryX)
	e.StationaryY = nullFloatPtr(stationaryY)
	e.StationarySince = parseTimePtr(stationarySince)

	if err := json.Unmarshal([]byte(descentJSON), &e.DescentSamples); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descent samples: %w", err)
	}
	if err := json.Unmarshal([]byte(waypointsJSON), &e.Waypoints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal waypoints: %w", err)
	}
	return &e, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}
