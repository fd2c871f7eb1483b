package sqlite

import (
	"context"
	"fmt"

	"github.com/yegors/flighttrack/internal/tracker"
)

// AppendTelemetry stores one telemetry point. The table is append-only;
// points are never updated or reordered.
func (s *Store) AppendTelemetry(ctx context.Context, p *tracker.TelemetryPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry (flight_id, at, x, y, altitude_ft, speed_kts, heading, vertical_speed_fpm, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FlightID, fmtTime(p.At), p.X, p.Y, p.AltitudeFt, p.SpeedKts, p.Heading,
		p.VerticalSpeedFPM, string(p.Phase))
	if err != nil {
		return fmt.Errorf("failed to append telemetry: %w", err)
	}
	return nil
}

// GetFlightTelemetry returns a flight's telemetry in capture order
func (s *Store) GetFlightTelemetry(ctx context.Context, flightID int64) ([]tracker.TelemetryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flight_id, at, x, y, altitude_ft, speed_kts, heading, vertical_speed_fpm, phase
		FROM telemetry WHERE flight_id = ? ORDER BY at ASC, id ASC`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	var points []tracker.TelemetryPoint
	for rows.Next() {
		var p tracker.TelemetryPoint
		var at, phase string
		err := rows.Scan(&p.FlightID, &at, &p.X, &p.Y, &p.AltitudeFt, &p.SpeedKts,
			&p.Heading, &p.VerticalSpeedFPM, &phase)
		if err != nil {
			return nil, fmt.Errorf("failed to scan telemetry point: %w", err)
		}
		p.At = parseTime(at)
		p.Phase = tracker.Phase(phase)
		points = append(points, p)
	}
	return points, rows.Err()
}
