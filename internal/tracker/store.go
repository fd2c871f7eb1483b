package tracker

import (
	"context"
	"time"
)

// Store is the persistence surface the tracking engine depends on. The
// sqlite implementation lives in internal/storage/sqlite; tests substitute
// an in-memory fake. Lookup methods return (nil, nil) when the row does
// not exist so callers can distinguish absence from a store failure.
type Store interface {
	// Flights
	GetFlightByID(ctx context.Context, id int64) (*FlightRecord, error)
	ActivateFlight(ctx context.Context, id int64, at time.Time) error
	MarkFlightLanded(ctx context.Context, id int64, at time.Time) error

	// CompleteFlight applies the finalize transaction: status to completed,
	// aggregate stats written, tracking entry removed, all atomically.
	CompleteFlight(ctx context.Context, fin FlightFinalization) error

	// AbortFlight moves an active flight to aborted and removes its
	// tracking entry in one transaction.
	AbortFlight(ctx context.Context, id int64, reporterID uint32, at time.Time) error

	// CancelFlight moves a pending flight to cancelled. The transition is
	// guarded on the flight still being pending; it reports false without
	// error when the flight advanced in the meantime.
	CancelFlight(ctx context.Context, id int64, at time.Time) (bool, error)

	// DeleteFlight removes a flight row outright. Used only for no-show
	// flights that never produced telemetry.
	DeleteFlight(ctx context.Context, id int64) error

	// Tracking entries
	GetTrackingEntry(ctx context.Context, reporterID uint32) (*TrackingEntry, error)
	ListTrackingEntries(ctx context.Context) ([]*TrackingEntry, error)
	UpsertTrackingEntry(ctx context.Context, entry *TrackingEntry) error
	DeleteTrackingEntry(ctx context.Context, reporterID uint32) error

	// AppendWaypoints merges newly collected waypoints onto an entry
	// without rewriting the rest of the row.
	AppendWaypoints(ctx context.Context, reporterID uint32, waypoints []Waypoint) error

	// Sweep queries
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*FlightRecord, error)
	ListLandedStale(ctx context.Context, cutoff time.Time) ([]*TrackingEntry, error)

	// Telemetry
	AppendTelemetry(ctx context.Context, point *TelemetryPoint) error
	GetFlightTelemetry(ctx context.Context, flightID int64) ([]TelemetryPoint, error)

	// Notifications and user stats
	InsertNotification(ctx context.Context, n *Notification) error
	RefreshUserStats(ctx context.Context, userID int64) error
}
