package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/internal/geo"
	"github.com/yegors/flighttrack/pkg/logger"
)

// Lifecycle drives the flight status machine:
//
//	pending -> active -> completed
//	        \         \-> aborted
//	         \-> cancelled
//
// Transitions here are the telemetry-driven ones (activation, landing,
// completion). The sweeper owns the timeout-driven ones (cancel, abort,
// no-show deletion) and reuses Complete for late completions.
type Lifecycle struct {
	store Store
	cfg   config.TrackingConfig
	log   *logger.Logger
	now   func() time.Time
}

// NewLifecycle creates a lifecycle driver. The clock is injectable for
// tests; pass nil to use the wall clock.
func NewLifecycle(store Store, cfg config.TrackingConfig, log *logger.Logger, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		store: store,
		cfg:   cfg,
		log:   log.Named("lifecycle"),
		now:   now,
	}
}

// Outcome reports which transitions a single update produced
type Outcome struct {
	Activated       bool
	LandingDetected bool
	Completed       bool
}

// Advance applies one position report to a flight's lifecycle state. The
// entry is mutated in place; persistence of the entry is the caller's
// responsibility, except for completion which removes it transactionally.
//
// While a controller owns the flight all automated transitions are
// suppressed. The gate code is the one exception: it is always honored so
// a controlled flight can still complete at the gate.
func (l *Lifecycle) Advance(ctx context.Context, flight *FlightRecord, entry *TrackingEntry, prev *Snapshot, cur *Snapshot, depElevFt, arrElevFt float64, waypoints []Waypoint) (Outcome, error) {
	var out Outcome
	if flight.Status.Terminal() {
		return out, nil
	}
	now := l.now()

	// Landing detection latches once per flight. It is a fact about the
	// aircraft, not a transition, so it is observed even under controller
	// ownership.
	if flight.Status == StatusActive && !entry.LandingDetected && LandingDetected(prev, *cur, arrElevFt) {
		entry.LandingDetected = true
		out.LandingDetected = true
		flight.LandedAt = &now

		sctx, cancel := l.storeCtx(ctx)
		err := l.store.MarkFlightLanded(sctx, flight.ID, now)
		cancel()
		if err != nil {
			return out, fmt.Errorf("failed to mark flight landed: %w", err)
		}
		l.log.Info("Landing detected",
			logger.Int64("flight_id", flight.ID),
			logger.Uint32("reporter_id", entry.ReporterID),
			logger.Float64("altitude_ft", cur.AltitudeFt),
			logger.Float64("speed_kts", cur.GroundSpeedKts))
	}

	if !entry.TakeoffDetected && flight.Status == StatusActive && cur.AltitudeFt > depElevFt+airborneFloorFt {
		entry.TakeoffDetected = true
	}

	gate := flight.OperatorStatus != nil && *flight.OperatorStatus == OpStatusGate

	if flight.Controlled && !gate {
		return out, nil
	}

	switch flight.Status {
	case StatusPending:
		activated, err := l.tryActivate(ctx, flight, entry, cur, depElevFt, now)
		if err != nil {
			return out, err
		}
		out.Activated = activated

	case StatusActive:
		if !entry.LandingDetected {
			return out, nil
		}
		if gate {
			// Controller parked the aircraft at the gate: complete
			// without waiting out the stationary window.
			if err := l.Complete(ctx, flight, entry, waypoints, now); err != nil {
				return out, err
			}
			out.Completed = true
			return out, nil
		}
		completed, err := l.checkStationary(ctx, flight, entry, cur, arrElevFt, waypoints, now)
		if err != nil {
			return out, err
		}
		out.Completed = completed
	}
	return out, nil
}

// tryActivate moves a pending flight to active once the aircraft either
// moves (fast enough, far enough from where it first appeared) or is
// already airborne. The first sample only records the initial position;
// activation can never fire on it.
func (l *Lifecycle) tryActivate(ctx context.Context, flight *FlightRecord, entry *TrackingEntry, cur *Snapshot, depElevFt float64, now time.Time) (bool, error) {
	if entry.InitialX == nil || entry.InitialY == nil {
		x, y := cur.X, cur.Y
		entry.InitialX = &x
		entry.InitialY = &y
		entry.InitialAt = &now
		return false, nil
	}

	airborne := cur.AltitudeFt > depElevFt+airborneFloorFt
	moving := cur.GroundSpeedKts > l.cfg.MovementSpeedKts &&
		geo.Distance(*entry.InitialX, *entry.InitialY, cur.X, cur.Y) > l.cfg.MovementDistanceM
	if !airborne && !moving {
		return false, nil
	}

	sctx, cancel := l.storeCtx(ctx)
	err := l.store.ActivateFlight(sctx, flight.ID, now)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to activate flight: %w", err)
	}

	flight.Status = StatusActive
	flight.ActivatedAt = &now
	entry.MovementStarted = true
	entry.MovementAt = &now
	if airborne {
		entry.TakeoffDetected = true
	}

	l.log.Info("Flight activated",
		logger.Int64("flight_id", flight.ID),
		logger.Uint32("reporter_id", entry.ReporterID),
		logger.Bool("airborne", airborne))
	return true, nil
}

// checkStationary completes a landed flight after it has been
// continuously stationary at ground level for the configured window.
// Any movement resets the window.
func (l *Lifecycle) checkStationary(ctx context.Context, flight *FlightRecord, entry *TrackingEntry, cur *Snapshot, arrElevFt float64, waypoints []Waypoint, now time.Time) (bool, error) {
	onGround := cur.AltitudeFt <= arrElevFt+landingAltBufferFt
	stationary := cur.GroundSpeedKts < stationarySpeedKts

	if !onGround || !stationary {
		entry.StationaryX = nil
		entry.StationaryY = nil
		entry.StationarySince = nil
		return false, nil
	}

	if entry.StationarySince == nil {
		x, y := cur.X, cur.Y
		entry.StationaryX = &x
		entry.StationaryY = &y
		entry.StationarySince = &now
		return false, nil
	}

	if now.Sub(*entry.StationarySince) < l.cfg.StationaryWindow() {
		return false, nil
	}

	if err := l.Complete(ctx, flight, entry, waypoints, now); err != nil {
		return false, err
	}
	return true, nil
}

// Complete finalizes a flight: loads its telemetry, computes aggregates
// and scores, selects the representative landing waypoint and applies the
// completion transaction. The waypoint set and descent buffer are
// discarded with the tracking entry.
func (l *Lifecycle) Complete(ctx context.Context, flight *FlightRecord, entry *TrackingEntry, waypoints []Waypoint, endedAt time.Time) error {
	sctx, cancel := l.storeCtx(ctx)
	points, err := l.store.GetFlightTelemetry(sctx, flight.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load telemetry for finalize: %w", err)
	}

	agg := ComputeAggregates(points, flight.ActivatedAt, endedAt)

	var landingRate float64
	var runway, airport string
	if wp := SelectLandingWaypoint(waypoints); wp != nil {
		landingRate = wp.RateFPM
		runway = wp.Runway
		airport = wp.Airport
	} else {
		landingRate = FallbackLandingRateFPM(entry.DescentSamples)
	}

	fin := FlightFinalization{
		FlightID:        flight.ID,
		ReporterID:      entry.ReporterID,
		EndedAt:         endedAt,
		LandedAt:        flight.LandedAt,
		DurationSecs:    agg.DurationSecs,
		DistanceNM:      agg.DistanceNM,
		MaxAltitudeFt:   agg.MaxAltitudeFt,
		MaxSpeedKts:     agg.MaxSpeedKts,
		AvgSpeedKts:     agg.AvgSpeedKts,
		LandingRateFPM:  landingRate,
		SmoothnessScore: SmoothnessScore(points),
		LandingScore:    LandingScore(landingRate),
		LandingRunway:   runway,
		LandingAirport:  airport,
	}

	sctx, cancel = l.storeCtx(ctx)
	err = l.store.CompleteFlight(sctx, fin)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to complete flight: %w", err)
	}
	flight.Status = StatusCompleted
	flight.EndedAt = &endedAt

	// Stats refresh is best effort; the flight itself is already final
	sctx, cancel = l.storeCtx(ctx)
	err = l.store.RefreshUserStats(sctx, flight.UserID)
	cancel()
	if err != nil {
		l.log.Warn("Failed to refresh user stats after completion",
			logger.Int64("user_id", flight.UserID),
			logger.Error(err))
	}

	l.log.Info("Flight completed",
		logger.Int64("flight_id", flight.ID),
		logger.Float64("landing_rate_fpm", landingRate),
		logger.Float64("landing_score", fin.LandingScore),
		logger.Float64("smoothness_score", fin.SmoothnessScore),
		logger.Float64("distance_nm", fin.DistanceNM))
	return nil
}

func (l *Lifecycle) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.StoreTimeout())
}
