package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yegors/flighttrack/internal/airports"
	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/internal/geo"
	"github.com/yegors/flighttrack/internal/wire"
	"github.com/yegors/flighttrack/pkg/logger"
)

// WaypointSource opens the per-aircraft waypoint channel and delivers
// collected waypoints until the context expires. Implemented by the feed
// package; stubbed in tests.
type WaypointSource interface {
	Stream(ctx context.Context, reporterID uint32, deliver func(Waypoint)) error
}

// Service is the tracking engine's ingestion pipeline. The feed hands it
// decoded traffic frames; it classifies each tracked aircraft, drives the
// lifecycle machine, samples telemetry and spawns waypoint collectors.
// Frames are processed on the feed's reader goroutine, so per-reporter
// processing is inherently serialized. Each update works on a private
// copy of the tracking entry and publishes it back through the state
// container, which also serves the API's reads.
type Service struct {
	store     Store
	state     *State
	airports  *airports.Table
	waypoints WaypointSource
	lifecycle *Lifecycle
	cfg       config.TrackingConfig
	log       *logger.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	collectorsMu sync.Mutex
	collectors   map[uint32]context.CancelFunc
}

// NewService creates the tracking service. The clock is injectable for
// tests; pass nil to use the wall clock.
func NewService(store Store, state *State, table *airports.Table, waypoints WaypointSource, cfg config.TrackingConfig, log *logger.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      store,
		state:      state,
		airports:   table,
		waypoints:  waypoints,
		lifecycle:  NewLifecycle(store, cfg, log, now),
		cfg:        cfg,
		log:        log.Named("tracker"),
		now:        now,
		collectors: make(map[uint32]context.CancelFunc),
	}
}

// Lifecycle exposes the lifecycle driver so the sweeper can reuse its
// completion path
func (s *Service) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Start recovers persisted tracking state and prepares the service for
// incoming frames
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s.recover(s.ctx)
}

// Stop cancels all waypoint collectors and waits for them to drain
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Tracking service stopped")
}

// recover reloads tracking entries written through before the last
// shutdown. Entries whose flight has since reached a terminal status are
// discarded.
func (s *Service) recover(ctx context.Context) error {
	sctx, cancel := s.storeCtx(ctx)
	entries, err := s.store.ListTrackingEntries(sctx)
	cancel()
	if err != nil {
		return err
	}

	recovered := 0
	for _, entry := range entries {
		sctx, cancel := s.storeCtx(ctx)
		flight, err := s.store.GetFlightByID(sctx, entry.FlightID)
		cancel()
		if err != nil {
			s.log.Error("Failed to load flight during recovery",
				logger.Int64("flight_id", entry.FlightID), logger.Error(err))
			continue
		}
		if flight == nil || flight.Status.Terminal() {
			sctx, cancel := s.storeCtx(ctx)
			if err := s.store.DeleteTrackingEntry(sctx, entry.ReporterID); err != nil {
				s.log.Error("Failed to drop orphaned tracking entry",
					logger.Uint32("reporter_id", entry.ReporterID), logger.Error(err))
			}
			cancel()
			continue
		}
		s.state.Track(entry, flight)
		recovered++
	}
	s.log.Info("Recovered tracking state", logger.Int("entries", recovered))
	return nil
}

// HandleTraffic processes one decoded traffic frame. Records for
// untracked reporters cost at most one store lookup per cache window.
func (s *Service) HandleTraffic(records []wire.AircraftRecord) {
	for i := range records {
		s.processRecord(&records[i])
	}
}

func (s *Service) processRecord(rec *wire.AircraftRecord) {
	now := s.now()
	reporterID := rec.ReporterID

	// Working copy; committed back once the update is applied
	entry, tracked := s.state.Entry(reporterID)
	if !tracked {
		if s.state.RecentMiss(reporterID, now) {
			return
		}
		var err error
		entry, err = s.adopt(reporterID, now)
		if err != nil {
			s.log.Error("Tracking lookup failed",
				logger.Uint32("reporter_id", reporterID), logger.Error(err))
			return
		}
		if entry == nil {
			return
		}
	}

	flight, ok := s.state.Flight(reporterID)
	if !ok || flight.Status.Terminal() {
		s.state.Untrack(reporterID)
		return
	}

	snap := &Snapshot{
		ReporterID:     reporterID,
		Callsign:       rec.Callsign,
		X:              rec.X,
		Y:              rec.Y,
		AltitudeFt:     rec.AltitudeFt,
		GroundSpeedKts: rec.GroundSpeed,
		Heading:        geo.NormalizeHeading(rec.Heading),
		Model:          rec.Model,
		Livery:         rec.Livery,
		CapturedAt:     now,
	}
	prev, _ := s.state.Snapshot(reporterID)

	depElev, _ := s.airports.Elevation(flight.Departure)
	arrElev, _ := s.airports.Elevation(flight.Arrival)
	phaseElev := arrElev
	if flight.Status == StatusPending {
		phaseElev = depElev
	}

	entry.TelemetrySeen = true

	phase := DetectPhase(PhaseInput{
		Current:         *snap,
		Previous:        prev,
		OperatorStatus:  derefString(flight.OperatorStatus),
		ElevationFt:     phaseElev,
		Status:          flight.Status,
		LandingDetected: entry.LandingDetected,
	})

	verticalSpeed := snap.VerticalSpeedFPM(prev)

	entry.Phase = phase
	entry.LastX = snap.X
	entry.LastY = snap.Y
	entry.LastAltitudeFt = snap.AltitudeFt
	entry.LastSpeedKts = snap.GroundSpeedKts
	entry.LastHeading = snap.Heading
	entry.LastUpdateAt = now

	// Feed the landing-rate fallback buffer while descending toward the
	// field. Stops once landing is detected so the rollout does not
	// pollute it.
	if !entry.LandingDetected && verticalSpeed < 0 && snap.AltitudeFt <= arrElev+descentSampleCutoffFt {
		entry.PushDescentSample(AltitudeSample{AltitudeFt: snap.AltitudeFt, At: now})
	}

	outcome, err := s.lifecycle.Advance(s.ctx, flight, entry, prev, snap, depElev, arrElev, s.state.Waypoints(reporterID))
	if err != nil {
		s.log.Error("Lifecycle advance failed",
			logger.Int64("flight_id", flight.ID), logger.Error(err))
	}

	if outcome.LandingDetected {
		s.startCollector(reporterID)
	}

	s.state.SetSnapshot(snap)

	if outcome.Completed {
		// The completion transaction already removed the entry
		s.stopCollector(reporterID)
		s.state.Untrack(reporterID)
		return
	}

	s.state.SetFlight(reporterID, flight)
	if !s.state.CommitEntry(entry) {
		// Untracked concurrently (swept); nothing left to persist
		return
	}

	sctx, cancel := s.storeCtx(s.ctx)
	err = s.store.UpsertTrackingEntry(sctx, entry)
	cancel()
	if err != nil {
		s.log.Error("Failed to persist tracking entry",
			logger.Uint32("reporter_id", reporterID), logger.Error(err))
	}

	if flight.Status == StatusActive {
		s.sampleTelemetry(flight, entry, snap, verticalSpeed, now)
	}
}

// adopt looks up whether an unknown reporter belongs to a tracked flight.
// A miss is cached so the lookup does not repeat every frame.
func (s *Service) adopt(reporterID uint32, now time.Time) (*TrackingEntry, error) {
	sctx, cancel := s.storeCtx(s.ctx)
	entry, err := s.store.GetTrackingEntry(sctx, reporterID)
	cancel()
	if err != nil {
		return nil, err
	}
	if entry == nil {
		s.state.NoteMiss(reporterID, now)
		return nil, nil
	}

	sctx, cancel = s.storeCtx(s.ctx)
	flight, err := s.store.GetFlightByID(sctx, entry.FlightID)
	cancel()
	if err != nil {
		return nil, err
	}
	if flight == nil || flight.Status.Terminal() {
		sctx, cancel := s.storeCtx(s.ctx)
		defer cancel()
		if err := s.store.DeleteTrackingEntry(sctx, reporterID); err != nil {
			s.log.Error("Failed to drop orphaned tracking entry",
				logger.Uint32("reporter_id", reporterID), logger.Error(err))
		}
		s.state.NoteMiss(reporterID, now)
		return nil, nil
	}

	s.state.Track(entry, flight)
	s.log.Info("Aircraft acquired",
		logger.Uint32("reporter_id", reporterID),
		logger.Int64("flight_id", flight.ID),
		logger.String("callsign", flight.Callsign))
	return entry, nil
}

// sampleTelemetry appends a stored telemetry point at most once per
// sampling interval and piggybacks the flight-record refresh (operator
// status, controller ownership) on the same cadence.
func (s *Service) sampleTelemetry(flight *FlightRecord, entry *TrackingEntry, snap *Snapshot, verticalSpeed float64, now time.Time) {
	last, sampled := s.state.LastTelemetry(snap.ReporterID)
	if sampled && now.Sub(last) < s.cfg.TelemetrySampleInterval() {
		return
	}

	point := &TelemetryPoint{
		FlightID:         flight.ID,
		At:               now,
		X:                snap.X,
		Y:                snap.Y,
		AltitudeFt:       snap.AltitudeFt,
		SpeedKts:         snap.GroundSpeedKts,
		Heading:          snap.Heading,
		VerticalSpeedFPM: verticalSpeed,
		Phase:            entry.Phase,
	}
	sctx, cancel := s.storeCtx(s.ctx)
	err := s.store.AppendTelemetry(sctx, point)
	cancel()
	if err != nil {
		s.log.Error("Failed to append telemetry",
			logger.Int64("flight_id", flight.ID), logger.Error(err))
		return
	}
	s.state.SetLastTelemetry(snap.ReporterID, now)

	sctx, cancel = s.storeCtx(s.ctx)
	fresh, err := s.store.GetFlightByID(sctx, flight.ID)
	cancel()
	if err != nil {
		s.log.Warn("Failed to refresh flight record",
			logger.Int64("flight_id", flight.ID), logger.Error(err))
		return
	}
	if fresh == nil {
		s.state.Untrack(snap.ReporterID)
		return
	}
	// Preserve in-memory transitions not yet visible in the row the
	// refresh read, then swap the cached record.
	if flight.LandedAt != nil && fresh.LandedAt == nil {
		fresh.LandedAt = flight.LandedAt
	}
	s.state.SetFlight(snap.ReporterID, fresh)
}

// startCollector opens the per-aircraft waypoint channel for the
// configured window. Collectors are independently cancellable and many
// can run concurrently; a second landing detection for the same reporter
// while one is open is a no-op.
func (s *Service) startCollector(reporterID uint32) {
	s.collectorsMu.Lock()
	if _, exists := s.collectors[reporterID]; exists {
		s.collectorsMu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.WaypointWindow())
	s.collectors[reporterID] = cancel
	s.collectorsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.collectorsMu.Lock()
			delete(s.collectors, reporterID)
			s.collectorsMu.Unlock()
		}()

		s.log.Info("Waypoint collection started",
			logger.Uint32("reporter_id", reporterID),
			logger.Duration("window", s.cfg.WaypointWindow()))

		err := s.waypoints.Stream(ctx, reporterID, func(w Waypoint) {
			s.addWaypoint(reporterID, w)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("Waypoint collection ended with error",
				logger.Uint32("reporter_id", reporterID), logger.Error(err))
		}
	}()
}

func (s *Service) stopCollector(reporterID uint32) {
	s.collectorsMu.Lock()
	cancel, exists := s.collectors[reporterID]
	s.collectorsMu.Unlock()
	if exists {
		cancel()
	}
}

func (s *Service) addWaypoint(reporterID uint32, w Waypoint) {
	if !s.state.AppendWaypoint(reporterID, w) {
		return
	}
	sctx, cancel := s.storeCtx(s.ctx)
	defer cancel()
	if err := s.store.AppendWaypoints(sctx, reporterID, []Waypoint{w}); err != nil {
		s.log.Error("Failed to persist waypoint",
			logger.Uint32("reporter_id", reporterID), logger.Error(err))
	}
}

// TrackedFlight is the live view of one tracked flight, assembled from
// the in-memory entry, flight record and latest snapshot
type TrackedFlight struct {
	FlightID        int64     `json:"flight_id"`
	ReporterID      uint32    `json:"reporter_id"`
	Callsign        string    `json:"callsign"`
	Status          Status    `json:"status"`
	Phase           Phase     `json:"phase"`
	X               float64   `json:"x"`
	Y               float64   `json:"y"`
	AltitudeFt      float64   `json:"altitude_ft"`
	SpeedKts        float64   `json:"speed_kts"`
	Heading         float64   `json:"heading"`
	LandingDetected bool      `json:"landing_detected"`
	LastUpdateAt    time.Time `json:"last_update_at"`
}

// TrackedFlights returns the live view of everything currently tracked
func (s *Service) TrackedFlights() []TrackedFlight {
	entries := s.state.Entries()
	out := make([]TrackedFlight, 0, len(entries))
	for _, entry := range entries {
		flight, ok := s.state.Flight(entry.ReporterID)
		if !ok {
			continue
		}
		out = append(out, TrackedFlight{
			FlightID:        entry.FlightID,
			ReporterID:      entry.ReporterID,
			Callsign:        flight.Callsign,
			Status:          flight.Status,
			Phase:           entry.Phase,
			X:               entry.LastX,
			Y:               entry.LastY,
			AltitudeFt:      entry.LastAltitudeFt,
			SpeedKts:        entry.LastSpeedKts,
			Heading:         entry.LastHeading,
			LandingDetected: entry.LandingDetected,
			LastUpdateAt:    entry.LastUpdateAt,
		})
	}
	return out
}

// DescentSamplesFor returns a copy of the descent buffer for a tracked
// reporter, used by the live landing-rate estimate
func (s *Service) DescentSamplesFor(reporterID uint32) []AltitudeSample {
	entry, ok := s.state.Entry(reporterID)
	if !ok {
		return nil
	}
	return entry.DescentSamples
}

// EngineStatus is the snapshot reported on the operational endpoint
type EngineStatus struct {
	TrackedFlights   int `json:"tracked_flights"`
	ActiveCollectors int `json:"active_collectors"`
}

// Status reports the engine's current tracking load
func (s *Service) Status() EngineStatus {
	s.collectorsMu.Lock()
	collectors := len(s.collectors)
	s.collectorsMu.Unlock()
	return EngineStatus{
		TrackedFlights:   len(s.state.Entries()),
		ActiveCollectors: collectors,
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout())
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
