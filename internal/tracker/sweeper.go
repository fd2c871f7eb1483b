package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/pkg/logger"
)

// Sweeper periodically reaps flights that telemetry alone will never
// close out. Each pass runs three idempotent sweeps, in order:
//
//  1. no-show: tracked flights whose telemetry stopped (or never started)
//     beyond the grace window are deleted, unless a landing with a
//     recorded stationary position makes a late completion possible
//  2. stale pending: pending flights older than the pending timeout are
//     cancelled
//  3. stale landed: landed flights silent beyond the post-landing
//     timeout are aborted
//
// The no-show sweep runs first so an entry that qualifies for both
// deletion and cancellation is deleted with a notification rather than
// silently cancelled. Every transition is guarded in the store, so a
// sweep racing the ingestion pipeline (or a previous sweep) is a no-op.
type Sweeper struct {
	store     Store
	state     *State
	lifecycle *Lifecycle
	cfg       config.TrackingConfig
	log       *logger.Logger
	now       func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper. The state container may be nil; when set,
// reaped flights are also evicted from in-memory state. The clock is
// injectable for tests; pass nil to use the wall clock.
func NewSweeper(store Store, state *State, lifecycle *Lifecycle, cfg config.TrackingConfig, log *logger.Logger, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:     store,
		state:     state,
		lifecycle: lifecycle,
		cfg:       cfg,
		log:       log.Named("sweeper"),
		now:       now,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.log.Info("Sweeper started", logger.Duration("interval", s.cfg.SweepInterval()))
}

// Stop terminates the sweep loop and waits for it to exit
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce executes one full sweep pass. Failures in one sweep never block
// the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if err := s.sweepNoShow(ctx); err != nil {
		s.log.Error("No-show sweep failed", logger.Error(err))
	}
	if err := s.sweepStalePending(ctx); err != nil {
		s.log.Error("Stale-pending sweep failed", logger.Error(err))
	}
	if err := s.sweepStaleLanded(ctx); err != nil {
		s.log.Error("Stale-landed sweep failed", logger.Error(err))
	}
}

// sweepNoShow reaps tracking entries whose telemetry stopped, or never
// arrived, beyond the not-found grace window. A landed entry with a
// recorded stationary position gets a late completion instead, so a
// restart during the stationary window does not cost the user the flight.
func (s *Sweeper) sweepNoShow(ctx context.Context) error {
	sctx, cancel := s.storeCtx(ctx)
	entries, err := s.store.ListTrackingEntries(sctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to list tracking entries: %w", err)
	}

	now := s.now()
	for _, entry := range entries {
		lastSeen := entry.FirstSeenAt
		if entry.TelemetrySeen {
			lastSeen = entry.LastUpdateAt
		}
		if now.Sub(lastSeen) <= s.cfg.NotFoundGrace() {
			continue
		}

		sctx, cancel := s.storeCtx(ctx)
		flight, err := s.store.GetFlightByID(sctx, entry.FlightID)
		cancel()
		if err != nil {
			s.log.Error("Failed to load flight for no-show entry",
				logger.Int64("flight_id", entry.FlightID), logger.Error(err))
			continue
		}
		if flight == nil || flight.Status.Terminal() {
			s.deleteEntry(ctx, entry.ReporterID)
			continue
		}

		if flight.Status == StatusActive && entry.LandingDetected && entry.StationarySince != nil {
			if err := s.lifecycle.Complete(ctx, flight, entry, entry.Waypoints, now); err != nil {
				s.log.Error("Late completion failed",
					logger.Int64("flight_id", flight.ID), logger.Error(err))
			} else {
				s.evict(entry.ReporterID)
			}
			continue
		}

		s.log.Info("Reaping no-show flight",
			logger.Int64("flight_id", flight.ID),
			logger.Uint32("reporter_id", entry.ReporterID),
			logger.Bool("telemetry_seen", entry.TelemetrySeen))

		sctx, cancel = s.storeCtx(ctx)
		err = s.store.DeleteFlight(sctx, flight.ID)
		cancel()
		if err != nil {
			s.log.Error("Failed to delete no-show flight",
				logger.Int64("flight_id", flight.ID), logger.Error(err))
			continue
		}
		s.deleteEntry(ctx, entry.ReporterID)
		s.notify(ctx, flight.UserID, "error",
			fmt.Sprintf("Flight %s was not found on the network and has been removed.", flight.Callsign))
	}
	return nil
}

// sweepStalePending cancels pending flights older than the pending
// timeout. The cancel is guarded on the flight still being pending, so a
// flight that activated between listing and cancelling is left alone.
func (s *Sweeper) sweepStalePending(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.PendingTimeout())
	sctx, cancel := s.storeCtx(ctx)
	flights, err := s.store.ListPendingCreatedBefore(sctx, cutoff)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to list stale pending flights: %w", err)
	}

	for _, flight := range flights {
		sctx, cancel := s.storeCtx(ctx)
		cancelled, err := s.store.CancelFlight(sctx, flight.ID, s.now())
		cancel()
		if err != nil {
			s.log.Error("Failed to cancel stale pending flight",
				logger.Int64("flight_id", flight.ID), logger.Error(err))
			continue
		}
		if !cancelled {
			continue
		}
		s.deleteEntry(ctx, flight.ReporterID)
		s.notify(ctx, flight.UserID, "info",
			fmt.Sprintf("Flight %s was cancelled: no departure within %d minutes.", flight.Callsign, s.cfg.PendingTimeoutMins))
		s.log.Info("Cancelled stale pending flight", logger.Int64("flight_id", flight.ID))
	}
	return nil
}

// sweepStaleLanded aborts landed flights whose telemetry stopped beyond
// the post-landing timeout without ever completing.
func (s *Sweeper) sweepStaleLanded(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.PostLandingTimeout())
	sctx, cancel := s.storeCtx(ctx)
	entries, err := s.store.ListLandedStale(sctx, cutoff)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to list stale landed entries: %w", err)
	}

	for _, entry := range entries {
		sctx, cancel := s.storeCtx(ctx)
		flight, err := s.store.GetFlightByID(sctx, entry.FlightID)
		cancel()
		if err != nil {
			s.log.Error("Failed to load flight for stale landed entry",
				logger.Int64("flight_id", entry.FlightID), logger.Error(err))
			continue
		}
		if flight == nil || flight.Status != StatusActive {
			s.deleteEntry(ctx, entry.ReporterID)
			continue
		}

		sctx, cancel = s.storeCtx(ctx)
		err = s.store.AbortFlight(sctx, flight.ID, entry.ReporterID, s.now())
		cancel()
		if err != nil {
			s.log.Error("Failed to abort stale landed flight",
				logger.Int64("flight_id", flight.ID), logger.Error(err))
			continue
		}
		s.evict(entry.ReporterID)
		s.notify(ctx, flight.UserID, "info",
			fmt.Sprintf("Flight %s was aborted: contact lost after landing.", flight.Callsign))
		s.log.Info("Aborted stale landed flight", logger.Int64("flight_id", flight.ID))
	}
	return nil
}

func (s *Sweeper) deleteEntry(ctx context.Context, reporterID uint32) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.DeleteTrackingEntry(sctx, reporterID); err != nil {
		s.log.Error("Failed to delete tracking entry",
			logger.Uint32("reporter_id", reporterID), logger.Error(err))
		return
	}
	s.evict(reporterID)
}

func (s *Sweeper) evict(reporterID uint32) {
	if s.state != nil {
		s.state.Untrack(reporterID)
	}
}

func (s *Sweeper) notify(ctx context.Context, userID int64, kind, message string) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n := &Notification{UserID: userID, Kind: kind, Message: message, CreatedAt: s.now()}
	if err := s.store.InsertNotification(sctx, n); err != nil {
		s.log.Error("Failed to insert notification",
			logger.Int64("user_id", userID), logger.Error(err))
	}
}

func (s *Sweeper) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout())
}
