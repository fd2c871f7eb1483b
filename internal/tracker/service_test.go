package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/flighttrack/internal/airports"
	"github.com/yegors/flighttrack/internal/wire"
	"github.com/yegors/flighttrack/pkg/logger"
)

// stubWaypointSource delivers a fixed waypoint set and signals when the
// stream has drained
type stubWaypointSource struct {
	waypoints []Waypoint
	streamed  chan struct{}
}

func (s *stubWaypointSource) Stream(ctx context.Context, reporterID uint32, deliver func(Waypoint)) error {
	for _, w := range s.waypoints {
		deliver(w)
	}
	close(s.streamed)
	return nil
}

func trafficRecord(x, altFt, speedKts float64) wire.AircraftRecord {
	return wire.AircraftRecord{
		NetworkID:   7,
		Callsign:    "ABC123",
		ReporterID:  42,
		X:           x,
		Y:           0,
		AltitudeFt:  altFt,
		GroundSpeed: speedKts,
	}
}

func TestServiceFullFlight(t *testing.T) {
	store := newMemStore()
	clock := newTestClock()
	flight, _ := pendingFixture(store, clock)
	table := airports.NewTable(map[string]float64{"SFD": 0, "NHL": 0})
	src := &stubWaypointSource{
		waypoints: []Waypoint{
			{RateFPM: -420, Runway: "24R", Airport: "NHL", At: clock.Now()},
			{RateFPM: -120, Runway: "24R", Airport: "NHL", At: clock.Now().Add(2 * time.Second)},
		},
		streamed: make(chan struct{}),
	}
	state := NewState()
	svc := NewService(store, state, table, src, testTrackingConfig(), logger.NewNop(), clock.Now)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	// Recovery picked up the persisted entry
	entry, tracked := state.Entry(42)
	require.True(t, tracked)
	assert.Equal(t, int64(1), entry.FlightID)

	// Holding at the gate: pending, no movement, no telemetry stored
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(0, 10, 0)})
	entry, _ = state.Entry(42)
	assert.Equal(t, PhaseAwaitingClearance, entry.Phase)
	assert.Equal(t, StatusPending, store.flightStatus(flight.ID))
	points, _ := store.GetFlightTelemetry(context.Background(), flight.ID)
	assert.Empty(t, points)

	// Rolling: the flight activates and telemetry sampling begins
	clock.Advance(5 * time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(500, 10, 40)})
	assert.Equal(t, StatusActive, store.flightStatus(flight.ID))
	points, _ = store.GetFlightTelemetry(context.Background(), flight.ID)
	assert.Len(t, points, 1)

	// Within the sampling interval: no second point
	clock.Advance(time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(600, 10, 45)})
	points, _ = store.GetFlightTelemetry(context.Background(), flight.ID)
	assert.Len(t, points, 1)

	// Airborne
	clock.Advance(10 * time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(2000, 600, 130)})
	points, _ = store.GetFlightTelemetry(context.Background(), flight.ID)
	assert.Len(t, points, 2)

	// Touchdown: landing detected, the waypoint collector runs
	clock.Advance(10 * time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(4000, 30, 65)})
	entry, _ = state.Entry(42)
	require.True(t, entry.LandingDetected)

	select {
	case <-src.streamed:
	case <-time.After(time.Second):
		t.Fatal("waypoint collector never ran")
	}
	assert.Len(t, state.Waypoints(42), 2)

	// Rolling to the gate, then stationary through the completion window
	clock.Advance(10 * time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(4500, 10, 0)})
	clock.Advance(121 * time.Second)
	svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(4500, 10, 0)})

	assert.Equal(t, StatusCompleted, store.flightStatus(flight.ID))
	assert.False(t, store.hasEntry(42))
	_, tracked = state.Entry(42)
	assert.False(t, tracked)

	require.Len(t, store.finalizations, 1)
	fin := store.finalizations[0]
	assert.Equal(t, -420.0, fin.LandingRateFPM)
	assert.Equal(t, "24R", fin.LandingRunway)
	assert.Equal(t, "NHL", fin.LandingAirport)
}

func TestServiceIgnoresUntrackedReporters(t *testing.T) {
	store := newMemStore()
	clock := newTestClock()
	table := airports.NewTable(map[string]float64{})
	state := NewState()
	src := &stubWaypointSource{streamed: make(chan struct{})}
	svc := NewService(store, state, table, src, testTrackingConfig(), logger.NewNop(), clock.Now)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	rec := trafficRecord(0, 3000, 200)
	rec.ReporterID = 99
	svc.HandleTraffic([]wire.AircraftRecord{rec})
	svc.HandleTraffic([]wire.AircraftRecord{rec})

	_, tracked := state.Entry(99)
	assert.False(t, tracked)
	// The negative lookup is cached
	assert.True(t, state.RecentMiss(99, clock.Now()))
}

func TestServiceReadsDuringIngest(t *testing.T) {
	store := newMemStore()
	clock := newTestClock()
	_, _ = pendingFixture(store, clock)
	table := airports.NewTable(map[string]float64{"SFD": 0, "NHL": 0})
	state := NewState()
	src := &stubWaypointSource{streamed: make(chan struct{})}
	svc := NewService(store, state, table, src, testTrackingConfig(), logger.NewNop(), clock.Now)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	// One goroutine ingests while another reads the live views and a
	// collector-style append lands between commits. Run under -race.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 500; i++ {
			svc.HandleTraffic([]wire.AircraftRecord{trafficRecord(float64(i%10), 10, 0)})
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, tf := range svc.TrackedFlights() {
				_ = tf.Phase
			}
			svc.DescentSamplesFor(42)
			svc.Status()
			state.AppendWaypoint(42, Waypoint{RateFPM: -200, At: clock.Now()})
		}
	}()
	wg.Wait()

	entry, tracked := state.Entry(42)
	require.True(t, tracked)
	assert.Equal(t, PhaseAwaitingClearance, entry.Phase)
}

func TestServiceStatus(t *testing.T) {
	store := newMemStore()
	clock := newTestClock()
	_, _ = pendingFixture(store, clock)
	table := airports.NewTable(map[string]float64{"SFD": 0, "NHL": 0})
	state := NewState()
	src := &stubWaypointSource{streamed: make(chan struct{})}
	svc := NewService(store, state, table, src, testTrackingConfig(), logger.NewNop(), clock.Now)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	status := svc.Status()
	assert.Equal(t, 1, status.TrackedFlights)
	assert.Equal(t, 0, status.ActiveCollectors)

	flights := svc.TrackedFlights()
	require.Len(t, flights, 1)
	assert.Equal(t, "ABC123", flights[0].Callsign)
	assert.Equal(t, StatusPending, flights[0].Status)
}
