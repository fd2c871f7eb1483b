package tracker

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store used by lifecycle and sweeper tests. It
// mirrors the sqlite implementation's guard semantics: status transitions
// only apply from the expected current status, deletes of missing rows
// are no-ops.
type memStore struct {
	mu             sync.Mutex
	flights        map[int64]*FlightRecord
	entries        map[uint32]*TrackingEntry
	telemetry      map[int64][]TelemetryPoint
	notifications  []Notification
	finalizations  []FlightFinalization
	statsRefreshes []int64
}

func newMemStore() *memStore {
	return &memStore{
		flights:   make(map[int64]*FlightRecord),
		entries:   make(map[uint32]*TrackingEntry),
		telemetry: make(map[int64][]TelemetryPoint),
	}
}

func (m *memStore) addFlight(f *FlightRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights[f.ID] = f
}

func (m *memStore) addEntry(e *TrackingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ReporterID] = e
}

func (m *memStore) GetFlightByID(ctx context.Context, id int64) (*FlightRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) ActivateFlight(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[id]; ok && f.Status == StatusPending {
		f.Status = StatusActive
		f.ActivatedAt = &at
	}
	return nil
}

func (m *memStore) MarkFlightLanded(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[id]; ok && f.LandedAt == nil {
		f.LandedAt = &at
	}
	return nil
}

func (m *memStore) CompleteFlight(ctx context.Context, fin FlightFinalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[fin.FlightID]; ok && f.Status == StatusActive {
		f.Status = StatusCompleted
		f.EndedAt = &fin.EndedAt
		f.LandingRateFPM = &fin.LandingRateFPM
		f.LandingScore = &fin.LandingScore
		f.SmoothnessScore = &fin.SmoothnessScore
		f.DistanceNM = &fin.DistanceNM
		if fin.LandingRunway != "" {
			runway := fin.LandingRunway
			f.LandingRunway = &runway
		}
		if fin.LandingAirport != "" {
			airport := fin.LandingAirport
			f.LandingAirport = &airport
		}
		delete(m.entries, fin.ReporterID)
		m.finalizations = append(m.finalizations, fin)
	}
	return nil
}

func (m *memStore) AbortFlight(ctx context.Context, id int64, reporterID uint32, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[id]; ok && f.Status == StatusActive {
		f.Status = StatusAborted
		f.EndedAt = &at
		delete(m.entries, reporterID)
	}
	return nil
}

func (m *memStore) CancelFlight(ctx context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[id]; ok && f.Status == StatusPending {
		f.Status = StatusCancelled
		f.EndedAt = &at
		return true, nil
	}
	return false, nil
}

func (m *memStore) DeleteFlight(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flights, id)
	delete(m.telemetry, id)
	return nil
}

func (m *memStore) GetTrackingEntry(ctx context.Context, reporterID uint32) (*TrackingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[reporterID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListTrackingEntries(ctx context.Context) ([]*TrackingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TrackingEntry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpsertTrackingEntry(ctx context.Context, e *TrackingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ReporterID] = &cp
	return nil
}

func (m *memStore) DeleteTrackingEntry(ctx context.Context, reporterID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, reporterID)
	return nil
}

func (m *memStore) AppendWaypoints(ctx context.Context, reporterID uint32, waypoints []Waypoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[reporterID]; ok {
		e.Waypoints = append(e.Waypoints, waypoints...)
	}
	return nil
}

func (m *memStore) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*FlightRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FlightRecord
	for _, f := range m.flights {
		if f.Status == StatusPending && f.CreatedAt.Before(cutoff) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListLandedStale(ctx context.Context, cutoff time.Time) ([]*TrackingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TrackingEntry
	for _, e := range m.entries {
		if e.LandingDetected && e.LastUpdateAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) AppendTelemetry(ctx context.Context, p *TelemetryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telemetry[p.FlightID] = append(m.telemetry[p.FlightID], *p)
	return nil
}

func (m *memStore) GetFlightTelemetry(ctx context.Context, flightID int64) ([]TelemetryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points := make([]TelemetryPoint, len(m.telemetry[flightID]))
	copy(points, m.telemetry[flightID])
	return points, nil
}

func (m *memStore) InsertNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memStore) RefreshUserStats(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsRefreshes = append(m.statsRefreshes, userID)
	return nil
}

func (m *memStore) flightStatus(id int64) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[id]; ok {
		return f.Status
	}
	return ""
}

func (m *memStore) hasFlight(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flights[id]
	return ok
}

func (m *memStore) hasEntry(reporterID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[reporterID]
	return ok
}

func (m *memStore) notificationKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, len(m.notifications))
	for i, n := range m.notifications {
		kinds[i] = n.Kind
	}
	return kinds
}

var _ Store = (*memStore)(nil)
