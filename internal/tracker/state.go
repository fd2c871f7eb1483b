package tracker

import (
	"sync"
	"time"
)

// missCacheTTL bounds how often an untracked reporter triggers a store
// lookup. Most traffic on the network is not ours; without the cache
// every frame would hit the database once per unknown aircraft.
const missCacheTTL = 30 * time.Second

// State is the in-process mutable state shared between the ingestion
// pipeline, the waypoint collectors, the sweeper and the API: latest
// snapshots, telemetry sampling timestamps, the authoritative tracking
// entries and their flight records, plus a negative-lookup cache for
// reporters that have no tracked flight.
//
// Map values never leave the lock: accessors hand out copies, the
// pipeline mutates its copy and publishes it back with CommitEntry, and
// the only in-place mutation is the collector's waypoint append. A
// published FlightRecord is immutable; refreshes replace it wholesale.
type State struct {
	mu            sync.RWMutex
	snapshots     map[uint32]*Snapshot
	lastTelemetry map[uint32]time.Time
	entries       map[uint32]*TrackingEntry
	flights       map[uint32]*FlightRecord
	misses        map[uint32]time.Time
}

// NewState creates an empty state container
func NewState() *State {
	return &State{
		snapshots:     make(map[uint32]*Snapshot),
		lastTelemetry: make(map[uint32]time.Time),
		entries:       make(map[uint32]*TrackingEntry),
		flights:       make(map[uint32]*FlightRecord),
		misses:        make(map[uint32]time.Time),
	}
}

// Snapshot returns the latest accepted snapshot for a reporter
func (s *State) Snapshot(reporterID uint32) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[reporterID]
	return snap, ok
}

// SetSnapshot replaces the snapshot for a reporter wholesale
func (s *State) SetSnapshot(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ReporterID] = snap
}

// LastTelemetry returns when telemetry was last sampled for a reporter
func (s *State) LastTelemetry(reporterID uint32) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastTelemetry[reporterID]
	return t, ok
}

// SetLastTelemetry records a telemetry sampling timestamp
func (s *State) SetLastTelemetry(reporterID uint32, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTelemetry[reporterID] = t
}

// Entry returns a copy of the tracking entry for a reporter, if tracked.
// The caller may mutate the copy freely and publish it with CommitEntry.
func (s *State) Entry(reporterID uint32) (*TrackingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[reporterID]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Entries returns value copies of all tracked entries
func (s *State) Entries() []TrackingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackingEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Track installs copies of a tracking entry and its flight record,
// clearing any negative-cache mark for the reporter
func (s *State) Track(entry *TrackingEntry, flight *FlightRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ReporterID] = entry.clone()
	if flight != nil {
		cp := *flight
		s.flights[entry.ReporterID] = &cp
	}
	delete(s.misses, entry.ReporterID)
}

// CommitEntry publishes the pipeline's updated entry as the shared copy.
// Waypoints may have been appended by a collector since the entry was
// read, so the shared waypoint slice is carried over before the swap.
// Reports false when the reporter is no longer tracked.
func (s *State) CommitEntry(entry *TrackingEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[entry.ReporterID]
	if !ok {
		return false
	}
	entry.Waypoints = cur.Waypoints
	s.entries[entry.ReporterID] = entry.clone()
	return true
}

// Flight returns a copy of the cached flight record for a tracked reporter
func (s *State) Flight(reporterID uint32) (*FlightRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flights[reporterID]
	if !ok {
		return nil, false
	}
	cp := *f
	return &cp, true
}

// SetFlight refreshes the cached flight record for a reporter
func (s *State) SetFlight(reporterID uint32, flight *FlightRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *flight
	s.flights[reporterID] = &cp
}

// AppendWaypoint adds a collected waypoint to a tracked entry. Waypoints
// arrive on collector goroutines; this is the one in-place mutation of a
// shared entry, and CommitEntry carries the appended slice across
// pipeline publishes. Reports false when the reporter is no longer
// tracked.
func (s *State) AppendWaypoint(reporterID uint32, w Waypoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[reporterID]
	if !ok {
		return false
	}
	e.Waypoints = append(e.Waypoints, w)
	return true
}

// Waypoints returns a copy of the waypoints collected for a reporter
func (s *State) Waypoints(reporterID uint32) []Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[reporterID]
	if !ok || len(e.Waypoints) == 0 {
		return nil
	}
	out := make([]Waypoint, len(e.Waypoints))
	copy(out, e.Waypoints)
	return out
}

// Untrack removes all per-reporter state. Called when a flight reaches a
// terminal status or its entry is swept.
func (s *State) Untrack(reporterID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, reporterID)
	delete(s.flights, reporterID)
	delete(s.snapshots, reporterID)
	delete(s.lastTelemetry, reporterID)
}

// NoteMiss records that a store lookup for a reporter found no tracked
// flight, suppressing further lookups for the cache TTL
func (s *State) NoteMiss(reporterID uint32, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses[reporterID] = at
}

// RecentMiss reports whether a negative lookup for the reporter is still
// fresh enough to skip the store
func (s *State) RecentMiss(reporterID uint32, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.misses[reporterID]
	return ok && now.Sub(t) < missCacheTTL
}
