package tracker

import "time"

// Status is the coarse lifecycle state of a flight
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusCancelled
}

// Phase is the fine-grained, ephemeral label describing current flight
// activity, distinct from lifecycle status
type Phase string

const (
	PhaseAwaitingClearance Phase = "awaiting_clearance"
	PhasePushback          Phase = "pushback"
	PhaseTaxiOut           Phase = "taxi_out"
	PhaseTaxiIn            Phase = "taxi_in"
	PhaseTaxi              Phase = "taxi"
	PhaseTakeoffRoll       Phase = "takeoff_roll"
	PhaseRollout           Phase = "rollout"
	PhaseParked            Phase = "parked"
	PhaseClimb             Phase = "climb"
	PhaseCruise            Phase = "cruise"
	PhaseDescent           Phase = "descent"
	PhaseApproach          Phase = "approach"
	PhaseLanding           Phase = "landing"
	PhaseUnknown           Phase = "unknown"
)

// Operator status codes reported by controllers. These take precedence over
// telemetry-derived phase inference when present.
const (
	OpStatusPush      = "PUSH" // pushback / engine start
	OpStatusTaxiOut   = "TXO"  // taxi at origin
	OpStatusTaxiIn    = "TXI"  // taxi at destination
	OpStatusRunwayOut = "RWO"  // lined up / rolling at origin
	OpStatusRunwayIn  = "RWI"  // rollout at destination
	OpStatusTaxi      = "TAX"  // generic taxi, no origin/destination distinction
	OpStatusRunway    = "RWY"  // generic runway, no origin/destination distinction
	OpStatusDeparture = "DEP"  // departure / initial climb
	OpStatusApproach  = "APP"  // approach
	OpStatusGate      = "GTE"  // arrived at gate
)

// Snapshot is the most recent accepted position report for one tracked
// aircraft. It is owned exclusively by the ingestion pipeline and replaced
// wholesale on every accepted update.
type Snapshot struct {
	ReporterID     uint32
	Callsign       string
	X              float64
	Y              float64
	AltitudeFt     float64
	GroundSpeedKts float64
	Heading        float64
	Model          string
	Livery         string
	CapturedAt     time.Time
}

// VerticalSpeedFPM derives vertical speed in feet per minute from the
// altitude/time delta between this snapshot and a previous one. Returns 0
// when no previous snapshot exists or the timestamps coincide.
func (s *Snapshot) VerticalSpeedFPM(prev *Snapshot) float64 {
	if prev == nil {
		return 0
	}
	dt := s.CapturedAt.Sub(prev.CapturedAt).Minutes()
	if dt <= 0 {
		return 0
	}
	return (s.AltitudeFt - prev.AltitudeFt) / dt
}

// FlightRecord is the persistent record of a submitted flight
type FlightRecord struct {
	ID             int64
	UserID         int64
	ReporterID     uint32
	Callsign       string
	Departure      string
	Arrival        string
	Status         Status
	OperatorStatus *string // short code set by a controller, nil when none
	Controlled     bool    // a controller has taken ownership of this flight
	ShareToken     string

	CreatedAt   time.Time
	ActivatedAt *time.Time
	LandedAt    *time.Time
	EndedAt     *time.Time

	// Aggregate stats, populated at finalize
	DurationSecs    *int64
	DistanceNM      *float64
	MaxAltitudeFt   *float64
	MaxSpeedKts     *float64
	AvgSpeedKts     *float64
	LandingRateFPM  *float64
	SmoothnessScore *float64
	LandingScore    *float64
	LandingRunway   *string
	LandingAirport  *string
}

// AltitudeSample is one entry of the bounded descent buffer kept on a
// tracking entry, used for the telemetry-derived landing rate fallback
type AltitudeSample struct {
	AltitudeFt float64   `json:"alt"`
	At         time.Time `json:"at"`
}

// Waypoint is a precision touchdown record received on the secondary
// channel. The set collected for a flight is reduced to one representative
// waypoint at finalize and then discarded.
type Waypoint struct {
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Airport string    `json:"airport"`
	Runway  string    `json:"runway"`
	RateFPM float64   `json:"rate_fpm"`
	At      time.Time `json:"at"`
}

// TrackingEntry is the persistent per-reporter tracking state for a flight
// currently in pending or active status. At most one entry exists per
// reporter identity. The in-memory copy held by the engine is authoritative
// while the engine runs; it is written through to the store and read back
// only on recovery.
type TrackingEntry struct {
	ReporterID uint32
	FlightID   int64
	Phase      Phase

	// Last known kinematics
	LastX          float64
	LastY          float64
	LastAltitudeFt float64
	LastSpeedKts   float64
	LastHeading    float64
	LastUpdateAt   time.Time

	FirstSeenAt   time.Time // when tracking started
	TelemetrySeen bool      // whether any telemetry has ever arrived

	TakeoffDetected bool
	LandingDetected bool

	// Initial position, recorded on first telemetry, immutable afterwards
	InitialX  *float64
	InitialAt *time.Time
	InitialY  *float64

	MovementStarted bool
	MovementAt      *time.Time

	// Stationary tracking for gate-arrival detection
	StationaryX     *float64
	StationaryY     *float64
	StationarySince *time.Time

	// Bounded rolling buffer of descent altitude samples (landing-rate fallback)
	DescentSamples []AltitudeSample

	// Waypoints accumulated during the post-landing collection window
	Waypoints []Waypoint
}

// clone returns a copy safe to mutate independently of the original. The
// descent buffer is copied deeply; the waypoint slice is append-only, so
// sharing its backing array is safe.
func (e *TrackingEntry) clone() *TrackingEntry {
	cp := *e
	if len(e.DescentSamples) > 0 {
		cp.DescentSamples = make([]AltitudeSample, len(e.DescentSamples))
		copy(cp.DescentSamples, e.DescentSamples)
	}
	return &cp
}

// PushDescentSample appends an altitude sample, keeping only the most
// recent descentSampleMax entries
func (e *TrackingEntry) PushDescentSample(s AltitudeSample) {
	e.DescentSamples = append(e.DescentSamples, s)
	if len(e.DescentSamples) > descentSampleMax {
		e.DescentSamples = e.DescentSamples[len(e.DescentSamples)-descentSampleMax:]
	}
}

// TelemetryPoint is one stored, append-only telemetry sample
type TelemetryPoint struct {
	FlightID         int64
	At               time.Time
	X                float64
	Y                float64
	AltitudeFt       float64
	SpeedKts         float64
	Heading          float64
	VerticalSpeedFPM float64
	Phase            Phase
}

// Notification is a user-facing message emitted through the store
type Notification struct {
	UserID    int64
	Kind      string // "error" or "info"
	Message   string
	CreatedAt time.Time
}

// FlightFinalization carries everything the store needs to complete a
// flight atomically: the status transition, the aggregate stats and the
// tracking-entry removal happen in one transaction.
type FlightFinalization struct {
	FlightID   int64
	ReporterID uint32

	EndedAt  time.Time
	LandedAt *time.Time

	DurationSecs    int64
	DistanceNM      float64
	MaxAltitudeFt   float64
	MaxSpeedKts     float64
	AvgSpeedKts     float64
	LandingRateFPM  float64
	SmoothnessScore float64
	LandingScore    float64

	// Waypoint-derived, empty when no waypoints were collected
	LandingRunway  string
	LandingAirport string
}
