package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var phaseBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// snapAt builds a snapshot captured a given number of seconds after the
// test epoch
func snapAt(altFt, speedKts float64, secs int) Snapshot {
	return Snapshot{
		ReporterID:     42,
		AltitudeFt:     altFt,
		GroundSpeedKts: speedKts,
		CapturedAt:     phaseBase.Add(time.Duration(secs) * time.Second),
	}
}

// descending builds a previous/current pair with the given vertical speed
// in feet per minute, ten seconds apart
func withVerticalSpeed(altFt, speedKts, fpm float64) (prev *Snapshot, cur Snapshot) {
	p := snapAt(altFt-fpm/6, speedKts, 0) // 10s = 1/6 min
	c := snapAt(altFt, speedKts, 10)
	return &p, c
}

func TestDetectPhaseTelemetryFallback(t *testing.T) {
	tests := []struct {
		name  string
		altFt float64
		speed float64
		fpm   float64
		want  Phase
	}{
		{"climb", 1500, 160, 1200, PhaseClimb},
		{"cruise level high", 9000, 250, 0, PhaseCruise},
		{"descent above approach band", 5000, 220, -800, PhaseDescent},
		{"approach below three thousand", 2000, 140, -700, PhaseApproach},
		{"landing short final", 300, 120, -600, PhaseLanding},
		{"landing in the flare", 40, 75, -300, PhaseLanding},
		{"level low is unknown", 1200, 100, 0, PhaseUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, cur := withVerticalSpeed(tt.altFt, tt.speed, tt.fpm)
			got := DetectPhase(PhaseInput{
				Current:  cur,
				Previous: prev,
				Status:   StatusActive,
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPhaseGround(t *testing.T) {
	// Moving on the ground without an operator code is generic taxi
	got := DetectPhase(PhaseInput{Current: snapAt(10, 12, 0), Status: StatusActive})
	assert.Equal(t, PhaseTaxi, got)

	// Stationary on the ground is never inferred as parked
	got = DetectPhase(PhaseInput{Current: snapAt(10, 0, 0), Status: StatusActive})
	assert.Equal(t, PhaseUnknown, got)
}

func TestDetectPhaseAwaitingClearance(t *testing.T) {
	got := DetectPhase(PhaseInput{Current: snapAt(10, 0, 0), Status: StatusPending})
	assert.Equal(t, PhaseAwaitingClearance, got)

	// Same situation at a high-elevation field
	got = DetectPhase(PhaseInput{
		Current:     snapAt(5050, 2, 0),
		Status:      StatusPending,
		ElevationFt: 5045,
	})
	assert.Equal(t, PhaseAwaitingClearance, got)

	// Too fast to be holding short
	got = DetectPhase(PhaseInput{Current: snapAt(10, 45, 0), Status: StatusPending})
	assert.NotEqual(t, PhaseAwaitingClearance, got)
}

func TestDetectPhaseOperatorCodes(t *testing.T) {
	tests := []struct {
		code string
		want Phase
	}{
		{OpStatusPush, PhasePushback},
		{OpStatusTaxiOut, PhaseTaxiOut},
		{OpStatusTaxiIn, PhaseTaxiIn},
		{OpStatusRunwayOut, PhaseTakeoffRoll},
		{OpStatusRunwayIn, PhaseRollout},
		{OpStatusGate, PhaseParked},
		{OpStatusApproach, PhaseApproach},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := DetectPhase(PhaseInput{
				Current:        snapAt(10, 10, 0),
				OperatorStatus: tt.code,
				Status:         StatusActive,
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPhaseGenericCodes(t *testing.T) {
	// Generic codes disambiguate from ground state, speed and landing
	tests := []struct {
		name            string
		altFt           float64
		speed           float64
		landingDetected bool
		want            Phase
	}{
		{"slow before landing", 10, 15, false, PhaseTaxiOut},
		{"slow after landing", 10, 15, true, PhaseTaxiIn},
		{"fast before landing", 10, 60, false, PhaseTakeoffRoll},
		{"fast after landing", 10, 60, true, PhaseRollout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectPhase(PhaseInput{
				Current:         snapAt(tt.altFt, tt.speed, 0),
				OperatorStatus:  OpStatusTaxi,
				Status:          StatusActive,
				LandingDetected: tt.landingDetected,
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPhaseStaleGroundCodeAirborne(t *testing.T) {
	// An airborne aircraft with a leftover generic runway code classifies
	// from telemetry instead
	prev, cur := withVerticalSpeed(1500, 160, 1200)
	got := DetectPhase(PhaseInput{
		Current:        cur,
		Previous:       prev,
		OperatorStatus: OpStatusRunway,
		Status:         StatusActive,
	})
	assert.Equal(t, PhaseClimb, got)
}

func TestDetectPhaseDepartureCodeCeiling(t *testing.T) {
	prev, cur := withVerticalSpeed(8000, 250, 200)
	got := DetectPhase(PhaseInput{
		Current:        cur,
		Previous:       prev,
		OperatorStatus: OpStatusDeparture,
		Status:         StatusActive,
	})
	assert.Equal(t, PhaseClimb, got)

	// Above the ceiling the code is stale; level flight up high is cruise
	prev, cur = withVerticalSpeed(12000, 300, 0)
	got = DetectPhase(PhaseInput{
		Current:        cur,
		Previous:       prev,
		OperatorStatus: OpStatusDeparture,
		Status:         StatusActive,
	})
	assert.Equal(t, PhaseCruise, got)
}

func TestDetectPhaseGateCodeWinsOverTelemetry(t *testing.T) {
	// The gate code is honored even when telemetry alone would say taxi
	got := DetectPhase(PhaseInput{
		Current:        snapAt(10, 12, 0),
		OperatorStatus: OpStatusGate,
		Status:         StatusActive,
	})
	assert.Equal(t, PhaseParked, got)
}

func TestDetectPhaseDeterministic(t *testing.T) {
	prev, cur := withVerticalSpeed(5000, 220, -800)
	in := PhaseInput{Current: cur, Previous: prev, Status: StatusActive}
	first := DetectPhase(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DetectPhase(in))
	}
}

func TestDetectPhaseNoPrevious(t *testing.T) {
	// Without a previous snapshot vertical speed is zero; an airborne
	// aircraft below the cruise floor cannot be classified
	got := DetectPhase(PhaseInput{Current: snapAt(2000, 150, 0), Status: StatusActive})
	assert.Equal(t, PhaseUnknown, got)
}
