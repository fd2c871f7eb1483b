package tracker

import "time"

// Classification thresholds. These are protocol- and physics-level
// constants rather than tunables, so they live here instead of the config.
const (
	// Ground-level test: altitude within this buffer of field elevation.
	// The phase detector uses a tight buffer so the final feet of a
	// descent still classify as landing rather than taxi.
	groundBufferFt = 25.0

	// Landing detection: previous sample clearly airborne, current sample
	// within the landing buffer of field elevation at low ground speed.
	landingAltBufferFt = 50.0
	landingMaxSpeedKts = 80.0
	airborneFloorFt    = 100.0

	// Speed thresholds on the ground
	lowSpeedThresholdKts = 30.0 // "slow" for awaiting-clearance detection
	taxiMinSpeedKts      = 5.0  // below this, ground movement is not taxi
	runwaySpeedKts       = 40.0 // generic-code disambiguation: rolling on a runway
	stationarySpeedKts   = 5.0  // stationary test for gate arrival

	// Airborne classification
	climbRateFPM            = 300.0   // climbing faster than this is climb
	levelRateFPM            = 150.0   // |vertical speed| below this is level flight
	cruiseFloorFt           = 5000.0  // level flight above this is cruise
	approachCeilingFt       = 3000.0  // descending at/below this is approach
	landingCeilingFt        = 500.0   // descending at/below this is landing
	cruiseAltitudeCeilingFt = 10000.0 // operator DEP code honored only below this

	// Descent buffer for the landing-rate fallback
	descentSampleMax      = 30
	descentSampleCutoffFt = 3000.0

	// Waypoint selection: trailing cluster window behind the newest
	// collected waypoint, inclusive at the boundary
	waypointClusterWindow = 90 * time.Second

	// Average speed excludes taxi/stationary points
	avgSpeedMinKts = 50.0
)
