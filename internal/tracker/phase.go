package tracker

// Phase detection reconciles two independent signal sources: the
// operator-reported status code set by a controller, and raw telemetry.
// Operator codes win where they are trustworthy; telemetry takes over for
// everything a controller cannot see (enroute flight, stale codes).

// PhaseInput is everything the detector looks at. It is a pure function of
// this input: no side effects, no store access, re-derivable from stored
// telemetry.
type PhaseInput struct {
	Current  Snapshot
	Previous *Snapshot // nil on the first sample for an aircraft

	// OperatorStatus is the controller-set short code, empty when none
	OperatorStatus string

	// ElevationFt is the field elevation of the relevant airport:
	// the departure field while the flight is pending, the arrival field
	// afterwards.
	ElevationFt float64

	Status          Status
	LandingDetected bool
}

// atGroundLevel reports whether an altitude is within the phase buffer of
// field elevation
func atGroundLevel(altitudeFt, elevationFt float64) bool {
	return altitudeFt <= elevationFt+groundBufferFt
}

// DetectPhase classifies a single position report into a flight phase.
// Precedence is evaluated top to bottom, first match wins.
func DetectPhase(in PhaseInput) Phase {
	cur := in.Current
	onGround := atGroundLevel(cur.AltitudeFt, in.ElevationFt)

	// 1. Pending flight sitting at the field: awaiting clearance
	if in.Status == StatusPending && onGround && cur.GroundSpeedKts <= lowSpeedThresholdKts {
		return PhaseAwaitingClearance
	}

	// 2. Operator-reported ground ops map directly
	switch in.OperatorStatus {
	case OpStatusPush:
		return PhasePushback
	case OpStatusTaxiOut:
		return PhaseTaxiOut
	case OpStatusTaxiIn:
		return PhaseTaxiIn
	case OpStatusRunwayOut:
		return PhaseTakeoffRoll
	case OpStatusRunwayIn:
		return PhaseRollout
	case OpStatusGate:
		return PhaseParked
	case OpStatusTaxi, OpStatusRunway:
		// Generic code without an origin/destination distinction:
		// disambiguate from ground state, speed and whether landing has
		// already been detected. An airborne aircraft with a stale ground
		// code falls through to telemetry.
		if onGround {
			if cur.GroundSpeedKts >= runwaySpeedKts {
				if in.LandingDetected {
					return PhaseRollout
				}
				return PhaseTakeoffRoll
			}
			if in.LandingDetected {
				return PhaseTaxiIn
			}
			return PhaseTaxiOut
		}
	case OpStatusDeparture:
		// Honored only below the cruise ceiling; above it nobody is
		// reporting center-sector status, so telemetry takes over.
		if cur.AltitudeFt < cruiseAltitudeCeilingFt {
			return PhaseClimb
		}
	case OpStatusApproach:
		return PhaseApproach
	}

	// 3. Telemetry-only fallback
	if onGround {
		// Never infer "parked" from telemetry alone: a holding aircraft
		// would otherwise flap between parked and taxi.
		if cur.GroundSpeedKts > taxiMinSpeedKts {
			return PhaseTaxi
		}
		return PhaseUnknown
	}

	verticalSpeed := cur.VerticalSpeedFPM(in.Previous)
	switch {
	case verticalSpeed >= climbRateFPM:
		return PhaseClimb
	case verticalSpeed > -levelRateFPM && verticalSpeed < levelRateFPM && cur.AltitudeFt >= cruiseFloorFt:
		return PhaseCruise
	case verticalSpeed < 0 && cur.AltitudeFt > approachCeilingFt:
		return PhaseDescent
	case verticalSpeed < 0 && cur.AltitudeFt > landingCeilingFt:
		return PhaseApproach
	case verticalSpeed < 0:
		return PhaseLanding
	default:
		return PhaseUnknown
	}
}
