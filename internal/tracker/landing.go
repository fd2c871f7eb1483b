package tracker

import "math"

// LandingDetected reports ground contact: the previous sample was clearly
// airborne, the current one is within the landing buffer of field
// elevation at low ground speed. Used once per flight; the caller latches
// the result on the tracking entry.
func LandingDetected(prev *Snapshot, cur Snapshot, elevationFt float64) bool {
	if prev == nil {
		return false
	}
	wasAirborne := prev.AltitudeFt > elevationFt+airborneFloorFt
	nowOnGround := cur.AltitudeFt <= elevationFt+landingAltBufferFt
	return wasAirborne && nowOnGround && cur.GroundSpeedKts <= landingMaxSpeedKts
}

// SelectLandingWaypoint reduces the collected waypoint set to the single
// representative touchdown. The newest waypoint anchors a trailing cluster
// window; within the cluster the waypoint with the largest absolute rate
// wins, because a bounce can otherwise mask the true touchdown rate. The
// cluster boundary is inclusive: a waypoint exactly at the window edge is
// kept. Returns nil when no waypoints were collected.
func SelectLandingWaypoint(waypoints []Waypoint) *Waypoint {
	if len(waypoints) == 0 {
		return nil
	}

	newest := waypoints[0].At
	for _, w := range waypoints[1:] {
		if w.At.After(newest) {
			newest = w.At
		}
	}

	var selected *Waypoint
	for i := range waypoints {
		w := &waypoints[i]
		if newest.Sub(w.At) > waypointClusterWindow {
			continue
		}
		if selected == nil || math.Abs(w.RateFPM) > math.Abs(selected.RateFPM) {
			selected = w
		}
	}
	return selected
}
