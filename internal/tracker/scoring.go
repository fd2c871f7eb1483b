package tracker

import (
	"math"
	"time"

	"github.com/yegors/flighttrack/internal/geo"
)

// Scoring derives quality metrics from accumulated telemetry. Two
// smoothness formulas and two landing-score scales exist side by side:
// the finalize pipeline uses SmoothnessScore and LandingScore, live views
// use LiveSmoothnessScore and ContinuousLandingScore. They intentionally
// compute the "same" concepts differently and are kept as distinct named
// operations pending product clarification; do not unify them.

// FallbackLandingRateFPM estimates the landing rate from the descent
// buffer when no waypoint was collected: altitude change over elapsed time
// between the first and last buffered sample, converted to feet per
// minute, sign-flipped so a descent yields a positive sink rate.
func FallbackLandingRateFPM(samples []AltitudeSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	first := samples[0]
	last := samples[len(samples)-1]
	elapsed := last.At.Sub(first.At).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return -(last.AltitudeFt - first.AltitudeFt) / elapsed
}

// LandingScore maps |landing rate| to a score on the stepped scale used at
// finalize
func LandingScore(landingRateFPM float64) float64 {
	rate := math.Abs(landingRateFPM)
	switch {
	case rate <= 100:
		return 100
	case rate <= 200:
		return 90
	case rate <= 300:
		return 80
	case rate <= 400:
		return 70
	case rate <= 500:
		return 60
	case rate <= 600:
		return 50
	case rate <= 700:
		return 40
	case rate <= 800:
		return 30
	default:
		return 20
	}
}

// ContinuousLandingScore maps |landing rate| to a score on the continuous
// scale used for live views, interpolating within bands:
// <100 -> 100, 100-300 -> 100..80, 300-600 -> 80..60, 600-1000 -> 60..20,
// beyond 1000 the score decays toward 0.
func ContinuousLandingScore(landingRateFPM float64) float64 {
	rate := math.Abs(landingRateFPM)
	switch {
	case rate < 100:
		return 100
	case rate < 300:
		return 100 - (rate-100)/200*20
	case rate < 600:
		return 80 - (rate-300)/300*20
	case rate < 1000:
		return 60 - (rate-600)/400*40
	default:
		return math.Max(0, 20-(rate-1000)*0.02)
	}
}

// SmoothnessScore walks consecutive telemetry pairs and accumulates
// weighted penalties for speed, vertical-speed and heading excursions.
// The average penalty per comparison is scaled by 10 and subtracted from
// 100, clamped to [0,100]. Fewer than two points score a perfect 100.
func SmoothnessScore(points []TelemetryPoint) float64 {
	if len(points) < 2 {
		return 100
	}

	total := 0.0
	comparisons := 0
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		cur := points[i]

		speedDelta := math.Abs(cur.SpeedKts - prev.SpeedKts)
		var speedPenalty float64
		switch {
		case speedDelta > 30:
			speedPenalty = 3
		case speedDelta > 20:
			speedPenalty = 2
		case speedDelta > 10:
			speedPenalty = 1
		}

		vsDelta := math.Abs(cur.VerticalSpeedFPM - prev.VerticalSpeedFPM)
		var vsPenalty float64
		switch {
		case vsDelta > 500:
			vsPenalty = 3
		case vsDelta > 300:
			vsPenalty = 2
		case vsDelta > 150:
			vsPenalty = 1
		}

		headingDelta := geo.HeadingDelta(cur.Heading, prev.Heading)
		var headingPenalty float64
		switch {
		case headingDelta > 30:
			headingPenalty = 2
		case headingDelta > 20:
			headingPenalty = 1
		}

		total += speedPenalty*0.4 + vsPenalty*0.4 + headingPenalty*0.2
		comparisons++
	}

	score := 100 - (total/float64(comparisons))*10
	return clampScore(score)
}

// LiveSmoothnessScore is the fixed-subtraction variant used for live and
// partial views: no averaging, flat penalties per excursion.
func LiveSmoothnessScore(points []TelemetryPoint) float64 {
	score := 100.0
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		cur := points[i]
		if math.Abs(cur.SpeedKts-prev.SpeedKts) > 20 {
			score -= 2
		}
		if math.Abs(cur.AltitudeFt-prev.AltitudeFt) > 500 {
			score -= 3
		}
	}
	return clampScore(score)
}

// TotalDistanceNM sums planar distances between consecutive telemetry
// points, converted to nautical miles
func TotalDistanceNM(points []TelemetryPoint) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += geo.Distance(points[i-1].X, points[i-1].Y, points[i].X, points[i].Y)
	}
	return geo.MetersToNM(total)
}

// FlightAggregates are the stats computed over a flight's full telemetry
type FlightAggregates struct {
	DistanceNM    float64
	MaxAltitudeFt float64
	MaxSpeedKts   float64
	AvgSpeedKts   float64
	DurationSecs  int64
}

// ComputeAggregates derives the aggregate stats for finalize. Average
// speed excludes taxi and stationary points (below the airborne speed
// cutoff) so ground time does not drag it down.
func ComputeAggregates(points []TelemetryPoint, activatedAt *time.Time, endedAt time.Time) FlightAggregates {
	agg := FlightAggregates{DistanceNM: TotalDistanceNM(points)}

	speedSum := 0.0
	speedCount := 0
	for _, p := range points {
		if p.AltitudeFt > agg.MaxAltitudeFt {
			agg.MaxAltitudeFt = p.AltitudeFt
		}
		if p.SpeedKts > agg.MaxSpeedKts {
			agg.MaxSpeedKts = p.SpeedKts
		}
		if p.SpeedKts >= avgSpeedMinKts {
			speedSum += p.SpeedKts
			speedCount++
		}
	}
	if speedCount > 0 {
		agg.AvgSpeedKts = speedSum / float64(speedCount)
	}

	if activatedAt != nil && endedAt.After(*activatedAt) {
		agg.DurationSecs = int64(endedAt.Sub(*activatedAt).Seconds())
	}
	return agg
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
