package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLandingScoreSteps(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{0, 100},
		{-100, 100},
		{-150, 90},
		{-300, 80},
		{-450, 60},
		{-550, 50},
		{-800, 30},
		{-1200, 20},
		{250, 90}, // sign does not matter
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LandingScore(tt.rate), "rate %v", tt.rate)
	}
}

func TestContinuousLandingScore(t *testing.T) {
	assert.Equal(t, 100.0, ContinuousLandingScore(-50))
	assert.InDelta(t, 90.0, ContinuousLandingScore(-200), 1e-9)
	assert.InDelta(t, 70.0, ContinuousLandingScore(-450), 1e-9)
	assert.InDelta(t, 40.0, ContinuousLandingScore(-800), 1e-9)
	assert.InDelta(t, 20.0, ContinuousLandingScore(-1000), 1e-9)
	assert.Equal(t, 0.0, ContinuousLandingScore(-3000))
}

func TestLandingScoresMonotonic(t *testing.T) {
	// Harder landings never score higher, on either scale
	prevStepped, prevContinuous := 100.0, 100.0
	for rate := 0.0; rate <= 2500; rate += 10 {
		stepped := LandingScore(-rate)
		continuous := ContinuousLandingScore(-rate)
		assert.LessOrEqual(t, stepped, prevStepped, "stepped at %v", rate)
		assert.LessOrEqual(t, continuous, prevContinuous, "continuous at %v", rate)
		assert.GreaterOrEqual(t, stepped, 0.0)
		assert.LessOrEqual(t, stepped, 100.0)
		assert.GreaterOrEqual(t, continuous, 0.0)
		assert.LessOrEqual(t, continuous, 100.0)
		prevStepped, prevContinuous = stepped, continuous
	}
}

func telemetrySeries(start time.Time, build func(i int) TelemetryPoint, n int) []TelemetryPoint {
	points := make([]TelemetryPoint, n)
	for i := 0; i < n; i++ {
		p := build(i)
		p.At = start.Add(time.Duration(i*5) * time.Second)
		points[i] = p
	}
	return points
}

func TestSmoothnessScoreFewPoints(t *testing.T) {
	assert.Equal(t, 100.0, SmoothnessScore(nil))
	assert.Equal(t, 100.0, SmoothnessScore([]TelemetryPoint{{}}))
}

func TestSmoothnessScoreSteadyFlight(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	points := telemetrySeries(start, func(i int) TelemetryPoint {
		return TelemetryPoint{SpeedKts: 250, VerticalSpeedFPM: 0, Heading: 270}
	}, 20)
	assert.Equal(t, 100.0, SmoothnessScore(points))
}

func TestSmoothnessScorePenalizesExcursions(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	erratic := telemetrySeries(start, func(i int) TelemetryPoint {
		p := TelemetryPoint{SpeedKts: 200, VerticalSpeedFPM: 0, Heading: 90}
		if i%2 == 1 {
			p.SpeedKts = 260
			p.VerticalSpeedFPM = 900
			p.Heading = 150
		}
		return p
	}, 20)

	score := SmoothnessScore(erratic)
	assert.Less(t, score, 100.0)
	assert.GreaterOrEqual(t, score, 0.0)

	smooth := telemetrySeries(start, func(i int) TelemetryPoint {
		return TelemetryPoint{SpeedKts: 200, Heading: 90}
	}, 20)
	assert.Greater(t, SmoothnessScore(smooth), score)
}

func TestLiveSmoothnessScore(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	points := telemetrySeries(start, func(i int) TelemetryPoint {
		return TelemetryPoint{SpeedKts: 200, AltitudeFt: 10000}
	}, 10)
	assert.Equal(t, 100.0, LiveSmoothnessScore(points))

	// One speed jump and one altitude jump: flat -2 and -3
	points[4].SpeedKts = 230
	points[5].SpeedKts = 200
	points[7].AltitudeFt = 11000
	points[8].AltitudeFt = 10000
	// each jump is counted on the way in and back out
	assert.Equal(t, 90.0, LiveSmoothnessScore(points))
}

func TestFallbackLandingRate(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []AltitudeSample{
		{AltitudeFt: 3000, At: start},
		{AltitudeFt: 2500, At: start.Add(time.Minute)},
		{AltitudeFt: 2000, At: start.Add(2 * time.Minute)},
	}
	// 1000 ft lost over 2 minutes
	assert.InDelta(t, 500.0, FallbackLandingRateFPM(samples), 1e-9)

	assert.Equal(t, 0.0, FallbackLandingRateFPM(nil))
	assert.Equal(t, 0.0, FallbackLandingRateFPM(samples[:1]))
}

func TestComputeAggregates(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	points := []TelemetryPoint{
		{X: 0, Y: 0, AltitudeFt: 0, SpeedKts: 10, At: start},
		{X: 0, Y: 1852, AltitudeFt: 5000, SpeedKts: 180, At: start.Add(time.Minute)},
		{X: 0, Y: 3704, AltitudeFt: 9000, SpeedKts: 220, At: start.Add(2 * time.Minute)},
		{X: 0, Y: 5556, AltitudeFt: 100, SpeedKts: 30, At: start.Add(3 * time.Minute)},
	}
	activated := start
	ended := start.Add(30 * time.Minute)

	agg := ComputeAggregates(points, &activated, ended)
	require.InDelta(t, 3.0, agg.DistanceNM, 1e-9)
	assert.Equal(t, 9000.0, agg.MaxAltitudeFt)
	assert.Equal(t, 220.0, agg.MaxSpeedKts)
	// Taxi-speed points are excluded from the average
	assert.InDelta(t, 200.0, agg.AvgSpeedKts, 1e-9)
	assert.Equal(t, int64(1800), agg.DurationSecs)
}

func TestComputeAggregatesNoActivation(t *testing.T) {
	agg := ComputeAggregates(nil, nil, time.Now())
	assert.Equal(t, int64(0), agg.DurationSecs)
	assert.Equal(t, 0.0, agg.AvgSpeedKts)
}
