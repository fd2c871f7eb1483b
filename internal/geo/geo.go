package geo

import "math"

// Positions on the network are sim-local planar coordinates in metres.
const MetersPerNM = 1852.0

// Distance returns the Euclidean distance between two planar points, in metres
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// MetersToNM converts metres to nautical miles
func MetersToNM(m float64) float64 {
	return m / MetersPerNM
}

// HeadingDelta returns the shortest-arc difference between two headings
// in degrees, wrapped so the result is always in [0, 180]
func HeadingDelta(h1, h2 float64) float64 {
	d := math.Mod(math.Abs(h1-h2), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// NormalizeHeading wraps a heading into [0, 360)
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
