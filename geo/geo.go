// Package geo implements the engine's proximity and coordinate math:
// flat-plane distance, enter/exit hysteresis, GPS-to-model conversion,
// and deterministic circular spawn placement.
package geo

import (
	"math"
	"math/rand"
)

// Point is a position in model space — already converted from GPS
// where applicable. Units are meters.
type Point struct {
	X, Y float64
}

// ExitMargin is the constant hysteresis margin added to a trigger's
// enter radius to compute its exit radius. A fixed margin rather than
// a percentage: small triggers (5m) and large ones (200m) both get the
// same 10m of slack, which is what stops an avatar sitting exactly on
// the enter boundary from flapping in and out every tick.
const ExitMargin = 10.0

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// IsWithin reports whether p lies within radius of center, inclusive.
// Compares squared distances to avoid a sqrt on the hot path.
func IsWithin(p, center Point, radius float64) bool {
	dx := p.X - center.X
	dy := p.Y - center.Y
	return dx*dx+dy*dy <= radius*radius
}

// ExitRadius computes the radius at which an already-active trigger
// deactivates, given its enterRadius. Always enterRadius + ExitMargin.
func ExitRadius(enterRadius float64) float64 {
	return enterRadius + ExitMargin
}

// Scale converts between GPS degrees and model meters along one axis.
// Height-map worlds author a real per-axis meters-per-degree scale;
// procedural worlds that have no real-world geography use UnitScale,
// treating GPS fields as plain model units (scale 1).
type Scale struct {
	MetersPerDegreeLat float64
	MetersPerDegreeLon float64
}

// UnitScale is the identity scale for procedural worlds: GPS fields
// are interpreted directly as model-space meters.
var UnitScale = Scale{MetersPerDegreeLat: 1, MetersPerDegreeLon: 1}

// GPSPoint mirrors catalog.GPSPoint without importing catalog, so this
// package stays a leaf with no dependency on the content model.
type GPSPoint struct {
	Latitude, Longitude float64
}

// ToModel converts a GPS point to model space under scale, with the
// origin at (0,0) in both spaces. Longitude maps to X, latitude to Y.
func ToModel(p GPSPoint, scale Scale) Point {
	return Point{
		X: p.Longitude * scale.MetersPerDegreeLon,
		Y: p.Latitude * scale.MetersPerDegreeLat,
	}
}

// FromModel is the inverse of ToModel.
func FromModel(p Point, scale Scale) GPSPoint {
	gp := GPSPoint{}
	if scale.MetersPerDegreeLon != 0 {
		gp.Longitude = p.X / scale.MetersPerDegreeLon
	}
	if scale.MetersPerDegreeLat != 0 {
		gp.Latitude = p.Y / scale.MetersPerDegreeLat
	}
	return gp
}

// SpawnPosition deterministically places a character spawn somewhere
// inside a trigger's circle: radius jitters within 90-100% of
// enterRadius, angle jitters by up to +-10% of the angular step
// between spawns (2*pi/spawnCount) from the base angle implied by
// spawnIndex, evenly spacing multiple spawns of the same trigger
// around the circle before jitter is applied. seed must be the same
// value used at commit time (stored on the originating transaction)
// so replay reproduces the exact position.
func SpawnPosition(center Point, enterRadius float64, spawnIndex, spawnCount int, seed int64) Point {
	r := rand.New(rand.NewSource(seed + int64(spawnIndex)))

	baseAngle := 0.0
	step := 2 * math.Pi
	if spawnCount > 0 {
		step = (2 * math.Pi) / float64(spawnCount)
		baseAngle = step * float64(spawnIndex)
	}

	angleJitter := (r.Float64()*2 - 1) * 0.1 * step
	angle := baseAngle + angleJitter

	radiusFactor := 0.9 + r.Float64()*0.1
	radius := enterRadius * radiusFactor

	return Point{
		X: center.X + radius*math.Cos(angle),
		Y: center.Y + radius*math.Sin(angle),
	}
}
