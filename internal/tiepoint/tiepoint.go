// Package tiepoint holds the tie-point types shared by the registration
// solvers. Ownership is index-based: tie points live in a dense slice and
// reference each other by index rather than by pointer, so the slice owns
// the points and neighbour lists are plain integers.
package tiepoint

import "math"

// TiePoint is one reference-to-floating correspondence. Equality is by
// (XRef, YRef).
type TiePoint struct {
	// Easting, Northing are the reference map coordinates.
	Easting, Northing float64
	// XRef, YRef are the reference pixel coordinates within the overlap.
	XRef, YRef float64
	// XFloat, YFloat are the floating pixel coordinates: initialised equal
	// to the reference overlap-pixel position, then corrected by shifts at
	// finalisation.
	XFloat, YFloat float64
	// XShift, YShift accumulate the local matcher's applied shift, in
	// floating-pixel units.
	XShift, YShift float64
	// Metric is NaN until matched.
	Metric float64
}

// NewSeed creates a TiePoint at an overlap-grid position, with the
// floating position initialised to the reference position and the metric
// unset.
func NewSeed(easting, northing, xRef, yRef float64) TiePoint {
	return TiePoint{
		Easting: easting, Northing: northing,
		XRef: xRef, YRef: yRef,
		XFloat: xRef, YFloat: yRef,
		Metric: math.NaN(),
	}
}

// Equal compares tie points by their reference pixel coordinates.
func (t TiePoint) Equal(o TiePoint) bool {
	return t.XRef == o.XRef && t.YRef == o.YRef
}

// CurrentFloat returns the tie point's current floating-pixel position.
// A positive shift displaces the floating image itself, so the pixel that
// currently corresponds to the reference position is the reference position
// minus the accumulated shift (the same subtraction Finalize commits into
// XFloat/YFloat).
func (t TiePoint) CurrentFloat() (x, y float64) {
	return t.XRef - t.XShift, t.YRef - t.YShift
}

// Finalize commits the accumulated shift into the floating position.
func (t *TiePoint) Finalize() {
	t.XFloat = t.XRef - t.XShift
	t.YFloat = t.YRef - t.YShift
}

// Retained reports whether a finalised tie point should survive: the
// metric must be a real number, and the floating position must fall within
// the floating raster's pixel extent.
func (t TiePoint) Retained(floatWidth, floatHeight int) bool {
	if math.IsNaN(t.Metric) {
		return false
	}
	if t.XFloat < 0 || t.XFloat >= float64(floatWidth) {
		return false
	}
	if t.YFloat < 0 || t.YFloat >= float64(floatHeight) {
		return false
	}
	return true
}

// Node is a TiePoint plus the indices (into the same dense slice) of its
// neighbours within the configured distance threshold, used by the
// single-connected-layer solver. Built once after seeding; the neighbour
// list is immutable across iterations.
type Node struct {
	Point     TiePoint
	Neighbors []int
}

// BuildNodes computes the neighbour graph for a set of tie points: two
// points are neighbours if their reference-pixel Euclidean distance is
// below distanceThreshold.
func BuildNodes(points []TiePoint, distanceThreshold float64) []Node {
	nodes := make([]Node, len(points))
	for i, p := range points {
		nodes[i].Point = p
	}
	for i := range points {
		for j := range points {
			if i == j {
				continue
			}
			dx := points[i].XRef - points[j].XRef
			dy := points[i].YRef - points[j].YRef
			if math.Hypot(dx, dy) < distanceThreshold {
				nodes[i].Neighbors = append(nodes[i].Neighbors, j)
			}
		}
	}
	return nodes
}

// Distance returns the Euclidean distance between two tie points' current
// floating positions, used to weight neighbour propagation.
func Distance(a, b TiePoint) float64 {
	ax, ay := a.CurrentFloat()
	bx, by := b.CurrentFloat()
	return math.Hypot(ax-bx, ay-by)
}
