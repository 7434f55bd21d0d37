package warp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// Triangulation is the triangulated inverse model: a Bowyer-Watson
// Delaunay triangulation over tie-point map coordinates, queried by
// locating the containing triangle (or nearest face at the boundary) and
// solving a per-triangle plane fit translated to the query origin.
type Triangulation struct {
	points    []tiepointio.WarpRecord
	triangles []triIndex
}

type triIndex struct{ a, b, c int }

// NewTriangulation returns an unfit model; Prepare builds the mesh.
func NewTriangulation() *Triangulation { return &Triangulation{} }

func (m *Triangulation) Prepare(points []tiepointio.WarpRecord) error {
	if len(points) < 3 {
		return errs.New(errs.Config, "triangulation model: need at least 3 tie points, got %d", len(points))
	}
	m.points = points
	coords := make([]point2, len(points))
	for i, p := range points {
		coords[i] = point2{p.Easting, p.Northing}
	}
	m.triangles = bowyerWatson(coords)
	if len(m.triangles) == 0 {
		return errs.New(errs.NumericFailure, "triangulation model: produced no faces")
	}
	return nil
}

func (m *Triangulation) Extent(points []tiepointio.WarpRecord) raster.Envelope {
	env := raster.Envelope{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range points {
		env.MinX = math.Min(env.MinX, p.Easting)
		env.MaxX = math.Max(env.MaxX, p.Easting)
		env.MinY = math.Min(env.MinY, p.Northing)
		env.MaxY = math.Max(env.MaxY, p.Northing)
	}
	return env
}

func (m *Triangulation) Locate(e, n, resIn float64) (xIn, yIn int, ok bool) {
	q := point2{e, n}
	idx := m.findContaining(q)
	if idx < 0 {
		idx = m.findNearest(q)
	}
	if idx < 0 {
		return 0, 0, false
	}
	x, y, err := fitPlanePair(m.points, m.triangles[idx], q)
	if err != nil {
		return 0, 0, false
	}
	return int(math.Round(x)), int(math.Round(y)), true
}

func (m *Triangulation) vertices(t triIndex) (a, b, c point2) {
	a = point2{m.points[t.a].Easting, m.points[t.a].Northing}
	b = point2{m.points[t.b].Easting, m.points[t.b].Northing}
	c = point2{m.points[t.c].Easting, m.points[t.c].Northing}
	return
}

func (m *Triangulation) findContaining(q point2) int {
	for i, t := range m.triangles {
		a, b, c := m.vertices(t)
		if pointInTriangle(q, a, b, c) {
			return i
		}
	}
	return -1
}

// findNearest falls back to the triangle whose centroid is nearest the
// query, used at the mesh boundary where no face contains the point.
func (m *Triangulation) findNearest(q point2) int {
	best := -1
	bestDist := math.Inf(1)
	for i, t := range m.triangles {
		a, b, c := m.vertices(t)
		cx, cy := (a.x+b.x+c.x)/3, (a.y+b.y+c.y)/3
		d := math.Hypot(cx-q.x, cy-q.y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// fitPlanePair solves the two 3x3 systems for x_in and y_in over triangle
// t's vertices translated so q is the origin:
// min sum (a*E + b*N + c - v)^2. With exactly 3 points the least-squares
// solve is an exact 3-equation linear solve.
func fitPlanePair(points []tiepointio.WarpRecord, t triIndex, q point2) (x, y float64, err error) {
	idx := [3]int{t.a, t.b, t.c}
	a := mat.NewDense(3, 3, nil)
	bx := mat.NewVecDense(3, nil)
	by := mat.NewVecDense(3, nil)
	for i, pi := range idx {
		p := points[pi]
		a.SetRow(i, []float64{p.Easting - q.x, p.Northing - q.y, 1})
		bx.SetVec(i, p.X)
		by.SetVec(i, p.Y)
	}
	var vx, vy mat.VecDense
	if err := vx.SolveVec(a, bx); err != nil {
		return 0, 0, err
	}
	if err := vy.SolveVec(a, by); err != nil {
		return 0, 0, err
	}
	// At the query itself the translated coordinates are (0,0), so the
	// fitted value is just the constant coefficient c.
	return vx.AtVec(2), vy.AtVec(2), nil
}

func pointInTriangle(p, a, b, c point2) bool {
	d1 := sign(p, a, b)
	d2 := sign(p, b, c)
	d3 := sign(p, c, a)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func sign(p1, p2, p3 point2) float64 {
	return (p1.x-p3.x)*(p2.y-p3.y) - (p2.x-p3.x)*(p1.y-p3.y)
}

type point2 struct{ x, y float64 }

// bowyerWatson triangulates points via the classic incremental
// Bowyer-Watson algorithm: a super-triangle enclosing all points is
// inserted first and its vertices are stripped from the final mesh. Exact
// predicates are not used; a locate failure at a sliver falls back to the
// nearest face instead.
func bowyerWatson(points []point2) []triIndex {
	n := len(points)
	minX, minY := points[0].x, points[0].y
	maxX, maxY := points[0].x, points[0].y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.x)
		maxX = math.Max(maxX, p.x)
		minY = math.Min(minY, p.y)
		maxY = math.Max(maxY, p.y)
	}
	dx, dy := maxX-minX, maxY-minY
	delta := math.Max(dx, dy)*10 + 1
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	all := make([]point2, n, n+3)
	copy(all, points)
	all = append(all,
		point2{midX - 2*delta, midY - delta},
		point2{midX, midY + 2*delta},
		point2{midX + 2*delta, midY - delta},
	)
	superA, superB, superC := n, n+1, n+2

	triangles := []triIndex{ensureCCW(all, triIndex{superA, superB, superC})}

	type dedge struct{ a, b int }
	norm := func(a, b int) dedge {
		if a < b {
			return dedge{a, b}
		}
		return dedge{b, a}
	}

	for i := 0; i < n; i++ {
		p := all[i]

		var badIdx []int
		for ti, t := range triangles {
			if circumcircleContains(all, t, p) {
				badIdx = append(badIdx, ti)
			}
		}
		if len(badIdx) == 0 {
			continue
		}

		badSet := make(map[int]bool, len(badIdx))
		edgeCount := map[dedge]int{}
		for _, ti := range badIdx {
			badSet[ti] = true
			t := triangles[ti]
			edgeCount[norm(t.a, t.b)]++
			edgeCount[norm(t.b, t.c)]++
			edgeCount[norm(t.c, t.a)]++
		}

		remaining := triangles[:0:0]
		for ti, t := range triangles {
			if !badSet[ti] {
				remaining = append(remaining, t)
			}
		}
		triangles = remaining

		for e, count := range edgeCount {
			if count != 1 {
				continue
			}
			triangles = append(triangles, ensureCCW(all, triIndex{e.a, e.b, i}))
		}
	}

	final := triangles[:0:0]
	for _, t := range triangles {
		if t.a >= n || t.b >= n || t.c >= n {
			continue
		}
		final = append(final, t)
	}
	return final
}

func ensureCCW(pts []point2, t triIndex) triIndex {
	a, b, c := pts[t.a], pts[t.b], pts[t.c]
	area := (b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)
	if area < 0 {
		return triIndex{t.a, t.c, t.b}
	}
	return t
}

// circumcircleContains reports whether p lies strictly inside the
// circumcircle of CCW triangle t, via the standard incircle determinant.
func circumcircleContains(pts []point2, t triIndex, p point2) bool {
	ax, ay := pts[t.a].x-p.x, pts[t.a].y-p.y
	bx, by := pts[t.b].x-p.x, pts[t.b].y-p.y
	cx, cy := pts[t.c].x-p.x, pts[t.c].y-p.y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)
	return det > 0
}
