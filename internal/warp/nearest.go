package warp

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// gcpEntry adapts a tiepointio.WarpRecord to rtreego.Spatial: a GCP is
// indexed as a (near) zero-area rectangle at its map position.
type gcpEntry struct {
	rec tiepointio.WarpRecord
}

func (g gcpEntry) Bounds() rtreego.Rect {
	point := rtreego.Point{g.rec.Easting, g.rec.Northing}
	rect, _ := rtreego.NewRect(point, []float64{1e-9, 1e-9})
	return rect
}

// Nearest is the nearest-GCP inverse model: queries resolve to the tie
// point with minimum map distance among those inside a small search
// window around the query position.
type Nearest struct {
	tree *rtreego.Rtree
}

// NewNearest returns an empty nearest-GCP model; Prepare builds the
// spatial index.
func NewNearest() *Nearest {
	return &Nearest{}
}

func (m *Nearest) Prepare(points []tiepointio.WarpRecord) error {
	if len(points) == 0 {
		return errs.New(errs.Config, "nearest-GCP model: no tie points")
	}
	tree := rtreego.NewTree(2, 4, 16)
	for _, p := range points {
		tree.Insert(gcpEntry{rec: p})
	}
	m.tree = tree
	return nil
}

// Extent returns the map-space bounding box of the tie-point set.
func (m *Nearest) Extent(points []tiepointio.WarpRecord) raster.Envelope {
	env := raster.Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range points {
		env.MinX = math.Min(env.MinX, p.Easting)
		env.MaxX = math.Max(env.MaxX, p.Easting)
		env.MinY = math.Min(env.MinY, p.Northing)
		env.MaxY = math.Max(env.MaxY, p.Northing)
	}
	return env
}

// Locate searches a 10x resIn window around (e, n) for the nearest GCP by
// map distance and offsets its pixel position by the map-space residual:
// x = round(gcp.x - (gcp.E - E)/res_in), y = round(gcp.y + (gcp.N - N)/res_in).
func (m *Nearest) Locate(e, n, resIn float64) (xIn, yIn int, ok bool) {
	half := 10 * resIn
	bb, err := rtreego.NewRect(rtreego.Point{e - half, n - half}, []float64{2 * half, 2 * half})
	if err != nil {
		return 0, 0, false
	}
	candidates := m.tree.SearchIntersect(bb)
	if len(candidates) == 0 {
		return 0, 0, false
	}

	var best tiepointio.WarpRecord
	bestDist := math.Inf(1)
	for _, c := range candidates {
		rec := c.(gcpEntry).rec
		d := math.Hypot(rec.Easting-e, rec.Northing-n)
		if d < bestDist {
			bestDist = d
			best = rec
		}
	}

	x := best.X - (best.Easting-e)/resIn
	y := best.Y + (best.Northing-n)/resIn
	return int(math.Round(x)), int(math.Round(y)), true
}
