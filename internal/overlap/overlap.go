// Package overlap computes the geographic intersection of a reference and
// a floating raster, plus the pixel-aligned window requests the local
// matcher issues against either side.
package overlap

import (
	"log"
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
)

// resolutionTolerance and rotationTolerance bound how far two rasters'
// pixel resolution and rotation parameters may differ before the overlap
// is rejected.
const (
	resolutionTolerance = 1e-4
	rotationTolerance    = 1e-4
)

// Region is the immutable result of a successful overlap computation.
type Region struct {
	OriginX, OriginY         float64 // top-left geographic corner
	PixelWidth, PixelHeight  float64 // per-axis resolution, PixelHeight negative
	RowSkew, ColSkew         float64
	Width, Height            int // integer pixel dimensions of the overlap
	RefOffsetX, RefOffsetY   int // pixel offset of overlap top-left within the reference raster
	FloatOffsetX, FloatOffsetY int // same, within the floating raster
	RefBands, FloatBands     int
}

// GeoTransform returns the overlap region's own geotransform, anchored at
// its top-left corner and using the reference raster's resolution.
func (r *Region) GeoTransform() raster.GeoTransform {
	return raster.GeoTransform{
		OriginX: r.OriginX, PixelWidth: r.PixelWidth, RowSkew: r.RowSkew,
		OriginY: r.OriginY, ColSkew: r.ColSkew, PixelHeight: r.PixelHeight,
	}
}

func envelopeOf(r raster.Raster) raster.Envelope {
	gt := r.GeoTransform()
	x0, y0 := gt.ToMap(0, 0)
	x1, y1 := gt.ToMap(float64(r.Width()), float64(r.Height()))
	return raster.Envelope{
		MinX: math.Min(x0, x1), MaxX: math.Max(x0, x1),
		MinY: math.Min(y0, y1), MaxY: math.Max(y0, y1),
	}
}

// Compute derives the overlap Region between two rasters.
func Compute(ref, float raster.Raster) (*Region, error) {
	refGT, floatGT := ref.GeoTransform(), float.GeoTransform()

	if relDiff(refGT.PixelWidth, floatGT.PixelWidth) > resolutionTolerance ||
		relDiff(math.Abs(refGT.PixelHeight), math.Abs(floatGT.PixelHeight)) > resolutionTolerance {
		return nil, errs.New(errs.ResolutionMismatch,
			"reference pixel size (%.6g,%.6g) vs floating (%.6g,%.6g) exceeds tolerance",
			refGT.PixelWidth, refGT.PixelHeight, floatGT.PixelWidth, floatGT.PixelHeight)
	}
	if math.Abs(refGT.RowSkew-floatGT.RowSkew) > rotationTolerance ||
		math.Abs(refGT.ColSkew-floatGT.ColSkew) > rotationTolerance {
		return nil, errs.New(errs.RotationMismatch,
			"reference rotation (%.6g,%.6g) vs floating (%.6g,%.6g) exceeds tolerance",
			refGT.RowSkew, refGT.ColSkew, floatGT.RowSkew, floatGT.ColSkew)
	}
	if ref.Projection() != "" && float.Projection() != "" && ref.Projection() != float.Projection() {
		log.Printf("WARNING: reference and floating projections differ (%q vs %q)", ref.Projection(), float.Projection())
	}

	refEnv, floatEnv := envelopeOf(ref), envelopeOf(float)
	inter := refEnv.Intersect(floatEnv)
	if inter.Width() <= 0 || inter.Height() <= 0 {
		return nil, errs.New(errs.NoOverlap, "reference and floating rasters do not overlap")
	}

	refOffX, refOffY := pixelOffset(ref, inter)
	floatOffX, floatOffY := pixelOffset(float, inter)

	width := int(math.Round(inter.Width() / refGT.PixelWidth))
	height := int(math.Round(inter.Height() / math.Abs(refGT.PixelHeight)))
	if width <= 0 || height <= 0 {
		return nil, errs.New(errs.NoOverlap, "overlap degenerates to zero pixels")
	}

	return &Region{
		OriginX: inter.MinX, OriginY: inter.MaxY,
		PixelWidth: refGT.PixelWidth, PixelHeight: refGT.PixelHeight,
		RowSkew: refGT.RowSkew, ColSkew: refGT.ColSkew,
		Width: width, Height: height,
		RefOffsetX: refOffX, RefOffsetY: refOffY,
		FloatOffsetX: floatOffX, FloatOffsetY: floatOffY,
		RefBands: ref.NumBands(), FloatBands: float.NumBands(),
	}, nil
}

func relDiff(a, b float64) float64 {
	if a == 0 {
		return math.Abs(b)
	}
	return math.Abs(a-b) / math.Abs(a)
}

// pixelOffset derives the integer pixel offset of env's top-left corner
// within r, rounding when within resolutionTolerance of an integer and
// flooring otherwise.
func pixelOffset(r raster.Raster, env raster.Envelope) (int, int) {
	gt := r.GeoTransform()
	px, py := gt.ToPixel(env.MinX, env.MaxY)
	return roundOrFloor(px), roundOrFloor(py)
}

func roundOrFloor(v float64) int {
	r := math.Round(v)
	if math.Abs(v-r) < resolutionTolerance {
		return int(r)
	}
	return int(math.Floor(v))
}

// Window is a pixel-aligned block request, clipped to a raster's extent.
type Window struct {
	X, Y, W, H int
}

// ShiftedWindow computes the pixel window of half-extent halfWindow
// centred on the floating-pixel position (fx, fy), plus the fractional
// remainder lost when fx/fy were rounded to integers. The remainder is
// handed back to the matcher so sub-pixel accuracy survives the rounding.
// ok is false when the window degenerates to zero width or height after
// clipping to [0,maxW)x[0,maxH).
func ShiftedWindow(fx, fy float64, halfWindow, maxW, maxH int) (win Window, remX, remY float64, ok bool) {
	ix, rx := splitPixel(fx)
	iy, ry := splitPixel(fy)

	x0, y0 := ix-halfWindow, iy-halfWindow
	size := 2*halfWindow + 1
	x1, y1 := x0+size, y0+size

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > maxW {
		x1 = maxW
	}
	if y1 > maxH {
		y1 = maxH
	}
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return Window{}, 0, 0, false
	}
	return Window{X: x0, Y: y0, W: w, H: h}, rx, ry, true
}

// splitPixel rounds v to an integer pixel index plus remainder, rounding
// to the nearest integer when within resolutionTolerance of one (so an
// exact integer shift carries no spurious remainder).
func splitPixel(v float64) (int, float64) {
	r := math.Round(v)
	if math.Abs(v-r) < resolutionTolerance {
		return int(r), 0
	}
	i := math.Floor(v)
	return int(i), v - i
}
