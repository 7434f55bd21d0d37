// Package register implements the basic, single-connected-layer, and
// per-pixel registration solvers.
package register

import (
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// Seed holds the shared tunables for seeding and texture-gating a regular
// tie-point grid, used by both Basic and SingleLayer.
type Seed struct {
	Gap          int
	HalfWindow   int
	StdDevRef    float64
	StdDevFloat  float64
}

// seedGrid centres a regular grid of tie points in the overlap so the
// border margin is equal on both sides of each axis.
func seedGrid(ov *overlap.Region, gap int) []tiepoint.TiePoint {
	numX := ov.Width / gap
	numY := ov.Height / gap

	xRegion := (numX - 1) * gap
	yRegion := (numY - 1) * gap
	startXOff := (ov.Width - xRegion) / 2
	startYOff := (ov.Height - yRegion) / 2

	startEastings := ov.OriginX + float64(startXOff)*ov.PixelWidth
	startNorthings := ov.OriginY + float64(startYOff)*ov.PixelHeight

	// XRef/YRef (and, at seeding time, XFloat/YFloat) are kept overlap-relative
	// here: the local matcher (internal/match) adds ov.RefOffsetX/FloatOffsetX
	// itself when it turns a tie point into a raster block request. Finalize
	// below converts back to absolute per-raster pixel coordinates once
	// matching is done, which is the frame the tie-point text formats and the
	// warp engine expect.
	points := make([]tiepoint.TiePoint, 0, numX*numY)
	northing := startNorthings
	for i := 0; i < numY; i++ {
		easting := startEastings
		for j := 0; j < numX; j++ {
			xRef := float64(startXOff + j*gap)
			yRef := float64(startYOff + i*gap)
			points = append(points, tiepoint.NewSeed(easting, northing, xRef, yRef))
			easting += ov.PixelWidth * float64(gap)
		}
		northing += ov.PixelHeight * float64(gap)
	}
	return points
}

// textureGate drops seeds whose reference or floating window has standard
// deviation below threshold: low-texture windows cannot produce a
// trustworthy similarity extremum.
func textureGate(ref, float raster.Raster, ov *overlap.Region, points []tiepoint.TiePoint, halfWindow int, stdDevRef, stdDevFloat float64) ([]tiepoint.TiePoint, error) {
	kept := points[:0:0]
	size := 2*halfWindow + 1
	for _, p := range points {
		refWin, _, _, ok := overlap.ShiftedWindow(float64(ov.RefOffsetX)+p.XRef, float64(ov.RefOffsetY)+p.YRef, halfWindow, ref.Width(), ref.Height())
		if !ok {
			continue
		}
		floatWin, _, _, ok := overlap.ShiftedWindow(float64(ov.FloatOffsetX)+p.XFloat, float64(ov.FloatOffsetY)+p.YFloat, halfWindow, float.Width(), float.Height())
		if !ok {
			continue
		}
		refBlock, err := ref.ReadBlock(refWin.X, refWin.Y, refWin.W, refWin.H)
		if err != nil {
			return nil, errs.Wrap(errs.Io, err, "reading reference texture window")
		}
		floatBlock, err := float.ReadBlock(floatWin.X, floatWin.Y, floatWin.W, floatWin.H)
		if err != nil {
			return nil, errs.Wrap(errs.Io, err, "reading floating texture window")
		}
		refStd := stdDevValid(refBlock, size*size)
		floatStd := stdDevValid(floatBlock, size*size)
		if refStd < stdDevRef || floatStd < stdDevFloat {
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}

// stdDevValid computes the standard deviation of values that are non-zero
// and non-NaN across all bands, returning -1 when fewer than half the
// windowSamples*bands values are valid.
func stdDevValid(block [][]float32, windowSamples int) float64 {
	total := windowSamples * len(block)
	var sum float64
	var n int
	for _, band := range block {
		for _, v := range band {
			if math.IsNaN(float64(v)) || v == 0 {
				continue
			}
			sum += float64(v)
			n++
		}
	}
	if n*2 < total {
		return -1
	}
	mean := sum / float64(n)
	var sq float64
	for _, band := range block {
		for _, v := range band {
			if math.IsNaN(float64(v)) || v == 0 {
				continue
			}
			d := float64(v) - mean
			sq += d * d
		}
	}
	return math.Sqrt(sq / float64(n))
}

// Finalize commits each tie point's accumulated shift into its floating
// position, converts both XRef/YRef and XFloat/YFloat from the
// overlap-relative frame used during matching into absolute pixel positions
// within the reference and floating rasters respectively, and drops points
// that fail the metric or image-extent checks.
func Finalize(points []tiepoint.TiePoint, ov *overlap.Region, floatWidth, floatHeight int) []tiepoint.TiePoint {
	kept := points[:0:0]
	for i := range points {
		points[i].Finalize()
		points[i].XRef += float64(ov.RefOffsetX)
		points[i].YRef += float64(ov.RefOffsetY)
		points[i].XFloat += float64(ov.FloatOffsetX)
		points[i].YFloat += float64(ov.FloatOffsetY)
		if points[i].Retained(floatWidth, floatHeight) {
			kept = append(kept, points[i])
		}
	}
	return kept
}
