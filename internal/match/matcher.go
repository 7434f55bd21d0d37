// Package match implements the local matcher: for one candidate tie
// point, it searches a window x search-area grid in the floating raster
// for the best-matching similarity-metric value, then refines the
// extremum to sub-pixel precision by fitting a 1-D polynomial in each
// axis.
package match

import (
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/metric"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// Params bundles the matcher's tunables.
type Params struct {
	HalfWindow int // W
	HalfSearch int // S
	Metric     metric.Kind
	SubpixelResolution int // R >= 1
	// Threshold is the metric-acceptance threshold; nil skips the test
	// (per-pixel registration never thresholds).
	Threshold *float64
}

// Run matches a single tie point, mutating its XShift, YShift and Metric
// fields in place, and returns the Euclidean magnitude of the shift
// applied by this call (the single-layer solver's convergence signal).
func Run(ref, float raster.Raster, ov *overlap.Region, tp *tiepoint.TiePoint, p Params) (float64, error) {
	refWin, _, _, ok := overlap.ShiftedWindow(
		float64(ov.RefOffsetX)+tp.XRef, float64(ov.RefOffsetY)+tp.YRef,
		p.HalfWindow, ref.Width(), ref.Height())
	if !ok {
		return 0, nil
	}

	size := 2*p.HalfSearch + 1
	sim := make([][]float64, size)
	remX := make([][]float64, size)
	remY := make([][]float64, size)
	for i := range sim {
		sim[i] = make([]float64, size)
		remX[i] = make([]float64, size)
		remY[i] = make([]float64, size)
		for j := range sim[i] {
			sim[i][j] = math.NaN()
		}
	}

	bestVal := p.Metric.Worst()
	bestI, bestJ := -1, -1
	found := false

	for di := -p.HalfSearch; di <= p.HalfSearch; di++ {
		for dj := -p.HalfSearch; dj <= p.HalfSearch; dj++ {
			// A positive shift displaces the floating image, so the window
			// evaluated for shift (XShift + di) sits at the reference
			// position minus that shift within the floating raster.
			floatX := float64(ov.FloatOffsetX) + tp.XRef - (tp.XShift + float64(di))
			floatY := float64(ov.FloatOffsetY) + tp.YRef - (tp.YShift + float64(dj))
			floatWin, rx, ry, ok := overlap.ShiftedWindow(floatX, floatY, p.HalfWindow, float.Width(), float.Height())
			if !ok {
				continue
			}
			w := minInt(refWin.W, floatWin.W)
			h := minInt(refWin.H, floatWin.H)
			if w <= 0 || h <= 0 {
				continue
			}
			refBlock, err := ref.ReadBlock(refWin.X, refWin.Y, w, h)
			if err != nil {
				return 0, errs.Wrap(errs.Io, err, "reading reference window")
			}
			floatBlock, err := float.ReadBlock(floatWin.X, floatWin.Y, w, h)
			if err != nil {
				return 0, errs.Wrap(errs.Io, err, "reading floating window")
			}

			v := p.Metric.Evaluate(refBlock, floatBlock)
			i, j := di+p.HalfSearch, dj+p.HalfSearch
			sim[i][j] = v
			remX[i][j], remY[i][j] = rx, ry

			if p.Metric.Better(v, bestVal) {
				bestVal, bestI, bestJ = v, i, j
				found = true
			}
		}
	}

	if !found {
		tp.Metric = math.NaN()
		return 0, nil
	}

	subX, subY := refineAxis(sim, bestI, bestJ, p.HalfSearch, p.Metric.FindMin(), p.SubpixelResolution, true),
		refineAxis(sim, bestI, bestJ, p.HalfSearch, p.Metric.FindMin(), p.SubpixelResolution, false)

	dx := float64(bestI-p.HalfSearch) + subX + remX[bestI][bestJ]
	dy := float64(bestJ-p.HalfSearch) + subY + remY[bestI][bestJ]

	if p.Threshold != nil && !p.Metric.PassesThreshold(bestVal, *p.Threshold) {
		tp.Metric = math.NaN()
		return 0, nil
	}

	tp.XShift += dx
	tp.YShift += dy
	tp.Metric = bestVal

	return math.Hypot(dx, dy), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// refineAxis extracts the 1-D slice of the similarity matrix along one
// axis through (bestI, bestJ) and locates its sub-pixel extremum. alongI
// selects whether the varying axis is i (true) or j (false).
func refineAxis(sim [][]float64, bestI, bestJ, halfSearch int, findMin bool, r int, alongI bool) float64 {
	get := func(k int) float64 {
		if alongI {
			return sim[k][bestJ]
		}
		return sim[bestI][k]
	}
	center := bestI
	if !alongI {
		center = bestJ
	}

	switch {
	case halfSearch == 1:
		y0, y1, y2 := get(0), get(1), get(2)
		if math.IsNaN(y0) || math.IsNaN(y1) || math.IsNaN(y2) {
			return 0
		}
		if x, ok := fitQuadraticExtremum(y0, y1, y2); ok {
			return x
		}
		return fallbackQuadratic(y0, y1, y2, findMin, r)

	case halfSearch >= 2 && center-2 >= 0 && center+2 <= 2*halfSearch:
		y := []float64{get(center - 2), get(center - 1), get(center), get(center + 1), get(center + 2)}
		for _, v := range y {
			if math.IsNaN(v) {
				return 0
			}
		}
		if x, ok := fitQuarticExtremum(y, findMin); ok {
			return x
		}
		return fallbackQuartic(y, findMin, r)

	default:
		return 0
	}
}

func fallbackQuadratic(y0, y1, y2 float64, findMin bool, r int) float64 {
	eval := func(x float64) float64 { return lerp3(y0, y1, y2, x) }
	x, ok := sampleFallback(eval, findMin, r)
	if !ok {
		return 0
	}
	return x
}

func fallbackQuartic(y []float64, findMin bool, r int) float64 {
	// Restrict the fallback sweep to [-1,1], i.e. the middle three samples
	// (x = -1, 0, 1 of the five at x = -2..2).
	eval := func(x float64) float64 { return lerp3(y[1], y[2], y[3], x) }
	x, ok := sampleFallback(eval, findMin, r)
	if !ok {
		return 0
	}
	return x
}

// lerp3 linearly interpolates between three equally-spaced samples at
// x = -1, 0, 1.
func lerp3(y0, y1, y2, x float64) float64 {
	if x <= 0 {
		t := x + 1
		return y0 + (y1-y0)*t
	}
	return y1 + (y2-y1)*x
}
