package register

import (
	"log"
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/match"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// SingleLayerParams bundles the single-connected-layer solver's tunables.
type SingleLayerParams struct {
	Seed              Seed
	Match             match.Params
	DistanceThreshold float64
	MaxIter           int
	MoveChangeThresh  float64
	PSmoothness       float64
	Verbose           bool
}

// SingleLayerResult carries the tie points plus the per-round average
// movement trace.
type SingleLayerResult struct {
	Points           []tiepoint.TiePoint
	AverageMovements []float64
}

// SingleLayer runs the elastic registration: each round matches every tie
// point once, then propagates a distance-weighted fraction of its shift to
// its neighbours, until the average movement settles or the iteration cap
// is hit.
func SingleLayer(ref, float raster.Raster, p SingleLayerParams) (*SingleLayerResult, *overlap.Region, error) {
	if p.Seed.Gap < 1 {
		return nil, nil, errs.New(errs.Config, "gap needs to be at least 1 pixel")
	}
	if ref.NumBands() != float.NumBands() {
		return nil, nil, errs.New(errs.Config, "reference and floating rasters must have the same band count")
	}

	ov, err := overlap.Compute(ref, float)
	if err != nil {
		return nil, nil, err
	}

	seeds := seedGrid(ov, p.Seed.Gap)
	seeds, err = textureGate(ref, float, ov, seeds, p.Seed.HalfWindow, p.Seed.StdDevRef, p.Seed.StdDevFloat)
	if err != nil {
		return nil, nil, err
	}
	if p.Verbose {
		log.Printf("singlelayer: %d tie points remain after texture gating", len(seeds))
	}

	nodes := tiepoint.BuildNodes(seeds, p.DistanceThreshold)

	var averages []float64
	prevAverage := 0.0
	first := true

	maxIter := p.MaxIter
	if maxIter < 1 {
		maxIter = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		var total float64
		for i := range nodes {
			moved, err := match.Run(ref, float, ov, &nodes[i].Point, p.Match)
			if err != nil {
				log.Printf("singlelayer: matching tie point %d failed: %v", i, err)
				continue
			}
			total += moved

			for _, j := range nodes[i].Neighbors {
				d := tiepoint.Distance(nodes[i].Point, nodes[j].Point)
				invDist := 1.0
				if d >= 1 {
					invDist = 1 / (d * p.PSmoothness)
				}
				xDiff := nodes[i].Point.XShift - nodes[j].Point.XShift
				yDiff := nodes[i].Point.YShift - nodes[j].Point.YShift
				nodes[j].Point.XShift += invDist * xDiff
				nodes[j].Point.YShift += invDist * yDiff
			}
		}

		average := total / float64(len(nodes))
		averages = append(averages, average)
		if p.Verbose {
			log.Printf("singlelayer: iteration %d movement = %v", iter, average)
		}

		if first {
			prevAverage = average
			first = false
			continue
		}
		if math.Abs(average-prevAverage) < p.MoveChangeThresh {
			break
		}
		prevAverage = average
	}

	points := make([]tiepoint.TiePoint, len(nodes))
	for i, n := range nodes {
		points[i] = n.Point
	}
	points = Finalize(points, ov, float.Width(), float.Height())
	if len(points) == 0 {
		return nil, ov, errs.New(errs.NoTiePointsRetained, "no tie points survived single-layer registration")
	}

	return &SingleLayerResult{Points: points, AverageMovements: averages}, ov, nil
}
