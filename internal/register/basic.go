package register

import (
	"log"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/match"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// BasicParams bundles the basic solver's tunables.
type BasicParams struct {
	Seed   Seed
	Match  match.Params
	Verbose bool
}

// Basic seeds a regular grid of tie points in the overlap, drops
// low-texture seeds, and matches each surviving point independently.
func Basic(ref, float raster.Raster, p BasicParams) ([]tiepoint.TiePoint, *overlap.Region, error) {
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

	points := seedGrid(ov, p.Seed.Gap)
	points, err = textureGate(ref, float, ov, points, p.Seed.HalfWindow, p.Seed.StdDevRef, p.Seed.StdDevFloat)
	if err != nil {
		return nil, nil, err
	}
	if p.Verbose {
		log.Printf("basic: %d tie points remain after texture gating", len(points))
	}

	for i := range points {
		if _, err := match.Run(ref, float, ov, &points[i], p.Match); err != nil {
			// A single failed tie point is a warning, not an abort; the
			// point is discarded at finalisation.
			log.Printf("basic: matching tie point %d failed: %v", i, err)
		}
	}

	points = Finalize(points, ov, float.Width(), float.Height())
	if len(points) == 0 {
		return nil, ov, errs.New(errs.NoTiePointsRetained, "no tie points survived basic registration")
	}
	return points, ov, nil
}
