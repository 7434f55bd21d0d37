// Package warp resamples a raster onto a new grid driven by a tie-point
// set: an inverse-mapping model (nearest-GCP, triangulation, or global
// polynomial) maps each output pixel back to an input position, and an
// interpolator fills the bands.
package warp

import (
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// Model is the inverse-mapping contract shared by all three warp models:
// prepare once over the tie-point set, derive the output map extent from
// it, then answer per-output-pixel queries.
type Model interface {
	Prepare(points []tiepointio.WarpRecord) error
	Extent(points []tiepointio.WarpRecord) raster.Envelope
	// Locate maps an output pixel's map-space position (e, n) to input
	// pixel indices, given the input raster's resolution resIn. ok is
	// false when the model itself fails to resolve a position (e.g. no
	// GCP lies inside the nearest-GCP search window, or a triangle's plane
	// solve is singular); the caller then writes NaN.
	Locate(e, n, resIn float64) (xIn, yIn int, ok bool)
}

// Params bundles the warp engine's tunables.
type Params struct {
	Resolution float64
	Projection string
	Diagnostic bool // --transform yes: emit the shift-magnitude image instead of resampling
}

// Run executes a warp: read tie points, let the model preprocess them,
// derive the output extent, create the output raster and resample it row
// by row.
func Run(src raster.Raster, model Model, gcpPath, outPath string, p Params) error {
	points, err := tiepointio.ReadWarpRecords(gcpPath)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return errs.New(errs.Config, "warp: tie point file %s has no records", gcpPath)
	}
	if p.Resolution <= 0 {
		return errs.New(errs.Config, "warp: --resolution must be positive")
	}

	if err := model.Prepare(points); err != nil {
		return err
	}
	extent := model.Extent(points)
	if extent.Width() <= 0 || extent.Height() <= 0 {
		return errs.New(errs.NoOverlap, "warp: tie-point extent degenerates to zero area")
	}

	outWidth := int(math.Ceil(extent.Width() / p.Resolution))
	outHeight := int(math.Ceil(extent.Height() / p.Resolution))
	if outWidth <= 0 || outHeight <= 0 {
		return errs.New(errs.Config, "warp: output resolution %.6g too coarse for extent", p.Resolution)
	}

	bands := src.NumBands()
	outBands := bands
	outType := src.DataType()
	if p.Diagnostic {
		outBands = 1
		outType = raster.Float32
	}

	gt := raster.GeoTransform{
		OriginX: extent.MinX, PixelWidth: p.Resolution, RowSkew: 0,
		OriginY: extent.MaxY, ColSkew: 0, PixelHeight: -p.Resolution,
	}
	out, err := raster.Create(outPath, outWidth, outHeight, outBands, outType, gt, p.Projection)
	if err != nil {
		return errs.Wrap(errs.Io, err, "creating warp output %s", outPath)
	}
	defer out.Close()

	if p.Diagnostic {
		out.SetBandDescription(0, "Warp Shift Magnitude")
	}

	resIn := inputResolution(src)

	rowBands := make([][]float32, outBands)
	for b := range rowBands {
		rowBands[b] = make([]float32, outWidth)
	}

	for y := 0; y < outHeight; y++ {
		n := gt.OriginY + float64(y)*gt.PixelHeight
		for x := 0; x < outWidth; x++ {
			e := gt.OriginX + float64(x)*gt.PixelWidth

			xIn, yIn, ok := model.Locate(e, n, resIn)
			if p.Diagnostic {
				rowBands[0][x] = diagnosticValue(e, n, src.GeoTransform(), xIn, yIn, ok)
				continue
			}
			if !ok {
				for b := 0; b < outBands; b++ {
					rowBands[b][x] = float32(math.NaN())
				}
				continue
			}
			values, sampled := Sample(src, xIn, yIn)
			if !sampled {
				for b := 0; b < outBands; b++ {
					rowBands[b][x] = 0
				}
				continue
			}
			for b := 0; b < outBands; b++ {
				rowBands[b][x] = values[b]
			}
		}
		if err := out.WriteBlock(0, y, outWidth, 1, rowBands); err != nil {
			return errs.Wrap(errs.Io, err, "writing warp output row %d", y)
		}
	}
	return nil
}

// inputResolution derives the scalar input pixel resolution the models'
// locate formulas need from the input raster's geotransform.
func inputResolution(src raster.Raster) float64 {
	gt := src.GeoTransform()
	return gt.PixelWidth
}

// diagnosticValue fills the transform image: per output pixel, the
// Euclidean pixel-space distance between the model-resolved input position
// and the input pixel the output position would occupy under an identity
// mapping at the same resolution, i.e. the shift the model is applying.
// Failed queries are reported as NaN, matching the resampling loop's
// failure behaviour.
func diagnosticValue(e, n float64, gt raster.GeoTransform, xIn, yIn int, ok bool) float32 {
	if !ok {
		return float32(math.NaN())
	}
	identX, identY := gt.ToPixel(e, n)
	dx := float64(xIn) - identX
	dy := float64(yIn) - identY
	return float32(math.Hypot(dx, dy))
}
