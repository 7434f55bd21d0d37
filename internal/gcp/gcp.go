// Package gcp implements the GCP model carrier: it copies a raster's
// pixels unchanged into an output file and attaches a tie-point set as the
// output's ground-control-point list, performing no geometric resampling.
package gcp

import (
	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// Apply copies src's pixels unchanged into dst (both already open, with
// matching dimensions and band counts) and attaches the tie points read
// from gcpPath as dst's GCP list. The fifth (metric) column, if present,
// is ignored; only the (easting, northing, x, y) quadruple is carried.
func Apply(src, dst raster.Raster, gcpPath string) error {
	if src.Width() != dst.Width() || src.Height() != dst.Height() {
		return errs.New(errs.Config, "gcp2gdal: output dimensions must match input (%dx%d vs %dx%d)",
			dst.Width(), dst.Height(), src.Width(), src.Height())
	}
	if src.NumBands() != dst.NumBands() {
		return errs.New(errs.Config, "gcp2gdal: output band count must match input (%d vs %d)", dst.NumBands(), src.NumBands())
	}

	const rowBatch = 256
	for y := 0; y < src.Height(); y += rowBatch {
		h := rowBatch
		if y+h > src.Height() {
			h = src.Height() - y
		}
		bands, err := src.ReadBlock(0, y, src.Width(), h)
		if err != nil {
			return errs.Wrap(errs.Io, err, "reading input rows %d-%d", y, y+h)
		}
		if err := dst.WriteBlock(0, y, src.Width(), h, bands); err != nil {
			return errs.Wrap(errs.Io, err, "writing output rows %d-%d", y, y+h)
		}
	}

	records, err := tiepointio.ReadWarpRecords(gcpPath)
	if err != nil {
		return err
	}
	gcps := make([]raster.GCP, len(records))
	for i, r := range records {
		gcps[i] = raster.GCP{Easting: r.Easting, Northing: r.Northing, PixelX: r.X, PixelY: r.Y}
	}
	dst.SetGCPs(gcps)
	return nil
}
