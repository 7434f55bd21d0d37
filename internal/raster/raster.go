// Package raster is the registration engine's view onto geo-referenced
// rasters. It is deliberately narrow: dimensions, band count, a
// six-parameter geotransform, an opaque projection string, and
// 32-bit-float block read/write. The on-disk container is a baseline or
// LZW-compressed strip GeoTIFF subset; this package only needs to
// round-trip its own inputs and outputs, not arbitrary GDAL rasters.
package raster

import (
	"math"

	"github.com/surveyforge/imgreg/internal/errs"
)

// GeoTransform is the 6-element affine transform
// (origin_x, pixel_width, row_skew, origin_y, column_skew, pixel_height).
// pixel_height is negative for north-up rasters. Skew is carried through
// end-to-end but the matching code assumes axis-aligned pixels.
type GeoTransform struct {
	OriginX    float64
	PixelWidth float64
	RowSkew    float64
	OriginY    float64
	ColSkew    float64
	PixelHeight float64
}

// Valid reports whether the transform has a usable pixel size.
func (g GeoTransform) Valid() bool {
	return g.PixelWidth > 0 && math.Abs(g.PixelHeight) > 0
}

// ToMap converts pixel coordinates (column, row) to map coordinates,
// honouring skew.
func (g GeoTransform) ToMap(px, py float64) (x, y float64) {
	x = g.OriginX + px*g.PixelWidth + py*g.RowSkew
	y = g.OriginY + px*g.ColSkew + py*g.PixelHeight
	return
}

// ToPixel inverts ToMap for the axis-aligned case (RowSkew == ColSkew == 0),
// which is what the matching code assumes throughout.
func (g GeoTransform) ToPixel(x, y float64) (px, py float64) {
	px = (x - g.OriginX) / g.PixelWidth
	py = (y - g.OriginY) / g.PixelHeight
	return
}

// Envelope is an axis-aligned map-space bounding box.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width and Height of the envelope in map units.
func (e Envelope) Width() float64  { return e.MaxX - e.MinX }
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// Intersect returns the intersection of e and o. The result may have
// non-positive Width/Height if the two envelopes don't overlap.
func (e Envelope) Intersect(o Envelope) Envelope {
	return Envelope{
		MinX: math.Max(e.MinX, o.MinX),
		MinY: math.Max(e.MinY, o.MinY),
		MaxX: math.Min(e.MaxX, o.MaxX),
		MaxY: math.Min(e.MaxY, o.MaxY),
	}
}

// DType enumerates the pixel sample types the CLI can request for output
// rasters.
type DType int

const (
	Byte DType = iota
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

// ParseDType parses the --datatype flag values.
func ParseDType(s string) (DType, error) {
	switch s {
	case "Byte":
		return Byte, nil
	case "UInt16":
		return UInt16, nil
	case "Int16":
		return Int16, nil
	case "UInt32":
		return UInt32, nil
	case "Int32":
		return Int32, nil
	case "Float32":
		return Float32, nil
	case "Float64":
		return Float64, nil
	default:
		return 0, errs.New(errs.Config, "unknown datatype %q", s)
	}
}

func (d DType) bitsPerSample() uint16 {
	switch d {
	case Byte:
		return 8
	case UInt16, Int16:
		return 16
	case UInt32, Int32, Float32:
		return 32
	case Float64:
		return 64
	default:
		return 32
	}
}

// sampleFormat returns the TIFF SampleFormat tag value: 1 = unsigned int,
// 2 = signed int, 3 = IEEE float.
func (d DType) sampleFormat() uint16 {
	switch d {
	case Byte, UInt16, UInt32:
		return 1
	case Int16, Int32:
		return 2
	case Float32, Float64:
		return 3
	default:
		return 3
	}
}

// GCP is a ground control point attached to a raster without resampling
// it.
type GCP struct {
	Easting, Northing float64
	PixelX, PixelY    float64
}

// Raster is the adapter contract the registration and warp engines are
// written against. Implementations must serialise their own concurrent
// access; the engines never call a Raster from more than one goroutine
// without external synchronisation.
type Raster interface {
	Width() int
	Height() int
	NumBands() int
	GeoTransform() GeoTransform
	Projection() string
	DataType() DType

	// ReadBlock reads a (w x h) window starting at (xoff, yoff), one
	// []float32 plane of length w*h per band, row-major. Windows that
	// fall partially or wholly outside the raster are zero-filled for
	// the out-of-bounds portion.
	ReadBlock(xoff, yoff, w, h int) ([][]float32, error)

	// WriteBlock writes one []float32 plane per band into a (w x h)
	// window starting at (xoff, yoff). Only valid on rasters opened for
	// writing (see Create).
	WriteBlock(xoff, yoff, w, h int, bands [][]float32) error

	// SetBandDescription labels band i (0-based), used by the per-pixel
	// registration's three-band diagnostic output.
	SetBandDescription(i int, desc string) error

	SetGCPs(gcps []GCP)
	GCPs() []GCP

	Close() error
}

func blockOutOfRange(r Raster, xoff, yoff, w, h int) error {
	if w <= 0 || h <= 0 {
		return errs.New(errs.Io, "block %dx%d has non-positive extent", w, h)
	}
	if xoff+w <= 0 || yoff+h <= 0 || xoff >= r.Width() || yoff >= r.Height() {
		return nil // fully outside: caller zero-fills, not an error
	}
	return nil
}
