package match

import (
	"math"
	"testing"

	"github.com/surveyforge/imgreg/internal/metric"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// planeRaster is an in-memory raster backed by a single deterministic
// float32 plane, used to exercise the matcher without touching disk.
type planeRaster struct {
	w, h int
	data []float32 // row-major
}

func newCheckerRaster(w, h int) *planeRaster {
	data := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := math.Sin(float64(x)*0.3) + math.Cos(float64(y)*0.2)
			data[y*w+x] = float32(v)
		}
	}
	return &planeRaster{w: w, h: h, data: data}
}

func (p *planeRaster) Width() int  { return p.w }
func (p *planeRaster) Height() int { return p.h }
func (p *planeRaster) NumBands() int { return 1 }
func (p *planeRaster) GeoTransform() raster.GeoTransform {
	return raster.GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: float64(p.h), PixelHeight: -1}
}
func (p *planeRaster) Projection() string     { return "" }
func (p *planeRaster) DataType() raster.DType { return raster.Float32 }
func (p *planeRaster) ReadBlock(xoff, yoff, w, h int) ([][]float32, error) {
	out := make([]float32, w*h)
	for ry := 0; ry < h; ry++ {
		sy := yoff + ry
		for rx := 0; rx < w; rx++ {
			sx := xoff + rx
			if sx < 0 || sx >= p.w || sy < 0 || sy >= p.h {
				out[ry*w+rx] = float32(math.NaN())
				continue
			}
			out[ry*w+rx] = p.data[sy*p.w+sx]
		}
	}
	return [][]float32{out}, nil
}
func (p *planeRaster) WriteBlock(xoff, yoff, w, h int, bands [][]float32) error { return nil }
func (p *planeRaster) SetBandDescription(i int, desc string) error             { return nil }
func (p *planeRaster) SetGCPs(gcps []raster.GCP)                               {}
func (p *planeRaster) GCPs() []raster.GCP                                      { return nil }
func (p *planeRaster) Close() error                                            { return nil }

func TestRunSelfRegistrationConverges(t *testing.T) {
	r := newCheckerRaster(64, 64)
	ov := &overlap.Region{
		Width: 64, Height: 64,
		RefOffsetX: 0, RefOffsetY: 0,
		FloatOffsetX: 0, FloatOffsetY: 0,
		RefBands: 1, FloatBands: 1,
	}
	tp := tiepoint.NewSeed(32, 32, 32, 32)

	params := Params{HalfWindow: 9, HalfSearch: 4, Metric: metric.Correlation, SubpixelResolution: 8}
	movement, err := Run(r, r, ov, &tp, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if movement < 0 {
		t.Errorf("movement = %v, want >= 0", movement)
	}
	if math.Abs(tp.XShift) > 1.0/float64(params.SubpixelResolution)+1e-6 {
		t.Errorf("XShift = %v, want near 0 for self-registration", tp.XShift)
	}
	if math.Abs(tp.YShift) > 1.0/float64(params.SubpixelResolution)+1e-6 {
		t.Errorf("YShift = %v, want near 0 for self-registration", tp.YShift)
	}
	if math.IsNaN(tp.Metric) || tp.Metric < 0.99 {
		t.Errorf("Metric = %v, want >= 0.99 for identical images", tp.Metric)
	}
}

func TestRunOutOfBoundsYieldsNaN(t *testing.T) {
	r := newCheckerRaster(8, 8)
	ov := &overlap.Region{Width: 8, Height: 8}
	tp := tiepoint.NewSeed(0, 0, 1000, 1000)

	params := Params{HalfWindow: 3, HalfSearch: 2, Metric: metric.Euclidean, SubpixelResolution: 4}
	_, err := Run(r, r, ov, &tp, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !math.IsNaN(tp.Metric) {
		t.Errorf("Metric = %v, want NaN for an out-of-bounds tie point", tp.Metric)
	}
}
