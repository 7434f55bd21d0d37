// Package config parses the CLI flags shared across the seven imgreg
// subcommands, one flag.FlagSet per subcommand. There is no file-based
// configuration format; everything a run needs arrives through flags.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/match"
	"github.com/surveyforge/imgreg/internal/metric"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/register"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// Registration bundles the flags shared by basic/singlelayer/pxlshift.
type Registration struct {
	Reference string
	Floating  string
	Output    string

	OutputType string
	Format     string
	DataType   string

	MetricName string
	Window     int
	Search     int
	PixelGap   int
	Threshold  float64
	HasThreshold bool
	StdDevRef   float64
	StdDevFloat float64
	SubpixelRes int

	DistanceThreshold float64
	MaxIterations     int
	MovementThreshold float64
	PSmoothness       float64

	Concurrency int
	Verbose     bool
}

// NewRegistrationFlagSet builds the flag.FlagSet for a registration
// subcommand (basic, singlelayer, pxlshift).
func NewRegistrationFlagSet(name string) (*flag.FlagSet, *Registration) {
	r := &Registration{}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&r.Reference, "reference", "", "reference (base) raster path")
	fs.StringVar(&r.Floating, "floating", "", "floating (warp) raster path")
	fs.StringVar(&r.Output, "output", "", "output tie-point file path")
	fs.StringVar(&r.OutputType, "outputType", "rsgis_img2map", "tie-point file format: envi_img2img|envi_img2map|rsgis_img2map|rsgis_mapoffs")
	fs.StringVar(&r.Format, "format", "KEA", "output raster driver (not used: outputs are always GeoTIFF)")
	fs.StringVar(&r.DataType, "datatype", "Float32", "output raster datatype: Byte|UInt16|Int16|UInt32|Int32|Float32|Float64")
	fs.StringVar(&r.MetricName, "metric", "correlation", "similarity metric: euclidean|sqdiff|manhatten|correlation")
	fs.IntVar(&r.Window, "window", 9, "half-window size W")
	fs.IntVar(&r.Search, "search", 4, "half-search size S")
	fs.IntVar(&r.PixelGap, "pixelgap", 16, "tie-point seeding grid spacing")
	fs.Float64Var(&r.Threshold, "threshold", 0, "metric acceptance threshold (registration subcommands only)")
	fs.Float64Var(&r.StdDevRef, "stddevRef", 0, "minimum reference-window standard deviation")
	fs.Float64Var(&r.StdDevFloat, "stddevFloat", 0, "minimum floating-window standard deviation")
	fs.IntVar(&r.SubpixelRes, "subpixelresolution", 8, "sub-pixel refinement resolution R")
	fs.Float64Var(&r.DistanceThreshold, "distanceThreshold", 50, "single-layer: neighbour distance threshold (pixels)")
	fs.IntVar(&r.MaxIterations, "maxiterations", 10, "single-layer: maximum propagation rounds")
	fs.Float64Var(&r.MovementThreshold, "movementThreshold", 0.01, "single-layer: convergence threshold on average movement")
	fs.Float64Var(&r.PSmoothness, "pSmoothness", 1.0, "single-layer: propagation smoothness factor")
	fs.IntVar(&r.Concurrency, "concurrency", 1, "pxlshift: row worker count")
	fs.BoolVar(&r.Verbose, "verbose", false, "verbose per-iteration/per-point logging")
	return fs, r
}

// ThresholdPointer returns nil unless -threshold was set on the command
// line, so a run without the flag skips the acceptance test entirely.
func (r *Registration) ThresholdPointer(fs *flag.FlagSet) *float64 {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			set = true
		}
	})
	if !set {
		return nil
	}
	v := r.Threshold
	return &v
}

// MatchParams builds the matcher Params this registration run will use.
func (r *Registration) MatchParams(fs *flag.FlagSet) (match.Params, error) {
	m, err := metric.Parse(r.MetricName)
	if err != nil {
		return match.Params{}, err
	}
	return match.Params{
		HalfWindow:         r.Window,
		HalfSearch:         r.Search,
		Metric:             m,
		SubpixelResolution: r.SubpixelRes,
		Threshold:          r.ThresholdPointer(fs),
	}, nil
}

// Seed builds the grid-seeding tunables.
func (r *Registration) Seed() register.Seed {
	return register.Seed{
		Gap:         r.PixelGap,
		HalfWindow:  r.Window,
		StdDevRef:   r.StdDevRef,
		StdDevFloat: r.StdDevFloat,
	}
}

// OutputFormat parses -outputType into a tiepointio.Format.
func (r *Registration) OutputFormat() (tiepointio.Format, error) {
	return tiepointio.ParseFormat(r.OutputType)
}

// RequireRasterFlags validates the -reference/-floating/-output flags
// every registration subcommand needs.
func (r *Registration) RequireRasterFlags() error {
	if r.Reference == "" || r.Floating == "" {
		return errs.New(errs.Config, "-reference and -floating are required")
	}
	if r.Output == "" {
		return errs.New(errs.Config, "-output is required")
	}
	return nil
}

// Warp bundles the flags shared by triangularwarp/nnwarp/polywarp.
type Warp struct {
	Image      string
	GCPs       string
	Output     string
	Resolution float64
	Projection string
	PolyOrder  int
	Transform  string
	Format     string
	DataType   string
}

// NewWarpFlagSet builds the flag.FlagSet for a warp subcommand.
func NewWarpFlagSet(name string) (*flag.FlagSet, *Warp) {
	w := &Warp{}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&w.Image, "image", "", "input raster path")
	fs.StringVar(&w.GCPs, "gcps", "", "tie-point file path (RSGIS image-to-map format)")
	fs.StringVar(&w.Output, "output", "", "output raster path")
	fs.Float64Var(&w.Resolution, "resolution", 0, "output pixel resolution")
	fs.StringVar(&w.Projection, "projection", "", "path to a WKT projection sidecar file")
	fs.IntVar(&w.PolyOrder, "polyOrder", 2, "polynomial model: order k")
	fs.StringVar(&w.Transform, "transform", "no", "yes|no: emit a diagnostic transform image instead of resampling")
	fs.StringVar(&w.Format, "format", "KEA", "output raster driver (not used: outputs are always GeoTIFF)")
	fs.StringVar(&w.DataType, "datatype", "Float32", "output raster datatype (not used: the output keeps the input raster's datatype)")
	return fs, w
}

func (w *Warp) Require() error {
	if w.Image == "" || w.GCPs == "" || w.Output == "" {
		return errs.New(errs.Config, "-image, -gcps and -output are required")
	}
	if w.Resolution <= 0 {
		return errs.New(errs.Config, "-resolution must be positive")
	}
	if w.Transform != "yes" && w.Transform != "no" {
		return errs.New(errs.Config, "-transform must be yes or no, got %q", w.Transform)
	}
	return nil
}

// Diagnostic reports whether -transform yes was given.
func (w *Warp) Diagnostic() bool { return w.Transform == "yes" }

// ProjectionWKT reads the -projection sidecar file, if given; an empty
// flag value means "carry the input's own projection string forward".
func (w *Warp) ProjectionWKT() (string, error) {
	if w.Projection == "" {
		return "", nil
	}
	data, err := os.ReadFile(w.Projection)
	if err != nil {
		return "", errs.Wrap(errs.Io, err, "reading projection file %s", w.Projection)
	}
	return string(data), nil
}

// OpenPair opens the reference and floating rasters a registration
// subcommand needs, wrapping the open error with the path that failed.
func OpenPair(referencePath, floatingPath string) (ref, float *raster.Dataset, err error) {
	ref, err = raster.Open(referencePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening reference %s: %w", referencePath, err)
	}
	float, err = raster.Open(floatingPath)
	if err != nil {
		ref.Close()
		return nil, nil, fmt.Errorf("opening floating %s: %w", floatingPath, err)
	}
	return ref, float, nil
}
