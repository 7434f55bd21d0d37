// Command imgreg is the single CLI binary for the image co-registration
// and warping engine, dispatching on os.Args[1] to one of seven
// subcommands.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/surveyforge/imgreg/internal/config"
	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/gcp"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/register"
	"github.com/surveyforge/imgreg/internal/tiepointio"
	"github.com/surveyforge/imgreg/internal/warp"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "basic":
		err = runBasic(os.Args[2:])
	case "singlelayer":
		err = runSingleLayer(os.Args[2:])
	case "pxlshift":
		err = runPxlShift(os.Args[2:])
	case "triangularwarp", "nnwarp", "polywarp":
		err = runWarp(os.Args[2:], os.Args[1])
	case "gcp2gdal":
		err = runGCP2GDAL(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("imgreg %s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: imgreg <basic|singlelayer|triangularwarp|nnwarp|polywarp|pxlshift|gcp2gdal> [flags]")
}

func runBasic(args []string) error {
	fs, r := config.NewRegistrationFlagSet("basic")
	fs.Parse(args)
	if err := r.RequireRasterFlags(); err != nil {
		return err
	}

	ref, float, err := config.OpenPair(r.Reference, r.Floating)
	if err != nil {
		return err
	}
	defer ref.Close()
	defer float.Close()

	matchParams, err := r.MatchParams(fs)
	if err != nil {
		return err
	}
	format, err := r.OutputFormat()
	if err != nil {
		return err
	}

	points, _, err := register.Basic(ref, float, register.BasicParams{
		Seed:    r.Seed(),
		Match:   matchParams,
		Verbose: r.Verbose,
	})
	if err != nil {
		return err
	}
	return tiepointio.Write(r.Output, format, points)
}

func runSingleLayer(args []string) error {
	fs, r := config.NewRegistrationFlagSet("singlelayer")
	fs.Parse(args)
	if err := r.RequireRasterFlags(); err != nil {
		return err
	}

	ref, float, err := config.OpenPair(r.Reference, r.Floating)
	if err != nil {
		return err
	}
	defer ref.Close()
	defer float.Close()

	matchParams, err := r.MatchParams(fs)
	if err != nil {
		return err
	}
	format, err := r.OutputFormat()
	if err != nil {
		return err
	}

	result, _, err := register.SingleLayer(ref, float, register.SingleLayerParams{
		Seed:              r.Seed(),
		Match:             matchParams,
		DistanceThreshold: r.DistanceThreshold,
		MaxIter:           r.MaxIterations,
		MoveChangeThresh:  r.MovementThreshold,
		PSmoothness:       r.PSmoothness,
		Verbose:           r.Verbose,
	})
	if err != nil {
		return err
	}
	return tiepointio.Write(r.Output, format, result.Points)
}

func runPxlShift(args []string) error {
	fs, r := config.NewRegistrationFlagSet("pxlshift")
	fs.Parse(args)
	if r.Reference == "" || r.Floating == "" {
		return errs.New(errs.Config, "-reference and -floating are required")
	}
	if r.Output == "" {
		return errs.New(errs.Config, "-output is required")
	}

	ref, float, err := config.OpenPair(r.Reference, r.Floating)
	if err != nil {
		return err
	}
	defer ref.Close()
	defer float.Close()

	matchParams, err := r.MatchParams(fs)
	if err != nil {
		return err
	}
	dtype, err := raster.ParseDType(r.DataType)
	if err != nil {
		return err
	}

	ov, err := overlap.Compute(ref, float)
	if err != nil {
		return err
	}

	out, err := raster.Create(r.Output, ov.Width, ov.Height, 3, dtype, ov.GeoTransform(), ref.Projection())
	if err != nil {
		return errs.Wrap(errs.Io, err, "creating diagnostic output %s", r.Output)
	}
	defer out.Close()
	out.SetBandDescription(0, "X Shift")
	out.SetBandDescription(1, "Y Shift")
	out.SetBandDescription(2, "Metric Value")

	return register.PerPixel(ref, float, out, register.PixelParams{
		HalfWindow:         r.Window,
		HalfSearch:         r.Search,
		Metric:             matchParams,
		SubpixelResolution: r.SubpixelRes,
		Concurrency:        r.Concurrency,
	})
}

func runGCP2GDAL(args []string) error {
	fs := flag.NewFlagSet("gcp2gdal", flag.ExitOnError)
	var image, gcps, output, datatype string
	fs.StringVar(&image, "image", "", "input raster path")
	fs.StringVar(&gcps, "gcps", "", "tie-point file path (RSGIS image-to-map format)")
	fs.StringVar(&output, "output", "", "output raster path")
	fs.String("format", "KEA", "output raster driver (not used: outputs are always GeoTIFF)")
	fs.StringVar(&datatype, "datatype", "Float32", "output raster datatype")
	fs.Parse(args)

	if image == "" || gcps == "" || output == "" {
		return errs.New(errs.Config, "-image, -gcps and -output are required")
	}
	dtype, err := raster.ParseDType(datatype)
	if err != nil {
		return err
	}

	src, err := raster.Open(image)
	if err != nil {
		return errs.Wrap(errs.Io, err, "opening %s", image)
	}
	defer src.Close()

	dst, err := raster.Create(output, src.Width(), src.Height(), src.NumBands(), dtype, src.GeoTransform(), src.Projection())
	if err != nil {
		return errs.Wrap(errs.Io, err, "creating %s", output)
	}
	defer dst.Close()

	return gcp.Apply(src, dst, gcps)
}

func runWarp(args []string, name string) error {
	fs, w := config.NewWarpFlagSet(name)
	fs.Parse(args)
	if err := w.Require(); err != nil {
		return err
	}

	src, err := raster.Open(w.Image)
	if err != nil {
		return errs.Wrap(errs.Io, err, "opening %s", w.Image)
	}
	defer src.Close()

	projection, err := w.ProjectionWKT()
	if err != nil {
		return err
	}
	if projection == "" {
		projection = src.Projection()
	}

	var model warp.Model
	switch name {
	case "nnwarp":
		model = warp.NewNearest()
	case "triangularwarp":
		model = warp.NewTriangulation()
	case "polywarp":
		model = warp.NewPolynomial(w.PolyOrder)
	default:
		return errs.New(errs.Config, "unknown warp subcommand %q", name)
	}

	return warp.Run(src, model, w.GCPs, w.Output, warp.Params{
		Resolution: w.Resolution,
		Projection: projection,
		Diagnostic: w.Diagnostic(),
	})
}
