// Package tiepointio reads and writes the four tie-point text formats:
// two ENVI GCP layouts (tab-separated, ';' comments) and two RSGIS layouts
// (comma-separated, '#' comments).
package tiepointio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// Format identifies one of the four on-disk tie-point layouts.
type Format int

const (
	// ENVIImage2Image: "\t<x_ref>\t<y_ref>\t<x_float>\t<y_float>", ';' comments.
	ENVIImage2Image Format = iota
	// ENVIImage2Map: "\t<easting>\t<northing>\t<x_float>\t<y_float>", ';' comments.
	ENVIImage2Map
	// RSGISImage2Map: "<easting>,<northing>,<x_float>,<y_float>,<metric>", '#' comments.
	RSGISImage2Map
	// RSGISMapOffsets: "<easting>,<northing>,<x_shift>,<y_shift>,<metric>", '#' comments.
	RSGISMapOffsets
)

// ParseFormat maps the --outputType CLI flag values to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "envi_img2img":
		return ENVIImage2Image, nil
	case "envi_img2map":
		return ENVIImage2Map, nil
	case "rsgis_img2map":
		return RSGISImage2Map, nil
	case "rsgis_mapoffs":
		return RSGISMapOffsets, nil
	default:
		return 0, errs.New(errs.Config, "unknown outputType %q", s)
	}
}

// Write serialises tie points in the requested format. Numeric values are
// written in fixed notation with 12 decimal places so downstream parsers
// always see at least 10 significant digits.
func Write(path string, format Format, points []tiepoint.TiePoint) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.Io, err, "creating tie point file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	switch format {
	case ENVIImage2Image:
		fmt.Fprint(w, "; ENVI Image to Image GCP File\n; base file: ...\n; warp file: ...\n; Base Image (x,y), Warp Image (x,y)\n;\n")
		for _, p := range points {
			fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\n", f12(p.XRef), f12(p.YRef), f12(p.XFloat), f12(p.YFloat))
		}
	case ENVIImage2Map:
		fmt.Fprint(w, "; ENVI Image to Map GCP File\n; projection info = ...\n; warp file: ...\n; Map (x,y), Image (x,y)\n;\n")
		for _, p := range points {
			fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\n", f12(p.Easting), f12(p.Northing), f12(p.XFloat), f12(p.YFloat))
		}
	case RSGISImage2Map:
		fmt.Fprint(w, "# RSGISLib Image to Map GCP File\n# Reference Map (E,N), Floating Image (x,y), Metric Value\n#\n")
		for _, p := range points {
			fmt.Fprintf(w, "%s,%s,%s,%s,%s\n", f12(p.Easting), f12(p.Northing), f12(p.XFloat), f12(p.YFloat), f12(p.Metric))
		}
		fmt.Fprint(w, "# End Of File\n")
	case RSGISMapOffsets:
		fmt.Fprint(w, "# RSGISLib Map offsets GCP File\n# Eastings, Northings, Offset to correct location for floating image (E,N), Metric Value\n#\n")
		for _, p := range points {
			fmt.Fprintf(w, "%s,%s,%s,%s,%s\n", f12(p.Easting), f12(p.Northing), f12(p.XShift), f12(p.YShift), f12(p.Metric))
		}
		fmt.Fprint(w, "# End Of File\n")
	default:
		return errs.New(errs.Config, "unknown tie point format %d", format)
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.Io, err, "writing tie point file %s", path)
	}
	return nil
}

func f12(v float64) string {
	return strconv.FormatFloat(v, 'f', 12, 64)
}

// WarpRecord is a single row of the RSGIS image-to-map tie-point file that
// feeds the warp engine: easting, northing, floating pixel x/y, and an
// optional metric (the fifth column, ignored by the warp models).
type WarpRecord struct {
	Easting, Northing float64
	X, Y              float64
	Metric            float64
	HasMetric         bool
}

// ReadWarpRecords parses the comma-separated tie-point file the warp
// engine consumes: '#' or ';' starts a comment, blank lines are allowed,
// and each data line must have exactly 4 or 5 comma-separated tokens.
func ReadWarpRecords(path string) ([]WarpRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "opening tie point file %s", path)
	}
	defer f.Close()

	var records []WarpRecord
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		tokens := strings.Split(line, ",")
		for i := range tokens {
			tokens[i] = strings.TrimSpace(tokens[i])
		}
		if len(tokens) != 4 && len(tokens) != 5 {
			return nil, errs.New(errs.Io, "%s:%d: expected 4 or 5 comma-separated tokens, got %d: %q", path, lineNo, len(tokens), line)
		}
		rec := WarpRecord{}
		vals := make([]float64, len(tokens))
		for i, t := range tokens {
			v, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, errs.Wrap(errs.Io, err, "%s:%d: parsing token %q", path, lineNo, t)
			}
			vals[i] = v
		}
		rec.Easting, rec.Northing, rec.X, rec.Y = vals[0], vals[1], vals[2], vals[3]
		if len(vals) == 5 {
			rec.Metric = vals[4]
			rec.HasMetric = true
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.Io, err, "reading tie point file %s", path)
	}
	return records, nil
}
