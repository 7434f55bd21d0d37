package register

import (
	"sync"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/match"
	"github.com/surveyforge/imgreg/internal/overlap"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

// PixelParams bundles the per-pixel solver's tunables.
type PixelParams struct {
	HalfWindow         int
	HalfSearch         int
	Metric             match.Params // Threshold is ignored: the per-pixel path never thresholds
	SubpixelResolution int
	// Concurrency splits output rows across worker goroutines. The default
	// is 1, keeping the solver single-threaded; values > 1 are an opt-in
	// for this diagnostic path only. Reads against ref/float are serialised
	// through a shared mutex since raster adapters are not required to be
	// safe for multi-goroutine callers.
	Concurrency int
}

// PerPixel matches every overlap pixel with its own transient tie point
// and no metric threshold, producing the three-band shift diagnostic. out
// must already be sized to the overlap with 3 bands; rows are written one
// at a time to bound memory.
func PerPixel(ref, float raster.Raster, out raster.Raster, p PixelParams) error {
	ov, err := overlap.Compute(ref, float)
	if err != nil {
		return err
	}
	if out.Width() != ov.Width || out.Height() != ov.Height || out.NumBands() != 3 {
		return errs.New(errs.Config, "pixel registration output must be %dx%d with 3 bands", ov.Width, ov.Height)
	}

	params := match.Params{
		HalfWindow:         p.HalfWindow,
		HalfSearch:         p.HalfSearch,
		Metric:             p.Metric.Metric,
		SubpixelResolution: p.SubpixelResolution,
		Threshold:          nil,
	}

	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	if concurrency == 1 {
		xShiftRow := make([]float32, ov.Width)
		yShiftRow := make([]float32, ov.Width)
		metricRow := make([]float32, ov.Width)
		for y := 0; y < ov.Height; y++ {
			if err := pixelRow(ref, float, ov, params, y, xShiftRow, yShiftRow, metricRow); err != nil {
				return err
			}
			if err := out.WriteBlock(0, y, ov.Width, 1, [][]float32{xShiftRow, yShiftRow, metricRow}); err != nil {
				return errs.Wrap(errs.Io, err, "writing diagnostic row %d", y)
			}
		}
		return nil
	}

	// Concurrency > 1: compute every row's three bands in parallel worker
	// goroutines, serialising reference/floating reads through a shared
	// mutex, then write rows out sequentially once every worker has drained.
	var mu sync.Mutex
	lockedRef := &lockedRaster{Raster: ref, mu: &mu}
	lockedFloat := &lockedRaster{Raster: float, mu: &mu}

	rows := make([][3][]float32, ov.Height)
	jobs := make(chan int, ov.Height)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range jobs {
				xShiftRow := make([]float32, ov.Width)
				yShiftRow := make([]float32, ov.Width)
				metricRow := make([]float32, ov.Width)
				if err := pixelRow(lockedRef, lockedFloat, ov, params, y, xShiftRow, yShiftRow, metricRow); err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				rows[y] = [3][]float32{xShiftRow, yShiftRow, metricRow}
			}
		}()
	}
	for y := 0; y < ov.Height; y++ {
		jobs <- y
	}
	close(jobs)
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}

	for y, row := range rows {
		if err := out.WriteBlock(0, y, ov.Width, 1, [][]float32{row[0], row[1], row[2]}); err != nil {
			return errs.Wrap(errs.Io, err, "writing diagnostic row %d", y)
		}
	}
	return nil
}

func pixelRow(ref, float raster.Raster, ov *overlap.Region, p match.Params, y int, xShiftRow, yShiftRow, metricRow []float32) error {
	for x := 0; x < ov.Width; x++ {
		tp := tiepoint.NewSeed(0, 0, float64(x), float64(y))
		if _, err := match.Run(ref, float, ov, &tp, p); err != nil {
			return errs.Wrap(errs.Io, err, "per-pixel registration at (%d,%d)", x, y)
		}
		xShiftRow[x] = float32(tp.XShift)
		yShiftRow[x] = float32(tp.YShift)
		metricRow[x] = float32(tp.Metric)
	}
	return nil
}

// lockedRaster serialises ReadBlock/WriteBlock behind a shared mutex so
// PerPixel's concurrent row workers can safely share one reference and one
// floating raster.
type lockedRaster struct {
	raster.Raster
	mu *sync.Mutex
}

func (l *lockedRaster) ReadBlock(xoff, yoff, w, h int) ([][]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Raster.ReadBlock(xoff, yoff, w, h)
}

func (l *lockedRaster) WriteBlock(xoff, yoff, w, h int, bands [][]float32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Raster.WriteBlock(xoff, yoff, w, h, bands)
}
