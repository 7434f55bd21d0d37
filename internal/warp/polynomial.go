package warp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/raster"
	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// Polynomial is the global polynomial inverse model: a single polynomial
// pair solved once by weighted least squares, one equation system for x_in
// and one for y_in. The design-matrix column order is fixed at
// [1, E, N, E*N, E^2, N^2, ..., E*N^(k-1), E^k, N^k].
type Polynomial struct {
	Order int

	exponents [][2]int // [eExp, nExp] per design-matrix column, in fixed order
	coeffX    []float64
	coeffY    []float64
	// RMSE is the root-mean-square fit residual in input pixels.
	RMSE float64
}

// NewPolynomial returns an unfit model for the given order; Prepare solves
// its coefficients.
func NewPolynomial(order int) *Polynomial {
	return &Polynomial{Order: order}
}

// designMatrixColumns enumerates the (eExp, nExp) exponent pairs for
// degrees 0..k: degree 0 is the constant column; degree 1 is [E, N];
// degree d>=2 lists mixed terms E^(d-i)*N^i for i=1..d-1 (ending at
// E*N^(d-1)) followed by the pure terms E^d, N^d.
func designMatrixColumns(k int) [][2]int {
	cols := [][2]int{{0, 0}}
	for d := 1; d <= k; d++ {
		if d == 1 {
			cols = append(cols, [2]int{1, 0}, [2]int{0, 1})
			continue
		}
		for i := 1; i <= d-1; i++ {
			cols = append(cols, [2]int{d - i, i})
		}
		cols = append(cols, [2]int{d, 0}, [2]int{0, d})
	}
	return cols
}

func evalMonomial(e, n float64, exp [2]int) float64 {
	return math.Pow(e, float64(exp[0])) * math.Pow(n, float64(exp[1]))
}

func (m *Polynomial) Prepare(points []tiepointio.WarpRecord) error {
	if m.Order < 1 {
		return errs.New(errs.Config, "polynomial model: order must be >= 1")
	}
	m.exponents = designMatrixColumns(m.Order)
	nCols := len(m.exponents)
	nRows := len(points)
	if nRows < nCols {
		return errs.New(errs.Config, "polynomial model: need at least %d tie points for order %d, got %d", nCols, m.Order, nRows)
	}

	a := mat.NewDense(nRows, nCols, nil)
	w := make([]float64, nRows)
	bx := mat.NewVecDense(nRows, nil)
	by := mat.NewVecDense(nRows, nil)
	for r, p := range points {
		for c, exp := range m.exponents {
			a.Set(r, c, evalMonomial(p.Easting, p.Northing, exp))
		}
		weight := 1.0
		if p.HasMetric && p.Metric > 0 {
			weight = p.Metric
		}
		w[r] = weight
		bx.SetVec(r, p.X)
		by.SetVec(r, p.Y)
	}

	coeffX, err := weightedLeastSquares(a, w, bx)
	if err != nil {
		return errs.Wrap(errs.NumericFailure, err, "polynomial fit for x_in did not converge")
	}
	coeffY, err := weightedLeastSquares(a, w, by)
	if err != nil {
		return errs.Wrap(errs.NumericFailure, err, "polynomial fit for y_in did not converge")
	}
	m.coeffX = coeffX
	m.coeffY = coeffY

	var sqSum float64
	for _, p := range points {
		px, py := m.eval(p.Easting, p.Northing)
		sqSum += (px - p.X) * (px - p.X)
		sqSum += (py - p.Y) * (py - p.Y)
	}
	m.RMSE = math.Sqrt(sqSum / float64(2*nRows))
	return nil
}

// weightedLeastSquares solves min sum_i w_i (a_i . x - b_i)^2 via the
// normal equations (A^T W A) x = A^T W b.
func weightedLeastSquares(a *mat.Dense, w []float64, b *mat.VecDense) ([]float64, error) {
	rows, cols := a.Dims()
	wa := mat.NewDense(rows, cols, nil)
	wb := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			wa.Set(r, c, a.At(r, c)*w[r])
		}
		wb.SetVec(r, b.AtVec(r)*w[r])
	}

	var ata mat.Dense
	ata.Mul(wa.T(), a)
	var atb mat.VecDense
	atb.MulVec(wa.T(), b)

	var x mat.VecDense
	if err := x.SolveVec(&ata, &atb); err != nil {
		return nil, err
	}
	out := make([]float64, cols)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

func (m *Polynomial) eval(e, n float64) (x, y float64) {
	for i, exp := range m.exponents {
		v := evalMonomial(e, n, exp)
		x += m.coeffX[i] * v
		y += m.coeffY[i] * v
	}
	return x, y
}

func (m *Polynomial) Extent(points []tiepointio.WarpRecord) raster.Envelope {
	env := raster.Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range points {
		env.MinX = math.Min(env.MinX, p.Easting)
		env.MaxX = math.Max(env.MaxX, p.Easting)
		env.MinY = math.Min(env.MinY, p.Northing)
		env.MaxY = math.Max(env.MaxY, p.Northing)
	}
	return env
}

func (m *Polynomial) Locate(e, n, resIn float64) (xIn, yIn int, ok bool) {
	x, y := m.eval(e, n)
	return int(math.Round(x)), int(math.Round(y)), true
}
