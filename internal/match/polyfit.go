package match

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// fitQuadraticExtremum fits a quadratic through three equally-spaced
// samples at x = -1, 0, 1 and returns its vertex -b/2a, rejecting vertices
// outside [-1, 1].
func fitQuadraticExtremum(y0, y1, y2 float64) (x float64, ok bool) {
	a := (y0 - 2*y1 + y2) / 2
	b := (y2 - y0) / 2
	if a == 0 {
		return 0, false
	}
	v := -b / (2 * a)
	if math.IsNaN(v) || v < -1 || v > 1 {
		return 0, false
	}
	return v, true
}

// fitQuarticExtremum fits a quartic through five equally-spaced samples at
// x = -2,-1,0,1,2 via a Vandermonde least-squares solve, then finds the
// real roots of its derivative (a cubic) and returns whichever root lies
// in [-1,1] and is consistent with findMin (a true minimum/maximum of the
// quartic, not a saddle).
func fitQuarticExtremum(y []float64, findMin bool) (x float64, ok bool) {
	if len(y) != 5 {
		return 0, false
	}
	xs := []float64{-2, -1, 0, 1, 2}

	a := mat.NewDense(5, 5, nil)
	for i, xv := range xs {
		a.Set(i, 0, 1)
		a.Set(i, 1, xv)
		a.Set(i, 2, xv*xv)
		a.Set(i, 3, xv*xv*xv)
		a.Set(i, 4, xv*xv*xv*xv)
	}
	b := mat.NewVecDense(5, y)
	var coeffs mat.VecDense
	if err := coeffs.SolveVec(a, b); err != nil {
		return 0, false
	}
	c0, c1, c2, c3, c4 := coeffs.AtVec(0), coeffs.AtVec(1), coeffs.AtVec(2), coeffs.AtVec(3), coeffs.AtVec(4)

	// Derivative: 4*c4*x^3 + 3*c3*x^2 + 2*c2*x + c1 = 0.
	roots := cubicRoots(4*c4, 3*c3, 2*c2, c1)

	quartic := func(x float64) float64 {
		return c0 + c1*x + c2*x*x + c3*x*x*x + c4*x*x*x*x
	}
	second := func(x float64) float64 {
		return 2*c2 + 6*c3*x + 12*c4*x*x
	}

	bestFound := false
	var best, bestVal float64
	for _, r := range roots {
		if r < -1 || r > 1 {
			continue
		}
		curvature := second(r)
		// A minimum has positive curvature, a maximum negative.
		if findMin && curvature < 0 {
			continue
		}
		if !findMin && curvature > 0 {
			continue
		}
		v := quartic(r)
		if !bestFound || (findMin && v < bestVal) || (!findMin && v > bestVal) {
			best, bestVal, bestFound = r, v, true
		}
	}
	return best, bestFound
}

// cubicRoots returns the real roots of a*x^3 + b*x^2 + c*x + d = 0 via
// Cardano's formula.
func cubicRoots(a, b, c, d float64) []float64 {
	if math.Abs(a) < 1e-12 {
		return quadraticRoots(b, c, d)
	}
	b, c, d = b/a, c/a, d/a

	p := c - b*b/3
	q := 2*b*b*b/27 - b*c/3 + d

	delta0 := complex(p, 0)
	delta1 := complex(q, 0)

	disc := delta1*delta1/4 + delta0*delta0*delta0/27
	sqrtDisc := cmplx.Sqrt(disc)

	u1 := cmplx.Pow(-delta1/2+sqrtDisc, 1.0/3.0)
	var roots []float64
	omegas := []complex128{1, complex(-0.5, math.Sqrt(3)/2), complex(-0.5, -math.Sqrt(3)/2)}
	seen := map[complex128]bool{}
	for _, w := range omegas {
		u := u1 * w
		var t complex128
		if cmplx.Abs(u) < 1e-9 {
			t = 0
		} else {
			t = u - delta0/(3*u)
		}
		root := t - complex(b/3, 0)
		key := complex(math.Round(real(root)*1e6)/1e6, math.Round(imag(root)*1e6)/1e6)
		if seen[key] {
			continue
		}
		seen[key] = true
		if math.Abs(imag(root)) < 1e-6 {
			roots = append(roots, real(root))
		}
	}
	return roots
}

func quadraticRoots(a, b, c float64) []float64 {
	if a == 0 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	sq := math.Sqrt(disc)
	return []float64{(-b + sq) / (2 * a), (-b - sq) / (2 * a)}
}

// sampleFallback locates an approximate extremum by sampling r points per
// unit across [-1,1], used when the analytic fit fails.
func sampleFallback(eval func(x float64) float64, findMin bool, r int) (x float64, ok bool) {
	if r < 1 {
		r = 1
	}
	n := 2 * r
	bestFound := false
	var best, bestVal float64
	for i := 0; i <= n; i++ {
		xv := -1 + 2*float64(i)/float64(n)
		v := eval(xv)
		if math.IsNaN(v) {
			continue
		}
		if !bestFound || (findMin && v < bestVal) || (!findMin && v > bestVal) {
			best, bestVal, bestFound = xv, v, true
		}
	}
	return best, bestFound
}
