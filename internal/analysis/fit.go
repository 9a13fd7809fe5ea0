package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fitPolynomial fits y = c0 + c1*x + ... + cd*x^d by ordinary least squares. x is
// scaled into [-1, 1] first so the normal equations (XᵀX)c = Xᵀy stay well
// conditioned on long series; they are solved with a Cholesky factorization, and
// with a QR least squares solve of the design matrix when that fails.
func fitPolynomial(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("x and y lengths differ: %d != %d", len(x), len(y))
	}
	terms := degree + 1
	if len(x) < terms {
		return nil, fmt.Errorf("need at least %d points for a degree %d fit, have %d", terms, degree, len(x))
	}

	scale := 0.0
	for _, xi := range x {
		scale = max(scale, math.Abs(xi))
	}
	if scale == 0 {
		scale = 1
	}

	design := mat.NewDense(len(x), terms, nil)
	for i, xi := range x {
		u := xi / scale
		p := 1.0
		for j := 0; j < terms; j++ {
			design.Set(i, j, p)
			p *= u
		}
	}
	obs := mat.NewVecDense(len(y), y)

	var coef mat.VecDense
	if err := solveNormal(&coef, design, obs); err != nil {
		if err := coef.SolveVec(design, obs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return nil, fmt.Errorf("solving least squares: %w", err)
			}
		}
	}

	// Map the coefficients of u = x/scale back to x.
	out := make([]float64, terms)
	p := 1.0
	for j := range out {
		out[j] = coef.AtVec(j) / p
		p *= scale
	}
	return out, nil
}

var errNotPositiveDefinite = errors.New("normal equations matrix is not positive definite")

func solveNormal(dst *mat.VecDense, design *mat.Dense, obs *mat.VecDense) error {
	var xtx mat.SymDense
	xtx.SymOuterK(1, design.T())

	var xty mat.VecDense
	xty.MulVec(design.T(), obs)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return errNotPositiveDefinite
	}
	return chol.SolveVecTo(dst, &xty)
}

// evalPolynomial evaluates coefficients (lowest order first) at every x.
func evalPolynomial(coef, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, xi := range x {
		v := 0.0
		for j := len(coef) - 1; j >= 0; j-- {
			v = v*xi + coef[j]
		}
		out[i] = v
	}
	return out
}

// rSquared is the squared Pearson correlation between modelled and observed values.
// A constant observed series has no variance and yields NaN.
func rSquared(modelled, observed []float64) float64 {
	r := stat.Correlation(modelled, observed, nil)
	return r * r
}

// fitLine is a simple least squares regression y = intercept + slope*x.
func fitLine(x, y []float64) LinearFit {
	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return LinearFit{Slope: slope, YIntercept: intercept}
}
