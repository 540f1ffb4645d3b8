package lib

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidCurve = errors.New("invalid curve points")

type CurvePoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// CurveFunc maps an input level to an output level. A nil CurveFunc means
// "no transform".
type CurveFunc func(x float64) float64

// ValidateCurvePoints checks that points can define a curve: no points at
// all (no transform) or at least two, with finite and strictly increasing x.
func ValidateCurvePoints(points []CurvePoint) error {
	if len(points) == 0 {
		return nil
	}
	if len(points) == 1 {
		return fmt.Errorf("%w: need at least 2 points, got 1", ErrInvalidCurve)
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: point %d (%v, %v) is not finite", ErrInvalidCurve, i, p.X, p.Y)
		}
		if i > 0 && p.X <= points[i-1].X {
			return fmt.Errorf("%w: x must be strictly increasing, got %v after %v",
				ErrInvalidCurve, p.X, points[i-1].X)
		}
	}
	return nil
}

// NewCurveFunc interpolates points: linearly for two points, with the
// quadratic through all three for three points, and with a not-a-knot cubic
// spline for four or more. Outside the x-range of the points the curve holds
// the value of the nearest end point.
//
// Fewer than two points returns nil. Points that fail ValidateCurvePoints
// cause a panic.
func NewCurveFunc(points []CurvePoint) CurveFunc {
	if len(points) < 2 {
		return nil
	}
	if err := ValidateCurvePoints(points); err != nil {
		panic(err)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}

	switch len(points) {
	case 2:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			panic(err)
		}
		return pl.Predict
	case 3:
		return quadraticThrough(xs, ys)
	default:
		var nak interp.NotAKnotCubic
		if err := nak.Fit(xs, ys); err != nil {
			panic(err)
		}
		return nak.Predict
	}
}

// quadraticThrough solves the Vandermonde system for the parabola passing
// through three points.
func quadraticThrough(xs []float64, ys []float64) CurveFunc {
	a := mat.NewDense(3, 3, nil)
	for i, x := range xs {
		a.Set(i, 0, 1)
		a.Set(i, 1, x)
		a.Set(i, 2, x*x)
	}
	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(3, ys)); err != nil {
		panic(fmt.Errorf("%w: %v", ErrInvalidCurve, err))
	}
	c0, c1, c2 := coef.AtVec(0), coef.AtVec(1), coef.AtVec(2)
	lo, hi := xs[0], xs[2]
	return func(x float64) float64 {
		if x <= lo {
			return ys[0]
		}
		if x >= hi {
			return ys[2]
		}
		return c0 + c1*x + c2*x*x
	}
}

// ComposeCurves returns x -> outer(inner(x)). Either side may be nil.
func ComposeCurves(outer CurveFunc, inner CurveFunc) CurveFunc {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	return func(x float64) float64 {
		return outer(inner(x))
	}
}
