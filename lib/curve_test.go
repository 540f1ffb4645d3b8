package lib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCurveFuncFixedPoints(t *testing.T) {
	tests := []struct {
		name   string
		points []CurvePoint
	}{
		{"linear", []CurvePoint{{0, 20}, {255, 235}}},
		{"quadratic", []CurvePoint{{0, 0}, {128, 128}, {255, 255}}},
		{"quadratic bent", []CurvePoint{{0, 0}, {64, 100}, {255, 255}}},
		{"cubic", PortraCurves.Value},
		{"cubic five", []CurvePoint{{0, 0}, {40, 30}, {100, 120}, {180, 200}, {255, 250}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := NewCurveFunc(tt.points)
			require.NotNil(t, fn)
			for _, p := range tt.points {
				assert.InDelta(t, p.Y, fn(p.X), 1e-6, "f(%v)", p.X)
			}
		})
	}
}

func TestNewCurveFuncIdentityThroughThreePoints(t *testing.T) {
	fn := NewCurveFunc([]CurvePoint{{0, 0}, {128, 128}, {255, 255}})
	assert.InDelta(t, 0, fn(0), 1e-9)
	assert.InDelta(t, 128, fn(128), 1e-9)
	assert.InDelta(t, 255, fn(255), 1e-9)
	assert.InDelta(t, 64, fn(64), 1e-6)
}

func TestNewCurveFuncLinearMidpoint(t *testing.T) {
	fn := NewCurveFunc([]CurvePoint{{0, 0}, {255, 128}})
	assert.InDelta(t, 64, fn(127.5), 1e-9)
}

func TestNewCurveFuncTooFewPoints(t *testing.T) {
	assert.Nil(t, NewCurveFunc(nil))
	assert.Nil(t, NewCurveFunc([]CurvePoint{}))
	assert.Nil(t, NewCurveFunc([]CurvePoint{{10, 10}}))
}

func TestNewCurveFuncHoldsEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		points []CurvePoint
	}{
		{"linear", []CurvePoint{{10, 20}, {200, 180}}},
		{"quadratic", []CurvePoint{{10, 20}, {100, 150}, {200, 180}}},
		{"cubic", []CurvePoint{{10, 20}, {60, 40}, {150, 170}, {200, 180}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := NewCurveFunc(tt.points)
			first := tt.points[0]
			last := tt.points[len(tt.points)-1]
			assert.InDelta(t, first.Y, fn(0), 1e-9)
			assert.InDelta(t, first.Y, fn(-100), 1e-9)
			assert.InDelta(t, last.Y, fn(255), 1e-9)
			assert.InDelta(t, last.Y, fn(1000), 1e-9)
			assert.False(t, math.IsNaN(fn(-1e9)))
		})
	}
}

func TestNewCurveFuncPanicsOnBadPoints(t *testing.T) {
	assert.Panics(t, func() {
		NewCurveFunc([]CurvePoint{{0, 0}, {0, 10}})
	})
	assert.Panics(t, func() {
		NewCurveFunc([]CurvePoint{{0, 0}, {100, 50}, {50, 100}, {255, 255}})
	})
}

func TestValidateCurvePoints(t *testing.T) {
	tests := []struct {
		name    string
		points  []CurvePoint
		wantErr bool
	}{
		{"empty", nil, false},
		{"two", []CurvePoint{{0, 0}, {255, 255}}, false},
		{"one", []CurvePoint{{0, 0}}, true},
		{"duplicate x", []CurvePoint{{0, 0}, {10, 5}, {10, 6}}, true},
		{"decreasing x", []CurvePoint{{50, 0}, {10, 5}}, true},
		{"nan", []CurvePoint{{0, 0}, {math.NaN(), 5}}, true},
		{"inf y", []CurvePoint{{0, 0}, {10, math.Inf(1)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurvePoints(tt.points)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCurve)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComposeCurves(t *testing.T) {
	double := CurveFunc(func(x float64) float64 { return 2 * x })
	plusOne := CurveFunc(func(x float64) float64 { return x + 1 })

	assert.Equal(t, 22.0, ComposeCurves(double, plusOne)(10))
	assert.Equal(t, 21.0, ComposeCurves(plusOne, double)(10))
	assert.Equal(t, 20.0, ComposeCurves(nil, double)(10))
	assert.Equal(t, 11.0, ComposeCurves(plusOne, nil)(10))
	assert.Nil(t, ComposeCurves(nil, nil))
}
