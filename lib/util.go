package lib

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

func Sum(x []float64) float64 {
	var sum float64
	for _, x := range x {
		sum += x
	}
	return sum
}

func FloatsMean(floats []float64) float64 {
	if len(floats) == 0 {
		return 0
	}
	return Sum(floats) / float64(len(floats))
}

// Returns the sample standard deviation.
func FloatsStddev(floats []float64) float64 {
	if len(floats) < 2 {
		return 0
	}
	mean := FloatsMean(floats)
	var sqdevSum float64
	for _, x := range floats {
		sqdevSum += (x - mean) * (x - mean)
	}
	return math.Sqrt(sqdevSum / float64(len(floats)-1))
}

func FloatsMax(floats []float64) float64 {
	max := floats[0]
	for _, x := range floats {
		if x > max {
			max = x
		}
	}
	return max
}

func FloatsMin(floats []float64) float64 {
	min := floats[0]
	for _, x := range floats {
		if x < min {
			min = x
		}
	}
	return min
}

// generatePoints creates n equally spaced points between start and end (inclusive).
func generatePoints(start, end float64, n int) []float64 {
	if n <= 1 {
		return []float64{start}
	}

	step := (end - start) / float64(n-1)
	points := make([]float64, n)
	for i := 0; i < n; i++ {
		points[i] = start + float64(i)*step
	}

	return points
}

// SampleCurve evaluates fn at n evenly spaced inputs over [0, 255]. A nil fn
// samples the identity.
func SampleCurve(fn CurveFunc, n int) (xs []float64, ys []float64) {
	xs = generatePoints(0, levels-1, n)
	ys = make([]float64, len(xs))
	for i, x := range xs {
		if fn == nil {
			ys[i] = x
		} else {
			ys[i] = fn(x)
		}
	}
	return xs, ys
}

func SaveYaml(config Config, savePath string) error {
	yamlData, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(savePath, yamlData, 0644)
}
