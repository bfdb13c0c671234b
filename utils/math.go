// Package utils contains math and parallelization helpers shared by the
// image processing and depth pipeline packages.
package utils

import (
	"math"
	"math/rand"
	"sort"
)

// AbsInt returns the absolute value of the given int.
func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}

// MaxInt returns the higher of two ints.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the lower of two ints.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampInt clamps x to [lo, hi].
func ClampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampF64 clamps x to [lo, hi].
func ClampF64(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}

// ClampF32 clamps x to [lo, hi].
func ClampF32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Median sorts its arguments and returns the middle value. NaN if empty.
func Median(values ...float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sort.Float64s(values)

	return values[int(math.Floor(float64(len(values))/2))]
}

// MedianF32 returns the middle value of the slice, sorting it in place.
// Zero if empty.
func MedianF32(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values[len(values)/2]
}

// MeanF32 returns the arithmetic mean of the slice, zero if empty.
func MeanF32(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return float32(sum / float64(len(values)))
}

// StdDevF32 returns the population standard deviation of the slice.
func StdDevF32(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	mean := float64(MeanF32(values))
	var acc float64
	for _, v := range values {
		d := float64(v) - mean
		acc += d * d
	}
	return float32(math.Sqrt(acc / float64(len(values))))
}

// Square returns the square of the given float64.
func Square(n float64) float64 {
	return n * n
}

// SampleRandomIntRange samples a random integer within a range given by [min, max]
// using the given rand.Rand.
func SampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}
