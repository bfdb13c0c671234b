package utils

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestClamps(t *testing.T) {
	test.That(t, ClampInt(5, 0, 10), test.ShouldEqual, 5)
	test.That(t, ClampInt(-1, 0, 10), test.ShouldEqual, 0)
	test.That(t, ClampInt(11, 0, 10), test.ShouldEqual, 10)

	test.That(t, ClampF64(0.5, 0.1, 1.0), test.ShouldEqual, 0.5)
	test.That(t, ClampF64(0.05, 0.1, 1.0), test.ShouldEqual, 0.1)
	test.That(t, ClampF64(2.0, 0.1, 1.0), test.ShouldEqual, 1.0)

	test.That(t, ClampF32(-3, -1, 1), test.ShouldEqual, float32(-1))
	test.That(t, ClampF32(3, -1, 1), test.ShouldEqual, float32(1))
}

func TestIntHelpers(t *testing.T) {
	test.That(t, AbsInt(-4), test.ShouldEqual, 4)
	test.That(t, AbsInt(4), test.ShouldEqual, 4)
	test.That(t, MaxInt(2, 7), test.ShouldEqual, 7)
	test.That(t, MinInt(2, 7), test.ShouldEqual, 2)
}

func TestMedianF32(t *testing.T) {
	test.That(t, MedianF32(nil), test.ShouldEqual, float32(0))
	test.That(t, MedianF32([]float32{3, 1, 2}), test.ShouldEqual, float32(2))
	test.That(t, MedianF32([]float32{4, 1, 3, 2}), test.ShouldEqual, float32(3))
}

func TestStdDevF32(t *testing.T) {
	test.That(t, StdDevF32([]float32{5, 5, 5, 5}), test.ShouldEqual, float32(0))
	test.That(t, StdDevF32([]float32{1, 3}), test.ShouldEqual, float32(1))
}

func TestSampleRandomIntRange(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		v := SampleRandomIntRange(3, 8, r)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, 3)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 8)
	}
}
