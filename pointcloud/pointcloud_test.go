package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBasicSetAndAt(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Size(), test.ShouldEqual, 0)

	test.That(t, cloud.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(-4, 5, 600), NewColoredData(color.NRGBA{10, 20, 30, 255})), test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 2)

	d, ok := cloud.At(-4, 5, 600)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, r, test.ShouldEqual, 10)
	test.That(t, g, test.ShouldEqual, 20)
	test.That(t, b, test.ShouldEqual, 30)

	_, ok = cloud.At(9, 9, 9)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestBasicSetReplacesData(t *testing.T) {
	cloud := New()
	p := NewVector(1, 1, 1)
	test.That(t, cloud.Set(p, NewValueData(7)), test.ShouldBeNil)
	test.That(t, cloud.Set(p, NewValueData(42)), test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 1)

	d, ok := cloud.At(1, 1, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 42)
}

func TestBasicMetaData(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Set(NewVector(-10, 0, 100), NewBasicData()), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(10, 4, 300), NewValueData(3)), test.ShouldBeNil)

	meta := cloud.MetaData()
	test.That(t, meta.MinX, test.ShouldEqual, -10)
	test.That(t, meta.MaxX, test.ShouldEqual, 10)
	test.That(t, meta.MinZ, test.ShouldEqual, 100)
	test.That(t, meta.MaxZ, test.ShouldEqual, 300)
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.HasValue, test.ShouldBeTrue)

	center := meta.Center(cloud.Size())
	test.That(t, center, test.ShouldResemble, r3.Vector{X: 0, Y: 2, Z: 200})
}

func TestBasicIterateStops(t *testing.T) {
	cloud := New()
	for i := 0; i < 5; i++ {
		test.That(t, cloud.Set(NewVector(float64(i), 0, 0), NewBasicData()), test.ShouldBeNil)
	}
	count := 0
	cloud.Iterate(func(p r3.Vector, d Data) bool {
		count++
		return count < 3
	})
	test.That(t, count, test.ShouldEqual, 3)
}

func TestDataSetters(t *testing.T) {
	d := NewBasicData()
	test.That(t, d.HasColor(), test.ShouldBeFalse)
	test.That(t, d.HasValue(), test.ShouldBeFalse)

	d.SetColor(color.NRGBA{1, 2, 3, 255})
	test.That(t, d.HasColor(), test.ShouldBeTrue)

	d.SetValue(99)
	test.That(t, d.HasValue(), test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 99)
}
