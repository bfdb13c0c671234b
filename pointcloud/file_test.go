package pointcloud

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestWritePLYReadPLYRoundTrip(t *testing.T) {
	cloud := New()
	// coordinates exact in six decimal places so the ASCII round trip
	// is lossless
	test.That(t, cloud.Set(NewVector(1.25, -2.5, 300), NewColoredData(color.NRGBA{200, 100, 50, 255})), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(0, 7.125, 1250.5), NewColoredData(color.NRGBA{1, 2, 3, 255})), test.ShouldBeNil)
	test.That(t, cloud.Set(NewVector(-40, 0, 99.75), NewBasicData()), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, WritePLY(cloud, &buf), test.ShouldBeNil)
	text := buf.String()
	test.That(t, text, test.ShouldContainSubstring, "element vertex 3")
	test.That(t, text, test.ShouldContainSubstring, "property uchar red")

	back, err := ReadPLY(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 3)
	test.That(t, back.MetaData().HasColor, test.ShouldBeTrue)

	d, ok := back.At(1.25, -2.5, 300)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, r, test.ShouldEqual, 200)
	test.That(t, g, test.ShouldEqual, 100)
	test.That(t, b, test.ShouldEqual, 50)

	// the uncolored point comes back white
	d, ok = back.At(-40, 0, 99.75)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b = d.RGB255()
	test.That(t, r, test.ShouldEqual, 255)
	test.That(t, g, test.ShouldEqual, 255)
	test.That(t, b, test.ShouldEqual, 255)
}

func TestWritePLYNoColor(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Set(NewVector(1, 2, 3), NewBasicData()), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, WritePLY(cloud, &buf), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldNotContainSubstring, "uchar")

	back, err := ReadPLY(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 1)
	test.That(t, back.MetaData().HasColor, test.ShouldBeFalse)
}

func TestReadPLYRejectsGarbage(t *testing.T) {
	_, err := ReadPLY(bytes.NewBufferString("pcd\nnot a ply\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a ply")

	_, err = ReadPLY(bytes.NewBufferString("ply\nformat ascii 1.0\nelement vertex 5\n" +
		"property float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "1 of 5")
}

func TestToPCDConvertsToMeters(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Set(r3.Vector{X: 1000, Y: -500, Z: 250}, NewBasicData()), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, ToPCD(cloud, &buf, PCDAscii), test.ShouldBeNil)
	text := buf.String()
	test.That(t, text, test.ShouldContainSubstring, "VERSION .7")
	test.That(t, text, test.ShouldContainSubstring, "POINTS 1")
	test.That(t, text, test.ShouldContainSubstring, "DATA ascii")
	test.That(t, text, test.ShouldContainSubstring, "1.000000 -0.500000 0.250000")
}

func TestToPCDBinaryColored(t *testing.T) {
	cloud := New()
	test.That(t, cloud.Set(r3.Vector{X: 1, Y: 2, Z: 3}, NewColoredData(color.NRGBA{255, 0, 0, 255})), test.ShouldBeNil)

	var buf bytes.Buffer
	test.That(t, ToPCD(cloud, &buf, PCDBinary), test.ShouldBeNil)
	text := buf.String()
	test.That(t, text, test.ShouldContainSubstring, "FIELDS x y z rgb")
	test.That(t, text, test.ShouldContainSubstring, "DATA binary")

	// 16 bytes of payload follow the header
	idx := bytes.Index(buf.Bytes(), []byte("DATA binary\n"))
	test.That(t, idx, test.ShouldBeGreaterThan, 0)
	test.That(t, len(buf.Bytes())-idx-len("DATA binary\n"), test.ShouldEqual, 16)
}
