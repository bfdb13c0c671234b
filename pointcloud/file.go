package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// WritePLY writes the cloud as ASCII PLY. Positions stay in millimeters;
// uncolored points are written white.
func WritePLY(cloud PointCloud, out io.Writer) error {
	w := bufio.NewWriter(out)
	hasColor := cloud.MetaData().HasColor
	if _, err := fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n"+
		"property float x\nproperty float y\nproperty float z\n", cloud.Size()); err != nil {
		return err
	}
	if hasColor {
		if _, err := fmt.Fprintf(w, "property uchar red\nproperty uchar green\nproperty uchar blue\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "end_header\n"); err != nil {
		return err
	}
	var lastErr error
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		var err error
		if hasColor {
			red, green, blue := uint8(255), uint8(255), uint8(255)
			if d != nil && d.HasColor() {
				red, green, blue = d.RGB255()
			}
			_, err = fmt.Fprintf(w, "%f %f %f %d %d %d\n", pos.X, pos.Y, pos.Z, red, green, blue)
		} else {
			_, err = fmt.Fprintf(w, "%f %f %f\n", pos.X, pos.Y, pos.Z)
		}
		if err != nil {
			lastErr = err
			return false
		}
		return true
	})
	if lastErr != nil {
		return lastErr
	}
	return w.Flush()
}

// ReadPLY reads an ASCII PLY produced by WritePLY back into a point cloud.
func ReadPLY(in io.Reader) (PointCloud, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "ply" {
		return nil, errors.New("not a ply file")
	}
	vertexCount := -1
	propNames := []string{}
	inVertex := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 || fields[1] != "ascii" {
				return nil, errors.Errorf("unsupported ply format %q", line)
			}
		case "comment":
		case "element":
			inVertex = len(fields) == 3 && fields[1] == "vertex"
			if inVertex {
				n, err := strconv.Atoi(fields[2])
				if err != nil {
					return nil, errors.Wrap(err, "bad vertex count")
				}
				vertexCount = n
			}
		case "property":
			if inVertex && len(fields) == 3 {
				propNames = append(propNames, fields[2])
			}
		case "end_header":
			return readPLYVertices(scanner, vertexCount, propNames)
		}
	}
	return nil, errors.New("ply header has no end_header")
}

func readPLYVertices(scanner *bufio.Scanner, count int, props []string) (PointCloud, error) {
	if count < 0 {
		return nil, errors.New("ply header has no vertex element")
	}
	idx := map[string]int{}
	for i, name := range props {
		idx[name] = i
	}
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := idx[name]; !ok {
			return nil, errors.Errorf("ply vertex has no %s property", name)
		}
	}
	_, hasColor := idx["red"]

	cloud := NewWithPrealloc(count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, errors.Errorf("ply ended after %d of %d vertices", i, count)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < len(props) {
			return nil, errors.Errorf("ply vertex %d has %d fields, want %d", i, len(fields), len(props))
		}
		get := func(name string) (float64, error) {
			return strconv.ParseFloat(fields[idx[name]], 64)
		}
		x, err := get("x")
		if err != nil {
			return nil, err
		}
		y, err := get("y")
		if err != nil {
			return nil, err
		}
		z, err := get("z")
		if err != nil {
			return nil, err
		}
		var d Data
		if hasColor {
			r, err := get("red")
			if err != nil {
				return nil, err
			}
			g, err := get("green")
			if err != nil {
				return nil, err
			}
			b, err := get("blue")
			if err != nil {
				return nil, err
			}
			d = NewColoredData(color.NRGBA{uint8(r), uint8(g), uint8(b), 255})
		} else {
			d = NewBasicData()
		}
		if err := cloud.Set(r3.Vector{X: x, Y: y, Z: z}, d); err != nil {
			return nil, err
		}
	}
	return cloud, nil
}

func _colorToPCDInt(pt Data) int {
	if pt == nil || !pt.HasColor() {
		return 255 << 16
	}

	r, g, b := pt.RGB255()
	x := 0

	x |= (int(r) << 16)
	x |= (int(g) << 8)
	x |= (int(b) << 0)
	return x
}

// ToPCD writes the cloud in PCD format, positions converted to meters.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var err error

	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	switch cloud.MetaData().HasColor {
	case true:
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	case false:
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	default:
		return errors.Errorf("unsupported pcd type %d", outputType)
	}
	if err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	var lastErr error
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		var err error
		x := pos.X / 1000.
		y := pos.Y / 1000.
		z := pos.Z / 1000.
		switch cloud.MetaData().HasColor {
		case true:
			c := _colorToPCDInt(d)
			switch pcdtype {
			case PCDBinary:
				buf := make([]byte, 16)
				binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(x)))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(y)))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(z)))
				binary.LittleEndian.PutUint32(buf[12:], uint32(c))
				_, err = out.Write(buf)
			case PCDAscii:
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", x, y, z, c)
			}
		case false:
			switch pcdtype {
			case PCDBinary:
				buf := make([]byte, 12)
				binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(x)))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(y)))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(z)))
				_, err = out.Write(buf)
			case PCDAscii:
				_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
			}
		}
		if err != nil {
			lastErr = err
		}
		return err == nil
	})
	return lastErr
}
