// Package measure computes metric measurements on reconstructed depth
// frames: lengths, areas, profiles, and defect (missing-area) geometry.
// All inputs and outputs are millimeters in the camera frame.
package measure

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrColinearPoints is returned when three points meant to define a plane
// lie on one line.
var ErrColinearPoints = errors.New("points are colinear and do not define a plane")

// ErrLinesTooFarApart is returned when two segments meant to intersect pass
// farther from each other than the tolerance.
var ErrLinesTooFarApart = errors.New("line segments do not intersect within tolerance")

// Length returns the Euclidean distance between two points.
func Length(a, b r3.Vector) float64 {
	return b.Sub(a).Norm()
}

// PointToLine returns the perpendicular distance from p to the line through
// a and b.
func PointToLine(p, a, b r3.Vector) (float64, error) {
	dir := b.Sub(a)
	n := dir.Norm()
	if n < 1e-9 {
		return 0, errors.New("line endpoints coincide")
	}
	return dir.Cross(p.Sub(a)).Norm() / n, nil
}

// PointToPlane returns the absolute distance from p to the plane through
// a, b, c.
func PointToPlane(p, a, b, c r3.Vector) (float64, error) {
	normal := b.Sub(a).Cross(c.Sub(a))
	n := normal.Norm()
	if n < 1e-9 {
		return 0, ErrColinearPoints
	}
	d := -normal.Dot(a)
	return math.Abs(normal.Dot(p)+d) / n, nil
}

// Area triangulates the polygon as a fan from its first vertex and sums the
// triangle areas. Needs at least 3 vertices.
func Area(poly []r3.Vector) (float64, error) {
	if len(poly) < 3 {
		return 0, errors.Errorf("polygon needs at least 3 vertices, got %d", len(poly))
	}
	var area float64
	for i := 1; i < len(poly)-1; i++ {
		e1 := poly[i].Sub(poly[0])
		e2 := poly[i+1].Sub(poly[0])
		area += e1.Cross(e2).Norm() / 2
	}
	return area, nil
}

// PolylineLength sums the segment lengths of the path.
func PolylineLength(pts []r3.Vector) (float64, error) {
	if len(pts) < 2 {
		return 0, errors.Errorf("polyline needs at least 2 points, got %d", len(pts))
	}
	var total float64
	for i := 1; i < len(pts); i++ {
		total += pts[i].Sub(pts[i-1]).Norm()
	}
	return total, nil
}

// SegmentIntersection finds where two 3D segments cross. Segments rarely
// intersect exactly in reconstructed data, so the closest points on the two
// infinite lines are computed and their midpoint returned when they pass
// within toleranceMm of each other.
func SegmentIntersection(a1, a2, b1, b2 r3.Vector, toleranceMm float64) (r3.Vector, error) {
	d1 := a2.Sub(a1)
	d2 := b2.Sub(b1)
	r := a1.Sub(b1)
	a := d1.Dot(d1)
	b := d1.Dot(d2)
	c := d2.Dot(d2)
	d := d1.Dot(r)
	e := d2.Dot(r)
	denom := a*c - b*b
	if math.Abs(denom) < 1e-9 {
		return r3.Vector{}, errors.New("line segments are parallel")
	}
	t1 := (b*e - c*d) / denom
	t2 := (a*e - b*d) / denom
	q1 := a1.Add(d1.Mul(t1))
	q2 := b1.Add(d2.Mul(t2))
	if q1.Sub(q2).Norm() > toleranceMm {
		return r3.Vector{}, ErrLinesTooFarApart
	}
	return q1.Add(q2).Mul(0.5), nil
}

// MissingAreaTolerance is the default inter-line distance within which two
// edge segments are treated as meeting at a corner.
const MissingAreaTolerance = 10.0

// MissingArea computes the area of a broken-off region. Two segments along
// the surviving edges are extended to their intersection, which becomes the
// reconstructed corner; the polygon of the extra vertices plus that corner
// is measured.
func MissingArea(a1, a2, b1, b2 r3.Vector, extra []r3.Vector) (float64, r3.Vector, error) {
	corner, err := SegmentIntersection(a1, a2, b1, b2, MissingAreaTolerance)
	if err != nil {
		return 0, r3.Vector{}, err
	}
	poly := make([]r3.Vector, 0, len(extra)+1)
	poly = append(poly, extra...)
	poly = append(poly, corner)
	area, err := Area(poly)
	if err != nil {
		return 0, corner, err
	}
	return area, corner, nil
}
