package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBasicPoseConstruction(t *testing.T) {
	p := NewZeroPose()
	test.That(t, p.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, OrientationAlmostEqual(p.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)

	p = NewPoseFromPoint(r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, R3VectorAlmostEqual(p.Point(), r3.Vector{X: 1, Y: 2, Z: 3}, 1e-12), test.ShouldBeTrue)

	ov := &EulerAngles{Yaw: math.Pi / 2}
	p = NewPose(r3.Vector{X: 1}, ov)
	test.That(t, R3VectorAlmostEqual(p.Point(), r3.Vector{X: 1}, 1e-12), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(p.Orientation(), ov), test.ShouldBeTrue)

	p = NewPose(r3.Vector{X: 4}, nil)
	test.That(t, OrientationAlmostEqual(p.Orientation(), NewZeroOrientation()), test.ShouldBeTrue)
}

func TestCompose(t *testing.T) {
	a := NewPose(r3.Vector{X: 1}, &EulerAngles{Yaw: math.Pi / 2})
	b := NewPoseFromPoint(r3.Vector{X: 1})
	c := Compose(a, b)
	// b's offset is rotated into a's frame before being added
	test.That(t, R3VectorAlmostEqual(c.Point(), r3.Vector{X: 1, Y: 1}, 1e-9), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(c.Orientation(), &EulerAngles{Yaw: math.Pi / 2}), test.ShouldBeTrue)

	pt := TransformPoint(a, r3.Vector{X: 1})
	test.That(t, R3VectorAlmostEqual(pt, c.Point(), 1e-9), test.ShouldBeTrue)
}

func TestPoseInverseAndBetween(t *testing.T) {
	a := NewPose(r3.Vector{X: 0.3, Y: -1, Z: 2}, &EulerAngles{Roll: 0.2, Pitch: -0.4, Yaw: 1.0})
	b := NewPose(r3.Vector{X: -2, Y: 0.5, Z: 0.1}, &EulerAngles{Roll: -1.2, Pitch: 0.3, Yaw: 2.5})

	test.That(t, PoseAlmostEqual(Compose(a, PoseInverse(a)), NewZeroPose()), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(PoseInverse(a), a), NewZeroPose()), test.ShouldBeTrue)

	between := PoseBetween(a, b)
	test.That(t, PoseAlmostEqual(Compose(a, between), b), test.ShouldBeTrue)

	delta := PoseDelta(a, b)
	test.That(t, R3VectorAlmostEqual(delta.Point(), b.Point().Sub(a.Point()), 1e-9), test.ShouldBeTrue)
}

func TestPoseToR3AA(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &R4AA{Theta: 0.5, RZ: 1})
	vals := PoseToR3AA(p)
	test.That(t, len(vals), test.ShouldEqual, 6)
	test.That(t, vals[0], test.ShouldAlmostEqual, 1.)
	test.That(t, vals[5], test.ShouldAlmostEqual, 0.5)
	test.That(t, vals[3], test.ShouldAlmostEqual, 0.)
}
