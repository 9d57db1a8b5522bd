package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.AxisAngles().Theta, test.ShouldEqual, 0.)
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, zero.EulerAngles(), test.ShouldResemble, &EulerAngles{})
	test.That(t, zero.RotationMatrix().Row(0), test.ShouldResemble, r3.Vector{X: 1})
}

func TestEulerRoundTrip(t *testing.T) {
	for _, ea := range []*EulerAngles{
		{Roll: 0.3, Pitch: -0.2, Yaw: 1.1},
		{Roll: -2.5, Pitch: 1.2, Yaw: -3.0},
		{Roll: math.Pi / 2, Pitch: 0, Yaw: 0},
		{Roll: 0, Pitch: 0, Yaw: -math.Pi / 3},
	} {
		q := ea.Quaternion()
		back := QuatToEulerAngles(q)
		test.That(t, back.Roll, test.ShouldAlmostEqual, ea.Roll)
		test.That(t, back.Pitch, test.ShouldAlmostEqual, ea.Pitch)
		test.That(t, back.Yaw, test.ShouldAlmostEqual, ea.Yaw)

		rm := ea.RotationMatrix()
		test.That(t, QuaternionAlmostEqual(rm.Quaternion(), q, 1e-9), test.ShouldBeTrue)
		test.That(t, OrientationAlmostEqual(ea.AxisAngles(), ea), test.ShouldBeTrue)
	}
}

func TestRotationMatrixMatchesRPYOrder(t *testing.T) {
	// R = Rz(yaw) * Ry(pitch) * Rx(roll)
	roll, pitch, yaw := 0.4, -0.7, 2.1
	rx := (&EulerAngles{Roll: roll}).RotationMatrix()
	ry := (&EulerAngles{Pitch: pitch}).RotationMatrix()
	rz := (&EulerAngles{Yaw: yaw}).RotationMatrix()
	expected := rz.Mul(ry).Mul(rx)
	actual := (&EulerAngles{Roll: roll, Pitch: pitch, Yaw: yaw}).RotationMatrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			test.That(t, actual.At(r, c), test.ShouldAlmostEqual, expected.At(r, c))
		}
	}
	test.That(t, actual.Mul(actual.Transpose()).At(1, 1), test.ShouldAlmostEqual, 1.)
}

func TestGimbalLockHint(t *testing.T) {
	t.Run("positive pitch", func(t *testing.T) {
		rm := (&EulerAngles{Roll: 0.5, Pitch: math.Pi / 2, Yaw: 0.2}).RotationMatrix()

		noHint := rm.EulerAngles()
		test.That(t, noHint.Roll, test.ShouldEqual, 0.)
		test.That(t, noHint.Pitch, test.ShouldAlmostEqual, math.Pi/2)
		test.That(t, noHint.Yaw, test.ShouldAlmostEqual, -0.3)

		hint := 0.5
		withHint := rm.EulerAnglesWithHint(&hint)
		test.That(t, withHint.Roll, test.ShouldEqual, 0.5)
		test.That(t, withHint.Yaw, test.ShouldAlmostEqual, 0.2)
	})
	t.Run("negative pitch", func(t *testing.T) {
		rm := (&EulerAngles{Roll: 0.5, Pitch: -math.Pi / 2, Yaw: 0.2}).RotationMatrix()
		hint := 0.5
		withHint := rm.EulerAnglesWithHint(&hint)
		test.That(t, withHint.Pitch, test.ShouldAlmostEqual, -math.Pi/2)
		test.That(t, withHint.Roll, test.ShouldEqual, 0.5)
		test.That(t, withHint.Yaw, test.ShouldAlmostEqual, 0.2)

		// any hint reproduces the same matrix
		other := -1.0
		alt := rm.EulerAnglesWithHint(&other)
		test.That(t, OrientationAlmostEqual(alt, rm), test.ShouldBeTrue)
	})
}

func TestAxisAngle(t *testing.T) {
	aa := &R4AA{Theta: math.Pi / 2, RX: 0, RY: 0, RZ: 2}
	q := aa.ToQuat()
	test.That(t, aa.RZ, test.ShouldEqual, 1.)
	test.That(t, q.Real, test.ShouldAlmostEqual, math.Sqrt2/2)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, math.Sqrt2/2)

	r3aa := aa.ToR3()
	test.That(t, r3aa.Z, test.ShouldAlmostEqual, math.Pi/2)
	back := R3ToR4(r3aa)
	test.That(t, back.Theta, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, R3ToR4(r3.Vector{}), test.ShouldResemble, NewR4AA())

	test.That(t, QuatToR3AA(q).Z, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, QuatToR3AA(quat.Number{Real: 1}), test.ShouldResemble, r3.Vector{})
}

func TestNewRotationMatrix(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)
	rm, err := NewRotationMatrix([]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.EulerAngles().Yaw, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, rm.MulVec(r3.Vector{X: 1}).Y, test.ShouldAlmostEqual, 1.)
}

func TestOrientationBetween(t *testing.T) {
	a := &EulerAngles{Roll: 0.1, Pitch: 0.2, Yaw: 0.3}
	b := &EulerAngles{Roll: -0.4, Pitch: 0.5, Yaw: 1.3}
	delta := OrientationBetween(a, b)
	recomposed := quat.Mul(delta.Quaternion(), a.Quaternion())
	test.That(t, QuaternionAlmostEqual(recomposed, b.Quaternion(), 1e-9), test.ShouldBeTrue)
	test.That(t, OrientationAlmostEqual(OrientationInverse(OrientationInverse(a)), a), test.ShouldBeTrue)
}
