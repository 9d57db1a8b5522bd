package referenceframe

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	spatial "go.viam.com/compnetx/spatialmath"
)

func TestStaticFrame(t *testing.T) {
	pose := spatial.NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &spatial.R4AA{Theta: math.Pi / 2, RX: 0, RY: 1, RZ: 0})
	frame, err := NewStaticFrame("test", pose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Name(), test.ShouldEqual, "test")
	test.That(t, frame.DoF(), test.ShouldResemble, []Limit{})

	pose2, err := frame.Transform([]Input{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatial.PoseAlmostEqual(pose2, pose), test.ShouldBeTrue)

	_, err = frame.Transform([]Input{{0}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewStaticFrame("nil", nil)
	test.That(t, err, test.ShouldNotBeNil)

	same, err := NewStaticFrame("test", pose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.AlmostEquals(same), test.ShouldBeTrue)
	test.That(t, frame.AlmostEquals(NewZeroStaticFrame("test")), test.ShouldBeFalse)
}

func TestPrismaticFrame(t *testing.T) {
	limit := Limit{-30, 30}
	frame, err := NewTranslationalFrame("test", r3.Vector{X: 3, Y: 4, Z: 0}, limit)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.DoF(), test.ShouldResemble, []Limit{limit})

	pose, err := frame.Transform([]Input{{10}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatial.R3VectorAlmostEqual(pose.Point(), r3.Vector{X: 6, Y: 8}, 1e-9), test.ShouldBeTrue)

	// out of bounds inputs still produce a pose
	pose, err = frame.Transform([]Input{{50}})
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, strings.Contains(err.Error(), OOBErrString), test.ShouldBeTrue)

	_, err = frame.Transform([]Input{{1}, {2}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewTranslationalFrame("zero", r3.Vector{}, limit)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRevoluteFrame(t *testing.T) {
	axis := r3.Vector{X: 1, Y: 0, Z: 0}
	frame, err := NewRotationalFrame("test", spatial.R4AA{RX: axis.X, RY: axis.Y, RZ: axis.Z}, Limit{-math.Pi / 2, math.Pi / 2})
	test.That(t, err, test.ShouldBeNil)

	pose, err := frame.Transform([]Input{{math.Pi / 4}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Orientation().EulerAngles().Roll, test.ShouldAlmostEqual, math.Pi/4)

	_, err = frame.Transform([]Input{{math.Pi}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewRotationalFrame("bad", spatial.R4AA{}, Limit{-1, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRandomFrameInputs(t *testing.T) {
	frame, err := NewTranslationalFrame("t", r3.Vector{Z: 1}, Limit{-0.5, 0.5})
	test.That(t, err, test.ShouldBeNil)
	//nolint:gosec
	seed := rand.New(rand.NewSource(23))
	for i := 0; i < 50; i++ {
		in := RandomFrameInputs(frame, seed)
		test.That(t, len(in), test.ShouldEqual, 1)
		test.That(t, in[0].Value, test.ShouldBeBetweenOrEqual, -0.5, 0.5)
	}
	clamped := ClampInputs([]Input{{2}}, frame.DoF())
	test.That(t, clamped[0].Value, test.ShouldEqual, 0.5)

	test.That(t, InputsToFloats(FloatsToInputs([]float64{1, 2})), test.ShouldResemble, []float64{1, 2})
	test.That(t, InputsL2Distance(FloatsToInputs([]float64{0, 0}), FloatsToInputs([]float64{3, 4})), test.ShouldAlmostEqual, 25.)
}
