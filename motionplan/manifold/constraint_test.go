package manifold

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/tsr"
	frame "go.viam.com/compnetx/referenceframe"
	spatial "go.viam.com/compnetx/spatialmath"
	"go.viam.com/compnetx/testutils/inject"
)

func threeJointProvider(t *testing.T) *kinematics.ModelProvider {
	t.Helper()
	limit := frame.Limit{Min: -math.Pi, Max: math.Pi}
	j0, err := frame.NewRotationalFrame("waist", spatial.R4AA{RZ: 1}, limit)
	test.That(t, err, test.ShouldBeNil)
	l0, err := frame.FrameFromPoint("base", r3.Vector{Z: 0.3})
	test.That(t, err, test.ShouldBeNil)
	j1, err := frame.NewRotationalFrame("shoulder", spatial.R4AA{RY: 1}, limit)
	test.That(t, err, test.ShouldBeNil)
	l1, err := frame.FrameFromPoint("upper", r3.Vector{X: 0.5})
	test.That(t, err, test.ShouldBeNil)
	j2, err := frame.NewRotationalFrame("elbow", spatial.R4AA{RY: 1}, limit)
	test.That(t, err, test.ShouldBeNil)
	l2, err := frame.FrameFromPoint("fore", r3.Vector{X: 0.4})
	test.That(t, err, test.ShouldBeNil)
	mp, err := kinematics.NewModelProvider(logging.NewTestLogger(t), kinematics.Manipulator{
		Model:  frame.NewSerialModel("arm", j0, l0, j1, l1, j2, l2),
		Joints: []int{0, 1, 2},
	})
	test.That(t, err, test.ShouldBeNil)
	return mp
}

// pointChain pins the end effector to its pose at joints, within the given translation and rotation slack.
func pointChain(t *testing.T, p kinematics.Provider, joints []float64, trans, rot float64) *tsr.Chain {
	t.Helper()
	pose, err := p.ForwardKinematics(frame.FloatsToInputs(joints), 0)
	test.That(t, err, test.ShouldBeNil)
	offset := spatial.NewPoseFromPoint(r3.Vector{X: 0.05})
	origin := spatial.Compose(pose, spatial.PoseInverse(offset))
	var bounds tsr.Bounds
	for axis := range bounds {
		slack := trans
		if axis >= tsr.AxisRoll {
			slack = rot
		}
		bounds[axis] = frame.Limit{Min: -slack, Max: slack}
	}
	region, err := tsr.NewRegion(0, origin, offset, bounds)
	test.That(t, err, test.ShouldBeNil)
	c, err := tsr.NewChain(tsr.Flags{Constrain: true}, region)
	test.That(t, err, test.ShouldBeNil)
	return c
}

func numericConstraintJacobian(t *testing.T, c Constraint, x []float64) *mat.Dense {
	t.Helper()
	const h = 1e-6
	jac := mat.NewDense(c.Dimension(), len(x), nil)
	probe := append([]float64{}, x...)
	for j := range x {
		probe[j] = x[j] + h
		plus, err := c.Value(probe)
		test.That(t, err, test.ShouldBeNil)
		probe[j] = x[j] - h
		minus, err := c.Value(probe)
		test.That(t, err, test.ShouldBeNil)
		probe[j] = x[j]
		for i := range plus {
			jac.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
	return jac
}

func matricesAlmostEqual(t *testing.T, a, b *mat.Dense, tol float64) {
	t.Helper()
	ar, ac := a.Dims()
	br, bc := b.Dims()
	test.That(t, ar, test.ShouldEqual, br)
	test.That(t, ac, test.ShouldEqual, bc)
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			test.That(t, a.At(i, j), test.ShouldAlmostEqual, b.At(i, j), tol)
		}
	}
}

// unreachable has no zero.
type unreachable struct{}

func (unreachable) Dimension() int        { return 1 }
func (unreachable) AmbientDimension() int { return 2 }

func (unreachable) Value(x []float64) ([]float64, error) { return []float64{1}, nil }

func (unreachable) Jacobian(x []float64) (*mat.Dense, error) { return mat.NewDense(1, 2, []float64{1, 0}), nil }

func (unreachable) Distance(x []float64) (float64, error) { return 1, nil }

func TestSphereConstraint(t *testing.T) {
	_, err := NewSphereConstraint(0)
	test.That(t, err, test.ShouldNotBeNil)

	s, err := NewSphereConstraint(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Dimension(), test.ShouldEqual, 1)
	test.That(t, s.AmbientDimension(), test.ShouldEqual, 3)

	x := []float64{2, 1, -2}
	v, err := s.Value(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v[0], test.ShouldAlmostEqual, 2)
	d, err := s.Distance([]float64{0.3, 0, 0.4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, 0.5)

	jac, err := s.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, jac, numericConstraintJacobian(t, s, x), 1e-6)

	_, err = s.Jacobian([]float64{0, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = s.Value([]float64{1})
	test.That(t, err, test.ShouldNotBeNil)

	projected, err := Project(context.Background(), s, x, 1e-9, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, floats.Norm(projected, 2), test.ShouldAlmostEqual, 1, 1e-9)
	// projection onto the sphere is radial
	test.That(t, projected[0]*3, test.ShouldAlmostEqual, 2, 1e-6)
	test.That(t, s.Calls(), test.ShouldBeGreaterThan, int64(0))
}

func TestProjectErrors(t *testing.T) {
	s, err := NewSphereConstraint(2)
	test.That(t, err, test.ShouldBeNil)

	_, err = Project(context.Background(), s, []float64{1, 2, 3}, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Project(context.Background(), s, []float64{0, 0}, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Project(context.Background(), unreachable{}, []float64{5, 5}, 0, 3)
	test.That(t, errors.Is(err, ErrProjectionFailed), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := Project(ctx, s, []float64{5, 5}, 0, 0)
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, out, test.ShouldResemble, []float64{5, 5})
}

func TestChainConstraintInsideBounds(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	joints := []float64{0.2, -0.4, 0.8}
	chain := pointChain(t, mp, joints, 0.05, 0.1)

	_, err := NewChainConstraint(mp, chain, 2, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewChainConstraint(mp, &tsr.Chain{}, 3, logger)
	test.That(t, err, test.ShouldBeError, tsr.ErrUninitializedChain)

	cc, err := NewChainConstraint(mp, chain, 4, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cc.Dimension(), test.ShouldEqual, 6)
	test.That(t, cc.AmbientDimension(), test.ShouldEqual, 4)

	x := append(append([]float64{}, joints...), 0.7)
	dist, err := cc.Distance(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldAlmostEqual, 0, 1e-9)

	// a small move stays inside every bound
	x[0] += 0.01
	dist, err = cc.Distance(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 0.)
	jac, err := cc.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Norm(jac, 2), test.ShouldEqual, 0.)

	// a large one does not
	x[0] += 0.5
	dist, err = cc.Distance(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldBeGreaterThan, 0.)

	_, err = cc.Value(joints)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, cc.Calls(), test.ShouldEqual, int64(4))
}

func TestChainConstraintDistanceMatchesBounds(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	chain := pointChain(t, mp, []float64{0, 0.3, -0.6}, 0.1, 0.2)
	cc, err := NewChainConstraint(mp, chain, 3, logger)
	test.That(t, err, test.ShouldBeNil)
	region := chain.Regions()[0]

	for _, x := range [][]float64{
		{0, 0.3, -0.6},
		{0.05, 0.3, -0.6},
		{0.3, 0.3, -0.6},
		{0, 0.5, -0.9},
		{-1, 1, 1},
	} {
		pose, err := mp.ForwardKinematics(frame.FloatsToInputs(x), 0)
		test.That(t, err, test.ShouldBeNil)
		dist, err := cc.Distance(x)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dist == 0, test.ShouldEqual, region.Contains(region.Origin, pose, 0))
	}
}

func TestChainConstraintJacobian(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	// a point constraint keeps every row active
	chain := pointChain(t, mp, []float64{0.1, 0.2, -0.5}, 0, 0)
	x := []float64{0.3, 0.1, -0.2, 0.4}

	cc, err := NewChainConstraint(mp, chain, 4, logger)
	test.That(t, err, test.ShouldBeNil)
	analytic, err := cc.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, analytic, numericConstraintJacobian(t, cc, x), 1e-5)
	for i := 0; i < 6; i++ {
		test.That(t, analytic.At(i, 3), test.ShouldEqual, 0.)
	}

	// without an analytic robot jacobian the pose is differenced
	plain := &inject.Provider{Provider: mp}
	numericCC, err := NewChainConstraint(plain, chain, 4, logger)
	test.That(t, err, test.ShouldBeNil)
	numeric, err := numericCC.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, numeric, analytic, 1e-5)
}

func TestChainConstraintJacobianFollowsChain(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	x := []float64{0.3, 0.1, -0.2}

	// the first region only fixes height, so the second region's nominal frame moves with the arm
	loose, err := tsr.NewRegion(0, nil, nil, tsr.Bounds{
		{Min: -5, Max: 5}, {Min: -5, Max: 5}, {Min: 0.2, Max: 0.2},
		{Min: -1.5, Max: 1.5}, {Min: -1.5, Max: 1.5}, {Min: -1, Max: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	point, err := tsr.NewRegion(0, spatial.NewPoseFromPoint(r3.Vector{X: 0.1}), nil, tsr.Bounds{})
	test.That(t, err, test.ShouldBeNil)
	chain, err := tsr.NewChain(tsr.Flags{Constrain: true}, loose, point)
	test.That(t, err, test.ShouldBeNil)

	cc, err := NewChainConstraint(mp, chain, 3, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cc.Dimension(), test.ShouldEqual, 12)
	analytic, err := cc.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, analytic, numericConstraintJacobian(t, cc, x), 1e-5)

	plain := &inject.Provider{Provider: mp}
	numericCC, err := NewChainConstraint(plain, chain, 3, logger)
	test.That(t, err, test.ShouldBeNil)
	numeric, err := numericCC.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, numeric, analytic, 1e-5)
}

func TestChainConstraintWrapsYaw(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	free := frame.Limit{Min: math.Inf(-1), Max: math.Inf(1)}
	region, err := tsr.NewRegion(0, nil, nil, tsr.Bounds{
		free, free, free, free, free, {Min: math.Pi - 0.1, Max: math.Pi},
	})
	test.That(t, err, test.ShouldBeNil)
	chain, err := tsr.NewChain(tsr.Flags{Constrain: true}, region)
	test.That(t, err, test.ShouldBeNil)
	cc, err := NewChainConstraint(mp, chain, 3, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cc.Dimension(), test.ShouldEqual, 1)

	// yaw of -pi+0.01 is 0.01 past the upper bound, not 2pi below the lower one
	x := []float64{-math.Pi + 0.01, 0, 0}
	dist, err := cc.Distance(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldAlmostEqual, 0.01, 1e-9)
	jac, err := cc.Jacobian(x)
	test.That(t, err, test.ShouldBeNil)
	matricesAlmostEqual(t, jac, numericConstraintJacobian(t, cc, x), 1e-5)

	x[0] = math.Pi - 0.05
	dist, err = cc.Distance(x)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 0.)
}

func TestChainConstraintProject(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	target := []float64{0.1, 0.2, -0.5}
	chain := pointChain(t, mp, target, 0, 0)
	cc, err := NewChainConstraint(mp, chain, 4, logger)
	test.That(t, err, test.ShouldBeNil)

	start := []float64{0.2, 0.1, -0.4, 0.9}
	projected, err := Project(context.Background(), cc, start, 1e-8, 100)
	test.That(t, err, test.ShouldBeNil)
	dist, err := cc.Distance(projected)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldBeLessThan, 1e-8)
	test.That(t, projected[3], test.ShouldAlmostEqual, 0.9, 1e-9)

	reached, err := mp.ForwardKinematics(frame.FloatsToInputs(projected[:3]), 0)
	test.That(t, err, test.ShouldBeNil)
	want, err := mp.ForwardKinematics(frame.FloatsToInputs(target), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatial.PoseAlmostEqualEps(reached, want, 1e-6), test.ShouldBeTrue)
}

func TestChainConstraintKinematicsFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mp := threeJointProvider(t)
	chain := pointChain(t, mp, []float64{0, 0, 0}, 0.1, 0.1)
	broken := &inject.Provider{
		Provider: mp,
		ForwardKinematicsFunc: func(joints []frame.Input, manipulator int) (spatial.Pose, error) {
			return nil, errors.New("singular configuration")
		},
	}
	cc, err := NewChainConstraint(broken, chain, 3, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = cc.Value([]float64{0, 0, 0})
	test.That(t, errors.Is(err, kinematics.ErrKinematicsFailure), test.ShouldBeTrue)
	_, err = cc.Jacobian([]float64{0, 0, 0})
	test.That(t, errors.Is(err, kinematics.ErrKinematicsFailure), test.ShouldBeTrue)
	_, err = cc.Distance([]float64{0, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)
}
