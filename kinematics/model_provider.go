package kinematics

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/ik"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// Manipulator binds a serial model to the robot joints that drive it.
type Manipulator struct {
	Model *referenceframe.SimpleModel
	// Joints[i] is the robot configuration index of the model's i'th input.
	Joints []int
	// Solver is used for inverse kinematics. A JacobianIK over Model is created when nil.
	Solver ik.Solver
}

// ModelProvider is a Provider for a robot built from one or more serial models, whose joints may be shared.
type ModelProvider struct {
	limits       []referenceframe.Limit
	manipulators []Manipulator
	logger       logging.Logger
	calls        atomic.Int64
}

// NewModelProvider builds a provider over the given manipulators. Every robot joint index from 0 to the highest one
// referenced must be driven by some manipulator.
func NewModelProvider(logger logging.Logger, manipulators ...Manipulator) (*ModelProvider, error) {
	if len(manipulators) == 0 {
		return nil, referenceframe.ErrNeedOneEndEffector
	}
	numJoints := 0
	for i, m := range manipulators {
		if m.Model == nil {
			return nil, errors.Wrapf(referenceframe.ErrNoModelInformation, "manipulator %d", i)
		}
		if len(m.Joints) != len(m.Model.DoF()) {
			return nil, errors.Wrapf(referenceframe.NewIncorrectDoFError(len(m.Joints), len(m.Model.DoF())), "manipulator %d", i)
		}
		for _, j := range m.Joints {
			if j < 0 {
				return nil, errors.Errorf("manipulator %d references negative joint index %d", i, j)
			}
			if j+1 > numJoints {
				numJoints = j + 1
			}
		}
	}

	limits := make([]referenceframe.Limit, numJoints)
	assigned := make([]bool, numJoints)
	mp := &ModelProvider{logger: logger}
	for _, m := range manipulators {
		dof := m.Model.DoF()
		for k, j := range m.Joints {
			if !assigned[j] {
				limits[j] = dof[k]
				assigned[j] = true
			}
		}
		if m.Solver == nil {
			m.Solver = ik.CreateJacobianIKSolver(m.Model, logger, 0)
		}
		mp.manipulators = append(mp.manipulators, m)
	}
	for j, ok := range assigned {
		if !ok {
			return nil, errors.Errorf("robot joint %d is not driven by any manipulator", j)
		}
	}
	mp.limits = limits
	return mp, nil
}

// DoF returns the limits of every robot joint.
func (mp *ModelProvider) DoF() []referenceframe.Limit {
	return append([]referenceframe.Limit{}, mp.limits...)
}

// ForwardKinematics returns the end effector pose of the manipulator. Joints outside their limits are still posed.
func (mp *ModelProvider) ForwardKinematics(joints []referenceframe.Input, manipulator int) (spatialmath.Pose, error) {
	m, err := mp.manipulator(manipulator)
	if err != nil {
		return nil, err
	}
	local, err := mp.localInputs(m, joints)
	if err != nil {
		return nil, err
	}
	mp.calls.Inc()
	pose, err := m.Model.Transform(local)
	if pose == nil || (err != nil && !strings.Contains(err.Error(), referenceframe.OOBErrString)) {
		return nil, NewKinematicsFailureError(err)
	}
	return pose, nil
}

// InverseKinematics solves for the manipulator's joints and returns seed with those joints replaced.
func (mp *ModelProvider) InverseKinematics(
	ctx context.Context,
	target spatialmath.Pose,
	manipulator int,
	seed []referenceframe.Input,
) ([]referenceframe.Input, error) {
	m, err := mp.manipulator(manipulator)
	if err != nil {
		return nil, err
	}
	local, err := mp.localInputs(m, seed)
	if err != nil {
		return nil, err
	}
	solution, err := ik.SolveBest(ctx, m.Solver, target, local, 1)
	if err != nil {
		return nil, err
	}
	out := make([]referenceframe.Input, len(seed))
	copy(out, seed)
	for k, j := range m.Joints {
		out[j] = solution[k]
	}
	return out, nil
}

// JointLimits returns the limits of the joints driving the manipulator, in the model's order.
func (mp *ModelProvider) JointLimits(manipulator int) ([]referenceframe.Limit, error) {
	m, err := mp.manipulator(manipulator)
	if err != nil {
		return nil, err
	}
	return m.Model.DoF(), nil
}

// Jacobian returns the manipulator's analytic jacobian expanded to the robot's full DoF. Columns of joints that do not
// move the manipulator are zero.
func (mp *ModelProvider) Jacobian(joints []referenceframe.Input, manipulator int) (*mat.Dense, error) {
	m, err := mp.manipulator(manipulator)
	if err != nil {
		return nil, err
	}
	local, err := mp.localInputs(m, joints)
	if err != nil {
		return nil, err
	}
	localJac, err := m.Model.Jacobian(local)
	if err != nil {
		return nil, NewKinematicsFailureError(err)
	}
	jac := mat.NewDense(6, len(mp.limits), nil)
	for k, j := range m.Joints {
		for r := 0; r < 6; r++ {
			jac.Set(r, j, jac.At(r, j)+localJac.At(r, k))
		}
	}
	return jac, nil
}

// ForwardKinematicsCalls returns how many forward kinematics evaluations have been made.
func (mp *ModelProvider) ForwardKinematicsCalls() int64 {
	return mp.calls.Load()
}

func (mp *ModelProvider) manipulator(idx int) (Manipulator, error) {
	if idx < 0 || idx >= len(mp.manipulators) {
		return Manipulator{}, NewUnknownManipulatorError(idx, len(mp.manipulators))
	}
	return mp.manipulators[idx], nil
}

func (mp *ModelProvider) localInputs(m Manipulator, joints []referenceframe.Input) ([]referenceframe.Input, error) {
	if len(joints) != len(mp.limits) {
		return nil, referenceframe.NewIncorrectDoFError(len(joints), len(mp.limits))
	}
	local := make([]referenceframe.Input, len(m.Joints))
	for k, j := range m.Joints {
		local[k] = joints[j]
	}
	return local, nil
}
