package referenceframe

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/spatialmath"
)

// SimpleModel is a serial chain of frames ordered from the base outwards.
// Generally speaking, a Joint will attach a Body to a Frame
// And a Fixed will attach a Frame to a Body
// Exceptions are the head of the tree where we are just starting the robot from World.
type SimpleModel struct {
	name string // the name of the arm
	// OrdTransforms is the list of transforms ordered from base to end effector
	OrdTransforms []Frame
	limits        []Limit
	lock          sync.RWMutex
}

// NewSimpleModel constructs a new model.
func NewSimpleModel(name string) *SimpleModel {
	return &SimpleModel{name: name}
}

// NewSerialModel builds a model from frames ordered base to end effector.
func NewSerialModel(name string, frames ...Frame) *SimpleModel {
	m := NewSimpleModel(name)
	m.setOrdTransforms(frames)
	return m
}

func (m *SimpleModel) setOrdTransforms(ot []Frame) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.OrdTransforms = ot
	m.limits = nil
}

// GenerateRandomJointPositions generates a list of radian joint positions that are random but valid for each joint.
func GenerateRandomJointPositions(m Frame, randSeed *rand.Rand) []float64 {
	return InputsToFloats(RandomFrameInputs(m, randSeed))
}

// Name returns the name of this model.
func (m *SimpleModel) Name() string {
	return m.name
}

// ChangeName changes the name of this model.
func (m *SimpleModel) ChangeName(name string) {
	m.name = name
}

// Transform takes a model and a list of joint angles in radians and computes the dual quaternion representing the
// cartesian position of the end effector. Out of bounds inputs still produce a pose alongside an OOB error.
func (m *SimpleModel) Transform(inputs []Input) (spatialmath.Pose, error) {
	poses, err := m.jointPoses(inputs)
	if poses == nil {
		return nil, err
	}
	return poses[len(poses)-1], err
}

// jointPoses returns the world pose after each frame in OrdTransforms, with the base pose prepended.
func (m *SimpleModel) jointPoses(inputs []Input) ([]spatialmath.Pose, error) {
	if len(inputs) != len(m.DoF()) {
		return nil, NewIncorrectDoFError(len(inputs), len(m.DoF()))
	}
	var err error
	poses := make([]spatialmath.Pose, 0, len(m.OrdTransforms)+1)
	// Start at ((1+0i+0j+0k)+(+0+0i+0j+0k)ϵ)
	composedTransformation := spatialmath.NewZeroPose()
	poses = append(poses, composedTransformation)
	posIdx := 0
	// get quaternions from the base outwards.
	for _, transform := range m.OrdTransforms {
		dof := len(transform.DoF()) + posIdx
		input := inputs[posIdx:dof]
		posIdx = dof

		pose, errNew := transform.Transform(input)
		// Fail if inputs are incorrect and pose is nil, but allow querying out-of-bounds positions
		if pose == nil {
			return nil, errNew
		}
		multierr.AppendInto(&err, errNew)
		composedTransformation = spatialmath.Compose(composedTransformation, pose)
		poses = append(poses, composedTransformation)
	}
	return poses, err
}

// Jacobian returns the 6xn geometric jacobian of the end effector in the world frame. Rows 0-2 are the linear
// velocity and rows 3-5 the angular velocity produced by a unit rate of each input.
func (m *SimpleModel) Jacobian(inputs []Input) (*mat.Dense, error) {
	poses, err := m.jointPoses(inputs)
	if poses == nil {
		return nil, err
	}
	if err != nil && !strings.Contains(err.Error(), OOBErrString) {
		return nil, err
	}
	n := len(inputs)
	if n == 0 {
		return nil, NewIncorrectDoFError(0, 1)
	}
	jac := mat.NewDense(6, n, nil)
	ee := poses[len(poses)-1].Point()
	col := 0
	for i, transform := range m.OrdTransforms {
		parent := poses[i]
		rot := parent.Orientation().RotationMatrix()
		switch f := transform.(type) {
		case *rotationalFrame:
			axis := rot.MulVec(f.rotAxis)
			lin := axis.Cross(ee.Sub(parent.Point()))
			setJacobianColumn(jac, col, lin, axis)
		case *translationalFrame:
			setJacobianColumn(jac, col, rot.MulVec(f.transAxis), r3.Vector{})
		default:
			if len(transform.DoF()) != 0 {
				return nil, NewIncorrectDoFError(len(transform.DoF()), 0)
			}
		}
		col += len(transform.DoF())
	}
	return jac, nil
}

func setJacobianColumn(jac *mat.Dense, col int, lin, ang r3.Vector) {
	jac.Set(0, col, lin.X)
	jac.Set(1, col, lin.Y)
	jac.Set(2, col, lin.Z)
	jac.Set(3, col, ang.X)
	jac.Set(4, col, ang.Y)
	jac.Set(5, col, ang.Z)
}

// AreJointPositionsValid checks whether the given array of joint positions violates any joint limits.
func (m *SimpleModel) AreJointPositionsValid(pos []float64) bool {
	limits := m.DoF()
	for i := 0; i < len(limits); i++ {
		if pos[i] < limits[i].Min || pos[i] > limits[i].Max {
			return false
		}
	}
	return true
}

// DoF returns the number of degrees of freedom within an arm.
func (m *SimpleModel) DoF() []Limit {
	m.lock.RLock()
	if m.limits != nil {
		defer m.lock.RUnlock()
		return m.limits
	}
	m.lock.RUnlock()

	limits := make([]Limit, 0, len(m.OrdTransforms))
	for _, transform := range m.OrdTransforms {
		if len(transform.DoF()) > 0 {
			limits = append(limits, transform.DoF()...)
		}
	}
	m.lock.Lock()
	m.limits = limits
	m.lock.Unlock()
	return limits
}

// AlmostEquals returns true if the only difference between this model and another is floating point inprecision.
func (m *SimpleModel) AlmostEquals(otherFrame Frame) bool {
	other, ok := otherFrame.(*SimpleModel)
	if !ok {
		return false
	}

	if m.name != other.name {
		return false
	}

	if len(m.OrdTransforms) != len(other.OrdTransforms) {
		return false
	}

	for idx, f := range m.OrdTransforms {
		if !f.AlmostEquals(other.OrdTransforms[idx]) {
			return false
		}
	}

	return true
}
