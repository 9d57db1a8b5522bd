// Package kinematics defines the robot kinematics collaborator that constraint and sampling code is written against,
// along with a provider backed by referenceframe models and ik solvers.
package kinematics

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// ErrKinematicsFailure is returned when forward kinematics cannot evaluate a configuration.
var ErrKinematicsFailure = errors.New("forward kinematics failed")

// NewKinematicsFailureError wraps the underlying cause so that errors.Is(err, ErrKinematicsFailure) holds.
func NewKinematicsFailureError(cause error) error {
	if cause == nil {
		return ErrKinematicsFailure
	}
	if errors.Is(cause, ErrKinematicsFailure) {
		return cause
	}
	return errors.Wrap(ErrKinematicsFailure, cause.Error())
}

// NewUnknownManipulatorError is returned when a manipulator index does not exist on the robot.
func NewUnknownManipulatorError(manipulator, count int) error {
	return errors.Errorf("manipulator index %d out of range, robot has %d manipulators", manipulator, count)
}

// Provider is the robot a constraint or sampler is evaluated against. All joint vectors are full robot
// configurations; a manipulator index selects which end effector is posed or solved for.
type Provider interface {
	// DoF returns the limits of every joint of the robot, in configuration order.
	DoF() []referenceframe.Limit

	// ForwardKinematics returns the world pose of the manipulator's end effector.
	ForwardKinematics(joints []referenceframe.Input, manipulator int) (spatialmath.Pose, error)

	// InverseKinematics returns a full configuration, starting from seed, that places the manipulator at target.
	// Joints not belonging to the manipulator are returned as they were in seed. It returns ik.ErrNoSolution
	// when the target cannot be reached.
	InverseKinematics(
		ctx context.Context,
		target spatialmath.Pose,
		manipulator int,
		seed []referenceframe.Input,
	) ([]referenceframe.Input, error)

	// JointLimits returns the limits of the joints that move the manipulator.
	JointLimits(manipulator int) ([]referenceframe.Limit, error)
}

// JacobianProvider is a Provider that can also report the 6xn world frame geometric jacobian of a manipulator,
// where n is the robot's full DoF. Rows 0-2 are linear and rows 3-5 angular velocity.
type JacobianProvider interface {
	Provider
	Jacobian(joints []referenceframe.Input, manipulator int) (*mat.Dense, error)
}
