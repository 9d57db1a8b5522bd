package inject

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// Provider is an injected kinematics provider.
type Provider struct {
	kinematics.Provider
	DoFFunc               func() []referenceframe.Limit
	ForwardKinematicsFunc func(joints []referenceframe.Input, manipulator int) (spatialmath.Pose, error)
	InverseKinematicsFunc func(
		ctx context.Context,
		target spatialmath.Pose,
		manipulator int,
		seed []referenceframe.Input,
	) ([]referenceframe.Input, error)
	JointLimitsFunc func(manipulator int) ([]referenceframe.Limit, error)
}

// DoF calls the injected DoF or the real version.
func (p *Provider) DoF() []referenceframe.Limit {
	if p.DoFFunc == nil {
		return p.Provider.DoF()
	}
	return p.DoFFunc()
}

// ForwardKinematics calls the injected ForwardKinematics or the real version.
func (p *Provider) ForwardKinematics(joints []referenceframe.Input, manipulator int) (spatialmath.Pose, error) {
	if p.ForwardKinematicsFunc == nil {
		return p.Provider.ForwardKinematics(joints, manipulator)
	}
	return p.ForwardKinematicsFunc(joints, manipulator)
}

// InverseKinematics calls the injected InverseKinematics or the real version.
func (p *Provider) InverseKinematics(
	ctx context.Context,
	target spatialmath.Pose,
	manipulator int,
	seed []referenceframe.Input,
) ([]referenceframe.Input, error) {
	if p.InverseKinematicsFunc == nil {
		return p.Provider.InverseKinematics(ctx, target, manipulator, seed)
	}
	return p.InverseKinematicsFunc(ctx, target, manipulator, seed)
}

// JointLimits calls the injected JointLimits or the real version.
func (p *Provider) JointLimits(manipulator int) ([]referenceframe.Limit, error) {
	if p.JointLimitsFunc == nil {
		return p.Provider.JointLimits(manipulator)
	}
	return p.JointLimitsFunc(manipulator)
}

// JacobianProvider is an injected kinematics provider that also reports jacobians.
type JacobianProvider struct {
	Provider
	JacobianFunc func(joints []referenceframe.Input, manipulator int) (*mat.Dense, error)
}

// Jacobian calls the injected Jacobian or the real version, falling back to a numeric estimate when the embedded
// provider has none.
func (p *JacobianProvider) Jacobian(joints []referenceframe.Input, manipulator int) (*mat.Dense, error) {
	if p.JacobianFunc == nil {
		if jp, ok := p.Provider.Provider.(kinematics.JacobianProvider); ok {
			return jp.Jacobian(joints, manipulator)
		}
		return kinematics.NumericJacobian(&p.Provider, joints, manipulator, 0)
	}
	return p.JacobianFunc(joints, manipulator)
}
