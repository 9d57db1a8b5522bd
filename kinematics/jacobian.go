package kinematics

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// DefaultJacobianStep is the central difference step used by NumericJacobian when none is given.
const DefaultJacobianStep = 1e-6

// NumericJacobian estimates the 6xn world frame jacobian of the manipulator by central differences over every joint.
// A non-positive step uses DefaultJacobianStep.
func NumericJacobian(p Provider, joints []referenceframe.Input, manipulator int, step float64) (*mat.Dense, error) {
	if step <= 0 {
		step = DefaultJacobianStep
	}
	jac := mat.NewDense(6, len(joints), nil)
	probe := make([]referenceframe.Input, len(joints))
	copy(probe, joints)
	for i := range joints {
		probe[i].Value = joints[i].Value + step
		plus, err := p.ForwardKinematics(probe, manipulator)
		if err != nil {
			return nil, NewKinematicsFailureError(err)
		}
		probe[i].Value = joints[i].Value - step
		minus, err := p.ForwardKinematics(probe, manipulator)
		if err != nil {
			return nil, NewKinematicsFailureError(err)
		}
		probe[i].Value = joints[i].Value

		lin := plus.Point().Sub(minus.Point()).Mul(1 / (2 * step))
		rot := spatialmath.OrientationBetween(minus.Orientation(), plus.Orientation())
		ang := spatialmath.QuatToR3AA(rot.Quaternion()).Mul(1 / (2 * step))
		jac.Set(0, i, lin.X)
		jac.Set(1, i, lin.Y)
		jac.Set(2, i, lin.Z)
		jac.Set(3, i, ang.X)
		jac.Set(4, i, ang.Y)
		jac.Set(5, i, ang.Z)
	}
	return jac, nil
}

// Jacobian returns the provider's analytic jacobian when it has one, and a numeric estimate otherwise.
func Jacobian(p Provider, joints []referenceframe.Input, manipulator int) (*mat.Dense, error) {
	if jp, ok := p.(JacobianProvider); ok {
		return jp.Jacobian(joints, manipulator)
	}
	return NumericJacobian(p, joints, manipulator, 0)
}
