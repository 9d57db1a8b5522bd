package manifold

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/tsr"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
	"go.viam.com/compnetx/utils"
)

const (
	// below this cos(pitch) the analytic roll-pitch-yaw rates are replaced with differences.
	rpyRateEpsilon = 1e-6
	numericStep    = 1e-6
)

type constraintRow struct {
	region int
	axis   int
}

// ChainConstraint is zero when the manipulator's end effector, passed through every region of a chain, lies within
// all of their bounds. There is one residual per axis that is not free; an axis contributes how far its displacement
// lies beyond the nearer bound, and nothing when inside.
//
// Configurations are ambient vectors whose first values are the robot's joints. Any further values, such as the
// chain's own, do not affect the constraint.
type ChainConstraint struct {
	provider   kinematics.Provider
	chain      *tsr.Chain
	regions    []*tsr.Region
	robotDOF   int
	ambientDim int
	rows       []constraintRow
	logger     logging.Logger
	calls      atomic.Int64
}

// NewChainConstraint returns a constraint holding the provider's manipulator to an initialized chain.
func NewChainConstraint(
	provider kinematics.Provider,
	chain *tsr.Chain,
	ambientDim int,
	logger logging.Logger,
) (*ChainConstraint, error) {
	if _, err := chain.NumDOF(); err != nil {
		return nil, err
	}
	robotDOF := len(provider.DoF())
	if ambientDim < robotDOF {
		return nil, errors.Errorf("ambient dimension %d is smaller than the robot's %d joints", ambientDim, robotDOF)
	}
	cc := &ChainConstraint{
		provider:   provider,
		chain:      chain,
		regions:    chain.Regions(),
		robotDOF:   robotDOF,
		ambientDim: ambientDim,
		logger:     logger,
	}
	for i, r := range cc.regions {
		for axis := tsr.AxisX; axis <= tsr.AxisYaw; axis++ {
			if !r.Bounds.Free(axis) {
				cc.rows = append(cc.rows, constraintRow{i, axis})
			}
		}
	}
	return cc, nil
}

// Dimension returns the number of constrained axes across the chain.
func (cc *ChainConstraint) Dimension() int { return len(cc.rows) }

// AmbientDimension returns the configuration length.
func (cc *ChainConstraint) AmbientDimension() int { return cc.ambientDim }

// Calls returns how many times the constraint has been evaluated.
func (cc *ChainConstraint) Calls() int64 { return cc.calls.Load() }

// Value returns the displacement beyond the bounds on each constrained axis.
func (cc *ChainConstraint) Value(x []float64) ([]float64, error) {
	eval, _, _, err := cc.evaluate(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cc.rows))
	for k, row := range cc.rows {
		re := eval.Regions[row.region]
		out[k] = re.Raw[row.axis] - re.Clamped[row.axis]
	}
	return out, nil
}

// Distance returns the 2-norm of Value.
func (cc *ChainConstraint) Distance(x []float64) (float64, error) {
	v, err := cc.Value(x)
	if err != nil {
		return 0, err
	}
	return floats.Norm(v, 2), nil
}

// Jacobian returns the derivative of Value with respect to x. Rows of axes strictly inside their bounds are zero; at
// a bound the row is kept. The first region's nominal frame does not depend on x, so its rows are mapped from the
// robot jacobian. Later regions follow the clamped pose of the one before, and their rows are differenced through
// the whole chain.
func (cc *ChainConstraint) Jacobian(x []float64) (*mat.Dense, error) {
	eval, joints, pose, err := cc.evaluate(x)
	if err != nil {
		return nil, err
	}
	var robotJac *mat.Dense
	if jp, ok := cc.provider.(kinematics.JacobianProvider); ok {
		if robotJac, err = jp.Jacobian(joints, cc.chain.ManipulatorIndex()); err != nil {
			return nil, kinematics.NewKinematicsFailureError(err)
		}
	}

	jac := mat.NewDense(len(cc.rows), cc.ambientDim, nil)
	var probes *probePoses
	localJacs := make([]*mat.Dense, len(cc.regions))
	for k, row := range cc.rows {
		re := eval.Regions[row.region]
		if !re.Active[row.axis] {
			continue
		}
		local := localJacs[row.region]
		if local == nil {
			if row.region == 0 && robotJac != nil && math.Cos(re.Raw[tsr.AxisPitch]) > rpyRateEpsilon {
				local = cc.analyticDisplacementJacobian(cc.regions[0], re, pose, robotJac)
			} else {
				if probes == nil {
					if probes, err = cc.probe(joints); err != nil {
						return nil, err
					}
				}
				if row.region == 0 {
					local = cc.numericDisplacementJacobian(cc.regions[0], re, probes)
				} else if local, err = cc.numericChainJacobian(row.region, eval, probes); err != nil {
					return nil, err
				}
			}
			localJacs[row.region] = local
		}
		for j := 0; j < cc.robotDOF; j++ {
			jac.Set(k, j, local.At(row.axis, j))
		}
	}
	return jac, nil
}

func (cc *ChainConstraint) evaluate(x []float64) (*tsr.Evaluation, []referenceframe.Input, spatialmath.Pose, error) {
	if len(x) != cc.ambientDim {
		return nil, nil, nil, NewAmbientDimensionError(len(x), cc.ambientDim)
	}
	cc.calls.Inc()
	joints := referenceframe.FloatsToInputs(x[:cc.robotDOF])
	pose, err := cc.provider.ForwardKinematics(joints, cc.chain.ManipulatorIndex())
	if err != nil {
		return nil, nil, nil, kinematics.NewKinematicsFailureError(err)
	}
	eval, err := cc.chain.Evaluate(pose, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return eval, joints, pose, nil
}

// analyticDisplacementJacobian maps the robot's world frame twist through D = A^-1 * Q * B^-1, with A the region's
// nominal frame, Q the end effector pose and B the region's offset.
func (cc *ChainConstraint) analyticDisplacementJacobian(
	region *tsr.Region,
	re tsr.RegionEvaluation,
	pose spatialmath.Pose,
	robotJac *mat.Dense,
) *mat.Dense {
	rat := re.Nominal.Orientation().RotationMatrix().Transpose()
	rq := pose.Orientation().RotationMatrix()
	rb := region.Offset.Orientation().RotationMatrix()
	w := rq.Mul(rb.Transpose()).MulVec(region.Offset.Point())

	sp, cp := math.Sincos(re.Raw[tsr.AxisPitch])
	sy, cy := math.Sincos(re.Raw[tsr.AxisYaw])

	local := mat.NewDense(6, cc.robotDOF, nil)
	for j := 0; j < cc.robotDOF; j++ {
		v := r3.Vector{X: robotJac.At(0, j), Y: robotJac.At(1, j), Z: robotJac.At(2, j)}
		omega := r3.Vector{X: robotJac.At(3, j), Y: robotJac.At(4, j), Z: robotJac.At(5, j)}
		dp := rat.MulVec(v.Add(w.Cross(omega)))
		od := rat.MulVec(omega)
		rollRate := (cy*od.X + sy*od.Y) / cp
		local.Set(tsr.AxisX, j, dp.X)
		local.Set(tsr.AxisY, j, dp.Y)
		local.Set(tsr.AxisZ, j, dp.Z)
		local.Set(tsr.AxisRoll, j, rollRate)
		local.Set(tsr.AxisPitch, j, -sy*od.X+cy*od.Y)
		local.Set(tsr.AxisYaw, j, od.Z+sp*rollRate)
	}
	return local
}

type probePoses struct {
	plus, minus []spatialmath.Pose
}

func (cc *ChainConstraint) probe(joints []referenceframe.Input) (*probePoses, error) {
	probes := &probePoses{
		plus:  make([]spatialmath.Pose, len(joints)),
		minus: make([]spatialmath.Pose, len(joints)),
	}
	manip := cc.chain.ManipulatorIndex()
	q := append([]referenceframe.Input{}, joints...)
	for j := range joints {
		var err error
		q[j].Value = joints[j].Value + numericStep
		if probes.plus[j], err = cc.provider.ForwardKinematics(q, manip); err != nil {
			return nil, kinematics.NewKinematicsFailureError(err)
		}
		q[j].Value = joints[j].Value - numericStep
		if probes.minus[j], err = cc.provider.ForwardKinematics(q, manip); err != nil {
			return nil, kinematics.NewKinematicsFailureError(err)
		}
		q[j] = joints[j]
	}
	return probes, nil
}

// numericDisplacementJacobian differences the region displacement of the probed poses. Roll is hinted with its value
// at x so the decomposition stays continuous at gimbal lock.
func (cc *ChainConstraint) numericDisplacementJacobian(
	region *tsr.Region,
	re tsr.RegionEvaluation,
	probes *probePoses,
) *mat.Dense {
	cc.logger.Debugw("differencing region displacement", "pitch", re.Raw[tsr.AxisPitch])
	roll := re.Raw[tsr.AxisRoll]
	local := mat.NewDense(6, cc.robotDOF, nil)
	for j := 0; j < cc.robotDOF; j++ {
		plus := region.DisplacementFrom(re.Nominal, probes.plus[j], &roll)
		minus := region.DisplacementFrom(re.Nominal, probes.minus[j], &roll)
		for axis := tsr.AxisX; axis <= tsr.AxisYaw; axis++ {
			diff := plus[axis] - minus[axis]
			if axis >= tsr.AxisRoll {
				diff = utils.WrapAngle(diff)
			}
			local.Set(axis, j, diff/(2*numericStep))
		}
	}
	return local
}

// numericChainJacobian differences region i's raw displacement of the probed poses, passing each through the chain
// so the region's nominal frame moves with the regions before it.
func (cc *ChainConstraint) numericChainJacobian(i int, eval *tsr.Evaluation, probes *probePoses) (*mat.Dense, error) {
	local := mat.NewDense(6, cc.robotDOF, nil)
	for j := 0; j < cc.robotDOF; j++ {
		plus, err := cc.chain.Evaluate(probes.plus[j], eval.Values)
		if err != nil {
			return nil, err
		}
		minus, err := cc.chain.Evaluate(probes.minus[j], eval.Values)
		if err != nil {
			return nil, err
		}
		for axis := tsr.AxisX; axis <= tsr.AxisYaw; axis++ {
			diff := plus.Regions[i].Raw[axis] - minus.Regions[i].Raw[axis]
			if axis >= tsr.AxisRoll {
				diff = utils.WrapAngle(diff)
			}
			local.Set(axis, j, diff/(2*numericStep))
		}
	}
	return local, nil
}
