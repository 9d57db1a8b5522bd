package ik

import (
	"context"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

const (
	jacobianIterations   = 3000
	jacobianRestartEvery = 150
	jacobianMutation     = 0.05
	jacobianDamping      = 1e-3
)

// JacobianFrame is a frame that can report its geometric jacobian in the world frame.
type JacobianFrame interface {
	referenceframe.Frame
	Jacobian([]referenceframe.Input) (*mat.Dense, error)
}

// JacobianIK is a damped least squares solver. Every few hundred iterations without convergence it perturbs one
// joint of the seed at a time, and once those are exhausted restarts from random positions.
type JacobianIK struct {
	model      JacobianFrame
	lowerBound []float64
	upperBound []float64
	iterations int
	epsilon    float64
	logger     logging.Logger
}

// CreateJacobianIKSolver creates a JacobianIK for the given frame. If iter is less than 1 the default of 3000 is used.
func CreateJacobianIKSolver(mdl JacobianFrame, logger logging.Logger, iter int) *JacobianIK {
	if iter < 1 {
		iter = jacobianIterations
	}
	ik := &JacobianIK{
		model:      mdl,
		iterations: iter,
		epsilon:    defaultGoalThreshold,
		logger:     logger,
	}
	ik.lowerBound, ik.upperBound = limitsToArrays(mdl.DoF())
	return ik
}

// Frame returns the associated referenceframe.
func (ik *JacobianIK) Frame() referenceframe.Frame {
	return ik.model
}

// Solve iterates dq = J^T (J J^T + λ²I)^-1 dx from the seed, clamping to joint limits, and sends the first configuration
// whose squared norm distance to the goal is below epsilon.
func (ik *JacobianIK) Solve(ctx context.Context,
	solutionChan chan<- *Solution,
	goal spatialmath.Pose,
	seed []referenceframe.Input,
	rseed int,
) error {
	if len(seed) != len(ik.lowerBound) {
		return referenceframe.NewIncorrectDoFError(len(seed), len(ik.lowerBound))
	}
	//nolint: gosec
	randSeed := rand.New(rand.NewSource(int64(rseed)))
	metric := NewSquaredNormMetric(goal)
	state := &State{Frame: ik.model}

	q := referenceframe.ClampInputs(seed, ik.model.DoF())
	jointMut := 0
	jointAmt := jacobianMutation

	for iteration := 1; iteration <= ik.iterations; iteration++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pose, err := ik.model.Transform(q)
		if pose == nil || (err != nil && !strings.Contains(err.Error(), referenceframe.OOBErrString)) {
			return err
		}
		state.Configuration = q
		state.Position = pose
		if dist := metric(state); dist < ik.epsilon {
			solution := &Solution{Configuration: q, Score: dist, Exact: true}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case solutionChan <- solution:
			}
			return nil
		}

		dq, err := ik.step(q, pose, goal)
		if err != nil {
			return err
		}
		next := make([]referenceframe.Input, len(q))
		for i := range q {
			next[i] = referenceframe.Input{Value: q[i].Value + dq[i]}
		}
		q = referenceframe.ClampInputs(next, ik.model.DoF())

		if iteration%jacobianRestartEvery == 0 {
			if jointMut < len(seed) {
				mutated := append([]referenceframe.Input{}, seed...)
				mutated[jointMut].Value += jointAmt
				q = referenceframe.ClampInputs(mutated, ik.model.DoF())

				// Test +/- jointAmt
				jointAmt *= -1
				if jointAmt > 0 {
					jointMut++
				}
			} else {
				q = referenceframe.RandomFrameInputs(ik.model, randSeed)
			}
		}
	}
	ik.logger.Debugw("jacobian ik exhausted iterations", "iterations", ik.iterations)
	return ErrNoSolution
}

// step returns the damped least squares joint update towards the goal.
func (ik *JacobianIK) step(q []referenceframe.Input, current, goal spatialmath.Pose) ([]float64, error) {
	jac, err := ik.model.Jacobian(q)
	if err != nil {
		return nil, err
	}
	dp := goal.Point().Sub(current.Point())
	dr := spatialmath.QuatToR3AA(spatialmath.OrientationBetween(current.Orientation(), goal.Orientation()).Quaternion())
	dx := mat.NewVecDense(6, []float64{dp.X, dp.Y, dp.Z, dr.X, dr.Y, dr.Z})

	var jjt mat.Dense
	jjt.Mul(jac, jac.T())
	for i := 0; i < 6; i++ {
		jjt.Set(i, i, jjt.At(i, i)+jacobianDamping*jacobianDamping)
	}
	var y mat.VecDense
	if err := y.SolveVec(&jjt, dx); err != nil {
		// an ill conditioned system still yields a usable damped step
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	var dq mat.VecDense
	dq.MulVec(jac.T(), &y)
	return dq.RawVector().Data, nil
}
