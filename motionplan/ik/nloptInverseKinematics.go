//go:build !windows && !no_cgo

package ik

import (
	"context"
	"math"
	"math/rand"
	"strings"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

var errBadBounds = errors.New("cannot set nlopt bounds for a frame without joints")

const (
	nloptStepsPerRestart = 4001
	defaultNloptRestarts = 50
	gradientStep         = 1e-8
	// unbounded joints are restarted within this range
	unboundedRestartRange = math.Pi
)

// NloptIK minimizes the squared norm metric with SLSQP from nlopt, restarting from random configurations within
// the frame's limits after the first attempt from the seed.
type NloptIK struct {
	model      referenceframe.Frame
	lowerBound []float64
	upperBound []float64
	restarts   int
	epsilon    float64
	logger     logging.Logger

	// if exact is false partial solutions that improve on the seed are also sent.
	exact bool
}

// CreateNloptIKSolver returns an NloptIK over mdl. If restarts is less than 1 the default of 50 is used.
func CreateNloptIKSolver(mdl referenceframe.Frame, logger logging.Logger, restarts int, exact bool) (*NloptIK, error) {
	if restarts < 1 {
		restarts = defaultNloptRestarts
	}
	lower, upper := limitsToArrays(mdl.DoF())
	if len(lower) == 0 {
		return nil, errBadBounds
	}
	return &NloptIK{
		model:      mdl,
		lowerBound: lower,
		upperBound: upper,
		restarts:   restarts,
		epsilon:    defaultGoalThreshold,
		logger:     logger,
		exact:      exact,
	}, nil
}

// Frame returns the associated referenceframe.
func (ik *NloptIK) Frame() referenceframe.Frame {
	return ik.model
}

type optimizeResult struct {
	x     []float64
	score float64
	err   error
}

// Solve sends any solution found to solutionChan. It returns after the first exact solution when exact is set.
func (ik *NloptIK) Solve(ctx context.Context,
	solutionChan chan<- *Solution,
	goal spatialmath.Pose,
	seed []referenceframe.Input,
	rseed int,
) error {
	if len(seed) != len(ik.lowerBound) {
		return referenceframe.NewIncorrectDoFError(len(seed), len(ik.lowerBound))
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(int64(rseed)))
	metric := NewSquaredNormMetric(goal)

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(len(ik.lowerBound)))
	if err != nil {
		return errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	var transformErr error
	score := func(x []float64) (float64, bool) {
		pose, err := ik.model.Transform(referenceframe.FloatsToInputs(x))
		if pose == nil || (err != nil && !strings.Contains(err.Error(), referenceframe.OOBErrString)) {
			transformErr = err
			utils.UncheckedError(opt.ForceStop())
			return 0, false
		}
		return metric(&State{Position: pose, Configuration: referenceframe.FloatsToInputs(x), Frame: ik.model}), true
	}
	// forward differences, stepping backwards at the upper bound
	objective := func(x, gradient []float64) float64 {
		dist, ok := score(x)
		if !ok {
			return 0
		}
		probe := append([]float64{}, x...)
		for i := range gradient {
			step := gradientStep
			if probe[i]+step > ik.upperBound[i] {
				step = -step
			}
			probe[i] = x[i] + step
			stepped, ok := score(probe)
			if !ok {
				return 0
			}
			gradient[i] = (stepped - dist) / step
			probe[i] = x[i]
		}
		return dist
	}

	err = multierr.Combine(
		opt.SetFtolRel(ik.epsilon),
		opt.SetFtolAbs(ik.epsilon),
		opt.SetXtolRel(ik.epsilon),
		opt.SetXtolAbs1(ik.epsilon),
		opt.SetStopVal(ik.epsilon),
		opt.SetLowerBounds(ik.lowerBound),
		opt.SetUpperBounds(ik.upperBound),
		opt.SetMinObjective(objective),
		opt.SetMaxEval(nloptStepsPerRestart),
	)
	if err != nil {
		return err
	}

	start := referenceframe.InputsToFloats(seed)
	results := make(chan optimizeResult, 1)
	var solveErr error
	found := false
	for attempt := 0; attempt < ik.restarts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		x0 := start
		utils.PanicCapturingGo(func() {
			x, s, err := opt.Optimize(x0)
			results <- optimizeResult{x, s, err}
		})
		var res optimizeResult
		select {
		case <-ctx.Done():
			utils.UncheckedError(opt.ForceStop())
			<-results
			return ctx.Err()
		case res = <-results:
		}
		if transformErr != nil {
			return transformErr
		}
		if res.err != nil {
			// SLSQP sometimes fails on these nonlinear problems; later restarts may still succeed
			solveErr = multierr.Combine(solveErr, res.err)
		}
		exact := res.x != nil && res.score < ik.epsilon
		if exact || (res.x != nil && !ik.exact) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case solutionChan <- &Solution{Configuration: referenceframe.FloatsToInputs(res.x), Score: res.score, Exact: exact}:
			}
			found = true
			if exact && ik.exact {
				return nil
			}
		}
		start = ik.randomStart(rng)
	}
	if found {
		return nil
	}
	ik.logger.Debugw("nlopt exhausted its restarts", "restarts", ik.restarts, "error", solveErr)
	return multierr.Combine(solveErr, ErrNoSolution)
}

func (ik *NloptIK) randomStart(rng *rand.Rand) []float64 {
	x := make([]float64, len(ik.lowerBound))
	for i := range x {
		lower := math.Max(ik.lowerBound[i], -unboundedRestartRange)
		upper := math.Min(ik.upperBound[i], unboundedRestartRange)
		x[i] = lower + rng.Float64()*(upper-lower)
	}
	return x
}
