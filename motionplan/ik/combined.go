package ik

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// CombinedIK defines the fields necessary to run a combined solver.
type CombinedIK struct {
	solvers []Solver
	model   referenceframe.Frame
	logger  logging.Logger
}

// CreateCombinedIKSolver creates a combined parallel IK solver that operates on a frame with a jacobian solver plus
// nCPU-1 nlopt solvers, where nlopt is available. Each will be given a different random seed. When asked to solve,
// all solvers will be run in parallel and the remaining ones are cancelled once the first exact solution is found.
// iter is passed to the jacobian solver.
func CreateCombinedIKSolver(model JacobianFrame, logger logging.Logger, nCPU, iter int) (*CombinedIK, error) {
	ik := &CombinedIK{model: model, logger: logger}
	ik.solvers = append(ik.solvers, CreateJacobianIKSolver(model, logger, iter))

	for i := 1; i < nCPU; i++ {
		nloptSolver, err := CreateNloptIKSolver(model, logger, -1, true)
		if err != nil {
			logger.Debugw("nlopt solver unavailable, continuing without it", "error", err)
			break
		}
		ik.solvers = append(ik.solvers, nloptSolver)
	}
	logger.Debugf("CreateCombinedIKSolver solvers: %d", len(ik.solvers))
	return ik, nil
}

// Solve will initiate solving for the given position in all child solvers, seeding with the specified initial joint
// positions. If unable to solve, the returned error will be non-nil.
func (ik *CombinedIK) Solve(ctx context.Context,
	solutionChan chan<- *Solution,
	goal spatialmath.Pose,
	seed []referenceframe.Input,
	rseed int,
) error {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	var activeSolvers sync.WaitGroup
	var solveErrors error
	var resultLock sync.Mutex
	found := false

	internal := make(chan *Solution)
	for _, solver := range ik.solvers {
		thisSolver := solver
		myseed := rseed
		rseed++

		activeSolvers.Add(1)
		utils.PanicCapturingGo(func() {
			defer activeSolvers.Done()
			err := thisSolver.Solve(ctxWithCancel, internal, goal, seed, myseed)

			resultLock.Lock()
			defer resultLock.Unlock()
			solveErrors = multierr.Combine(solveErrors, err)
		})
	}
	utils.PanicCapturingGo(func() {
		activeSolvers.Wait()
		close(internal)
	})

	for solution := range internal {
		if found {
			continue
		}
		select {
		case <-ctx.Done():
		case solutionChan <- solution:
		}
		if solution.Exact {
			found = true
			cancel()
		}
	}

	if found {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	resultLock.Lock()
	defer resultLock.Unlock()
	if solveErrors == nil {
		return ErrNoSolution
	}
	return multierr.Combine(solveErrors, ErrNoSolution)
}

// Frame returns the associated referenceframe.
func (ik *CombinedIK) Frame() referenceframe.Frame {
	return ik.model
}
