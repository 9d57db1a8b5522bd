// Package ik contains tools for doing gradient-descent based inverse kinematics, allowing for the minimization of arbitrary metrics
// based on the output of calling `Transform` on the given frame.
package ik

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

const (
	// Default distance below which two distances are considered equal.
	defaultEpsilon = 0.001

	// default threshold for the squared norm metric below which a goal counts as reached.
	defaultGoalThreshold = defaultEpsilon * defaultEpsilon
)

// ErrNoSolution is returned when no solver reached the goal.
var ErrNoSolution = errors.New("kinematics could not solve for position")

// Solver defines an interface which, provided with a goal pose and a seed, will output all found
// solutions to the provided channel until cancelled or otherwise completes.
type Solver interface {
	// Solve receives a context, a channel to which solutions will be provided, the goal pose, a seed configuration
	// and a random seed. It returns ErrNoSolution if nothing was sent on the channel.
	Solve(ctx context.Context, solutionChan chan<- *Solution, goal spatialmath.Pose, seed []referenceframe.Input, rseed int) error
	// Frame returns the frame the solver was built for.
	Frame() referenceframe.Frame
}

// Solution is the struct returned from an IK solver. It contains the solution configuration, the score of the solution,
// and a flag indicating whether that configuration matches the goal.
type Solution struct {
	Configuration []referenceframe.Input
	Score         float64
	Exact         bool
}

// SolveBest runs the solver to completion and returns the exact solution closest to the seed.
func SolveBest(ctx context.Context, solver Solver, goal spatialmath.Pose, seed []referenceframe.Input, rseed int) ([]referenceframe.Input, error) {
	solutionChan := make(chan *Solution)
	var solutions []*Solution
	var collect sync.WaitGroup
	collect.Add(1)
	utils.PanicCapturingGo(func() {
		defer collect.Done()
		for s := range solutionChan {
			if s.Exact {
				solutions = append(solutions, s)
			}
		}
	})
	err := solver.Solve(ctx, solutionChan, goal, seed, rseed)
	close(solutionChan)
	collect.Wait()

	if len(solutions) == 0 {
		if err == nil || errors.Is(err, ErrNoSolution) {
			return nil, ErrNoSolution
		}
		return nil, err
	}
	jointDist := NewJointDistanceMetric(seed)
	sort.SliceStable(solutions, func(i, j int) bool {
		return jointDist(&State{Configuration: solutions[i].Configuration}) <
			jointDist(&State{Configuration: solutions[j].Configuration})
	})
	return solutions[0].Configuration, nil
}

func limitsToArrays(limits []referenceframe.Limit) ([]float64, []float64) {
	var min, max []float64
	for _, limit := range limits {
		min = append(min, limit.Min)
		max = append(max, limit.Max)
	}
	return min, max
}
