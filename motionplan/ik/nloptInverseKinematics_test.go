//go:build !windows && !no_cgo

package ik

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/compnetx/logging"
	frame "go.viam.com/compnetx/referenceframe"
	spatial "go.viam.com/compnetx/spatialmath"
)

func TestNloptIK(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := threeJointArm(t)
	ik, err := CreateNloptIKSolver(m, logger, -1, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ik.Frame(), test.ShouldEqual, m)

	goal, err := m.Transform(frame.FloatsToInputs([]float64{0.3, -0.5, 0.8}))
	test.That(t, err, test.ShouldBeNil)
	solution, err := SolveBest(context.Background(), ik, goal, frame.FloatsToInputs([]float64{0.2, -0.4, 0.6}), 1)
	test.That(t, err, test.ShouldBeNil)
	reached, err := m.Transform(solution)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatial.PoseAlmostEqualEps(reached, goal, 1e-2), test.ShouldBeTrue)

	_, err = SolveBest(context.Background(), ik, goal, frame.FloatsToInputs([]float64{0}), 1)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNoSolution), test.ShouldBeFalse)
}

func TestNloptIKUnreachable(t *testing.T) {
	m := threeJointArm(t)
	ik, err := CreateNloptIKSolver(m, logging.NewTestLogger(t), 3, true)
	test.That(t, err, test.ShouldBeNil)
	_, err = SolveBest(context.Background(), ik, spatial.NewPoseFromPoint(r3.Vector{X: 10}), frame.FloatsToInputs([]float64{0, 0, 0}), 1)
	test.That(t, errors.Is(err, ErrNoSolution), test.ShouldBeTrue)
}
