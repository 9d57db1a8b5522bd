//go:build windows || no_cgo

package ik

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/referenceframe"
	"go.viam.com/compnetx/spatialmath"
)

// CreateNloptIKSolver is not supported on no_cgo builds.
func CreateNloptIKSolver(mdl referenceframe.Frame, logger logging.Logger, restarts int, exact bool) (*NloptIK, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// NloptIK mimics the type in the cgo compiled code.
type NloptIK struct{}

// Solve refuses to solve problems without cgo.
func (ik *NloptIK) Solve(ctx context.Context,
	solutionChan chan<- *Solution,
	goal spatialmath.Pose,
	seed []referenceframe.Input,
	rseed int,
) error {
	return errors.New("cannot solve without cgo")
}

// Frame returns nil. The solver isn't real.
func (ik *NloptIK) Frame() referenceframe.Frame {
	return nil
}
