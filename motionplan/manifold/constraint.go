// Package manifold provides constraint functions whose zero set is a manifold of robot configurations, along with
// their jacobians, for use by constrained state space planners.
package manifold

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Constraint is a vector valued function of an ambient configuration that is zero on its manifold.
type Constraint interface {
	// Dimension is the length of Value.
	Dimension() int
	// AmbientDimension is the length of the configurations the constraint accepts.
	AmbientDimension() int
	Value(x []float64) ([]float64, error)
	// Jacobian returns the Dimension x AmbientDimension derivative of Value at x.
	Jacobian(x []float64) (*mat.Dense, error)
	// Distance is a non-negative measure of how far x is from the manifold.
	Distance(x []float64) (float64, error)
}

// NewAmbientDimensionError is returned when a configuration has the wrong length.
func NewAmbientDimensionError(actual, expected int) error {
	return errors.Errorf("configuration has %d values, constraint expects %d", actual, expected)
}

// SphereConstraint constrains a configuration to the unit sphere.
type SphereConstraint struct {
	dim   int
	calls atomic.Int64
}

// NewSphereConstraint returns a unit sphere constraint in the given ambient dimension.
func NewSphereConstraint(dim int) (*SphereConstraint, error) {
	if dim < 1 {
		return nil, errors.Errorf("sphere needs a positive ambient dimension, got %d", dim)
	}
	return &SphereConstraint{dim: dim}, nil
}

// Dimension returns 1.
func (s *SphereConstraint) Dimension() int { return 1 }

// AmbientDimension returns the dimension of the space the sphere lives in.
func (s *SphereConstraint) AmbientDimension() int { return s.dim }

// Value returns ||x|| - 1.
func (s *SphereConstraint) Value(x []float64) ([]float64, error) {
	if len(x) != s.dim {
		return nil, NewAmbientDimensionError(len(x), s.dim)
	}
	s.calls.Inc()
	return []float64{floats.Norm(x, 2) - 1}, nil
}

// Jacobian returns x^T / ||x||.
func (s *SphereConstraint) Jacobian(x []float64) (*mat.Dense, error) {
	if len(x) != s.dim {
		return nil, NewAmbientDimensionError(len(x), s.dim)
	}
	s.calls.Inc()
	norm := floats.Norm(x, 2)
	if norm == 0 {
		return nil, errors.New("sphere jacobian is undefined at the origin")
	}
	row := make([]float64, len(x))
	floats.ScaleTo(row, 1/norm, x)
	return mat.NewDense(1, len(x), row), nil
}

// Distance returns |(||x|| - 1)|.
func (s *SphereConstraint) Distance(x []float64) (float64, error) {
	v, err := s.Value(x)
	if err != nil {
		return 0, err
	}
	return math.Abs(v[0]), nil
}

// Calls returns how many times the constraint has been evaluated.
func (s *SphereConstraint) Calls() int64 {
	return s.calls.Load()
}
