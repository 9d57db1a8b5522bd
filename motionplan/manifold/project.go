package manifold

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultProjectionTolerance  = 1e-6
	defaultProjectionIterations = 50
	singularValueCutoff         = 1e-10
)

// ErrProjectionFailed is returned when Project does not reach the manifold within its iteration budget.
var ErrProjectionFailed = errors.New("projection did not converge onto the manifold")

// Project runs the Newton iteration x <- x - J^+ f(x) from x until the constraint distance is below tol or maxIter
// steps have been taken, using the minimum norm least squares step. Non-positive tol or maxIter use defaults.
// The returned configuration is the last iterate, also on failure.
func Project(ctx context.Context, c Constraint, x []float64, tol float64, maxIter int) ([]float64, error) {
	if tol <= 0 {
		tol = defaultProjectionTolerance
	}
	if maxIter <= 0 {
		maxIter = defaultProjectionIterations
	}
	if len(x) != c.AmbientDimension() {
		return nil, NewAmbientDimensionError(len(x), c.AmbientDimension())
	}
	cur := append([]float64{}, x...)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		f, err := c.Value(cur)
		if err != nil {
			return cur, err
		}
		if floats.Norm(f, 2) < tol {
			return cur, nil
		}
		if i == maxIter {
			return cur, errors.Wrapf(ErrProjectionFailed, "distance %.3g after %d iterations", floats.Norm(f, 2), maxIter)
		}
		jac, err := c.Jacobian(cur)
		if err != nil {
			return cur, err
		}
		step, err := pseudoInverseSolve(jac, f)
		if err != nil {
			return cur, err
		}
		floats.Sub(cur, step)
	}
}

// pseudoInverseSolve returns J^+ f via a thin SVD truncated at singularValueCutoff.
func pseudoInverseSolve(jac *mat.Dense, f []float64) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(jac, mat.SVDThin); !ok {
		return nil, errors.New("jacobian SVD factorization failed")
	}
	rank := svd.Rank(singularValueCutoff)
	if rank == 0 {
		return nil, errors.Wrap(ErrProjectionFailed, "jacobian is zero")
	}
	var dst mat.Dense
	svd.SolveTo(&dst, mat.NewDense(len(f), 1, f), rank)
	_, c := jac.Dims()
	out := make([]float64, c)
	for i := range out {
		out[i] = dst.At(i, 0)
	}
	return out, nil
}
