package inject

import (
	"context"

	"go.viam.com/compnetx/ml"
)

// Model is an injected ml model.
type Model struct {
	ml.Model
	InferFunc func(ctx context.Context, inputs ml.Tensors) (ml.Tensors, error)
}

// Infer calls the injected Infer or the real version.
func (m *Model) Infer(ctx context.Context, inputs ml.Tensors) (ml.Tensors, error) {
	if m.InferFunc == nil {
		return m.Model.Infer(ctx, inputs)
	}
	return m.InferFunc(ctx, inputs)
}

// DifferentiableModel is an injected differentiable ml model.
type DifferentiableModel struct {
	ml.Differentiable
	InferFunc    func(ctx context.Context, inputs ml.Tensors) (ml.Tensors, error)
	GradientFunc func(ctx context.Context, inputs ml.Tensors) (ml.Tensors, ml.Tensors, error)
}

// Infer calls the injected Infer or the real version.
func (m *DifferentiableModel) Infer(ctx context.Context, inputs ml.Tensors) (ml.Tensors, error) {
	if m.InferFunc == nil {
		return m.Differentiable.Infer(ctx, inputs)
	}
	return m.InferFunc(ctx, inputs)
}

// Gradient calls the injected Gradient or the real version.
func (m *DifferentiableModel) Gradient(ctx context.Context, inputs ml.Tensors) (ml.Tensors, ml.Tensors, error) {
	if m.GradientFunc == nil {
		return m.Differentiable.Gradient(ctx, inputs)
	}
	return m.GradientFunc(ctx, inputs)
}
