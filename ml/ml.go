// Package ml provides the tensor plumbing used to drive learned models from the planners.
package ml

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"
)

// Tensors are a named set of tensors passed into and out of a model.
type Tensors map[string]*tensor.Dense

// Model runs inference over a set of named input tensors.
type Model interface {
	Infer(ctx context.Context, inputs Tensors) (Tensors, error)
}

// Differentiable is a Model that can also report the gradient of its first output with respect to its inputs.
// The returned gradient tensors are keyed by input name and have the same shape as the inputs.
type Differentiable interface {
	Model
	Gradient(ctx context.Context, inputs Tensors) (outputs, gradients Tensors, err error)
}

// NewRowTensor returns a 1xN float64 tensor holding a copy of data.
func NewRowTensor(data []float64) *tensor.Dense {
	backing := make([]float64, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithShape(1, len(backing)), tensor.WithBacking(backing))
}

// Concat joins the slices into one freshly allocated slice.
func Concat(parts ...[]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// TensorFloats returns the flattened data of the named tensor as float64s. An empty name selects the only
// tensor in the set.
func TensorFloats(t Tensors, name string) ([]float64, error) {
	if name == "" {
		if len(t) != 1 {
			return nil, errors.Errorf("expected exactly one tensor, got [%s]", strings.Join(tensorNames(t), ", "))
		}
		for n := range t {
			name = n
		}
	}
	data, ok := t[name]
	if !ok || data == nil {
		return nil, errors.Errorf("no tensor named %q among tensors [%s]", name, strings.Join(tensorNames(t), ", "))
	}
	return convertToFloat64Slice(data.Data())
}

// number interface for converting between numbers.
type number interface {
	constraints.Integer | constraints.Float
}

// convertNumberSlice converts any number slice into another number slice.
func convertNumberSlice[T1, T2 number](t1 []T1) []T2 {
	t2 := make([]T2, len(t1))
	for i := range t1 {
		t2[i] = T2(t1[i])
	}
	return t2
}

func convertToFloat64Slice(slice interface{}) ([]float64, error) {
	switch v := slice.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case float64:
		return []float64{v}, nil
	case []float32:
		return convertNumberSlice[float32, float64](v), nil
	case float32:
		return []float64{float64(v)}, nil
	case []int:
		return convertNumberSlice[int, float64](v), nil
	case []int8:
		return convertNumberSlice[int8, float64](v), nil
	case []int16:
		return convertNumberSlice[int16, float64](v), nil
	case []int32:
		return convertNumberSlice[int32, float64](v), nil
	case []int64:
		return convertNumberSlice[int64, float64](v), nil
	case []uint8:
		return convertNumberSlice[uint8, float64](v), nil
	case []uint16:
		return convertNumberSlice[uint16, float64](v), nil
	case []uint32:
		return convertNumberSlice[uint32, float64](v), nil
	case []uint64:
		return convertNumberSlice[uint64, float64](v), nil
	default:
		return nil, errors.Errorf("dont know how to convert slice of %T into a []float64", slice)
	}
}

// tensorNames returns all the names of the tensors, sorted.
func tensorNames(t Tensors) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
