package ml

import (
	"context"
	"encoding/json"
	"math"
	"os"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Activation names accepted by Layer.
const (
	ActivationLinear  = ""
	ActivationReLU    = "relu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
)

// Layer is one fully connected layer computing activation(Weights * in + Bias). Weights has one row per output.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation,omitempty"`
}

// MLPConfig is the on disk form of an MLP.
type MLPConfig struct {
	Layers []Layer `json:"layers"`
}

type denseLayer struct {
	weights    *mat.Dense
	bias       *mat.VecDense
	activation string
}

// MLP is a small fully connected network reading one input tensor and producing one output tensor. Its gradient
// is that of its first output with respect to the input.
type MLP struct {
	layers     []denseLayer
	inputName  string
	outputName string
	inputWidth int
}

// NewMLP returns a network of the layers applied in order.
func NewMLP(inputName, outputName string, layers ...Layer) (*MLP, error) {
	if len(layers) == 0 {
		return nil, errors.New("network needs at least one layer")
	}
	m := &MLP{inputName: inputName, outputName: outputName}
	width := -1
	for i, l := range layers {
		if len(l.Weights) == 0 || len(l.Weights[0]) == 0 {
			return nil, errors.Errorf("layer %d has no weights", i)
		}
		rows, cols := len(l.Weights), len(l.Weights[0])
		if width >= 0 && cols != width {
			return nil, errors.Errorf("layer %d expects %d inputs but layer %d produces %d", i, cols, i-1, width)
		}
		if len(l.Bias) != rows {
			return nil, errors.Errorf("layer %d has %d outputs but %d biases", i, rows, len(l.Bias))
		}
		switch l.Activation {
		case ActivationLinear, ActivationReLU, ActivationTanh, ActivationSigmoid:
		default:
			return nil, errors.Errorf("layer %d has unknown activation %q", i, l.Activation)
		}
		w := mat.NewDense(rows, cols, nil)
		for r, row := range l.Weights {
			if len(row) != cols {
				return nil, errors.Errorf("layer %d row %d has %d weights, expected %d", i, r, len(row), cols)
			}
			w.SetRow(r, row)
		}
		if i == 0 {
			m.inputWidth = cols
		}
		width = rows
		m.layers = append(m.layers, denseLayer{
			weights:    w,
			bias:       mat.NewVecDense(rows, append([]float64{}, l.Bias...)),
			activation: l.Activation,
		})
	}
	return m, nil
}

// LoadMLP reads an MLPConfig from a JSON file.
func LoadMLP(path, inputName, outputName string) (*MLP, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read network %q", path)
	}
	var cfg MLPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse network %q", path)
	}
	return NewMLP(inputName, outputName, cfg.Layers...)
}

// InputWidth returns the number of values the network reads.
func (m *MLP) InputWidth() int { return m.inputWidth }

// Infer runs the network forward.
func (m *MLP) Infer(ctx context.Context, inputs Tensors) (Tensors, error) {
	x, err := m.input(ctx, inputs)
	if err != nil {
		return nil, err
	}
	_, outs, err := m.forward(x)
	if err != nil {
		return nil, err
	}
	return Tensors{m.outputName: NewRowTensor(outs[len(outs)-1].RawVector().Data)}, nil
}

// Gradient runs the network forward and back propagates its first output to the input.
func (m *MLP) Gradient(ctx context.Context, inputs Tensors) (Tensors, Tensors, error) {
	x, err := m.input(ctx, inputs)
	if err != nil {
		return nil, nil, err
	}
	pre, outs, err := m.forward(x)
	if err != nil {
		return nil, nil, err
	}

	last := outs[len(outs)-1]
	g := mat.NewVecDense(last.Len(), nil)
	g.SetVec(0, 1)
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		for k := 0; k < g.Len(); k++ {
			g.SetVec(k, g.AtVec(k)*derivative(l.activation, pre[i].AtVec(k), outs[i+1].AtVec(k)))
		}
		_, cols := l.weights.Dims()
		next := mat.NewVecDense(cols, nil)
		next.MulVec(l.weights.T(), g)
		g = next
	}
	return Tensors{m.outputName: NewRowTensor(last.RawVector().Data)},
		Tensors{m.inputName: NewRowTensor(g.RawVector().Data)},
		nil
}

func (m *MLP) input(ctx context.Context, inputs Tensors) (*mat.VecDense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := TensorFloats(inputs, m.inputName)
	if err != nil {
		return nil, err
	}
	if len(data) != m.inputWidth {
		return nil, errors.Errorf("network expects %d inputs, got %d", m.inputWidth, len(data))
	}
	return mat.NewVecDense(len(data), data), nil
}

// forward returns every layer's pre-activation and the activations, starting with the input.
func (m *MLP) forward(x *mat.VecDense) ([]*mat.VecDense, []*mat.VecDense, error) {
	pre := make([]*mat.VecDense, 0, len(m.layers))
	outs := append(make([]*mat.VecDense, 0, len(m.layers)+1), x)
	for _, l := range m.layers {
		rows, _ := l.weights.Dims()
		z := mat.NewVecDense(rows, nil)
		z.MulVec(l.weights, outs[len(outs)-1])
		z.AddVec(z, l.bias)
		a, err := activate(l.activation, z)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, z)
		outs = append(outs, a)
	}
	return pre, outs, nil
}

func activate(activation string, z *mat.VecDense) (*mat.VecDense, error) {
	data := z.RawVector().Data
	out := make([]float64, len(data))
	switch activation {
	case ActivationSigmoid:
		sig, err := stats.Sigmoid(data)
		if err != nil {
			return nil, err
		}
		copy(out, sig)
	case ActivationReLU:
		for k, v := range data {
			out[k] = math.Max(0, v)
		}
	case ActivationTanh:
		for k, v := range data {
			out[k] = math.Tanh(v)
		}
	default:
		copy(out, data)
	}
	return mat.NewVecDense(len(out), out), nil
}

// derivative of the activation at pre-activation z with output a.
func derivative(activation string, z, a float64) float64 {
	switch activation {
	case ActivationReLU:
		if z > 0 {
			return 1
		}
		return 0
	case ActivationTanh:
		return 1 - a*a
	case ActivationSigmoid:
		return a * (1 - a)
	default:
		return 1
	}
}
