package models

import (
	"math"
	"math/rand/v2"

	"github.com/Pliploop/MuLOOC/core/model"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MLPHead is a two-layer projection head without biases:
// Linear(in, in) -> ReLU -> Linear(in, out).
type MLPHead struct {
	name   string
	hidden *mat.Dense // in × in
	output *mat.Dense // in × out
}

// NewMLPHead creates a head with Xavier-uniform weights drawn from rng.
func NewMLPHead(name string, in, out int, rng *rand.Rand) (*MLPHead, error) {
	if in <= 0 {
		return nil, errors.NewValidationError("in_dim", "must be positive", in)
	}
	if out <= 0 {
		return nil, errors.NewValidationError("head_dims", "must be positive", out)
	}
	return &MLPHead{
		name:   name,
		hidden: xavier(in, in, rng),
		output: xavier(in, out, rng),
	}, nil
}

func xavier(r, c int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(r+c))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(r, c, data)
}

// Name implements model.Head.
func (h *MLPHead) Name() string { return h.name }

// InDim implements model.Head.
func (h *MLPHead) InDim() int {
	r, _ := h.hidden.Dims()
	return r
}

// OutDim implements model.Head.
func (h *MLPHead) OutDim() int {
	_, c := h.output.Dims()
	return c
}

// Project implements model.Head.
func (h *MLPHead) Project(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != h.InDim() {
		return nil, errors.NewDimensionError("MLPHead.Project", h.InDim(), cols, 1)
	}

	var hid mat.Dense
	hid.Mul(x, h.hidden)
	hid.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, &hid)

	out := mat.NewDense(rows, h.OutDim(), nil)
	out.Mul(&hid, h.output)
	return out, nil
}

// Weights exports the head parameters.
func (h *MLPHead) Weights() model.HeadWeights {
	return model.HeadWeights{
		Name:    h.name,
		Version: model.WeightsVersion,
		InDim:   h.InDim(),
		OutDim:  h.OutDim(),
		Hidden:  append([]float64(nil), h.hidden.RawMatrix().Data...),
		Output:  append([]float64(nil), h.output.RawMatrix().Data...),
	}
}

// SetWeights replaces the head parameters. Dimensions must match.
func (h *MLPHead) SetWeights(hw model.HeadWeights) error {
	if err := hw.Validate(); err != nil {
		return errors.NewModelError("MLPHead.SetWeights", "invalid weights", err)
	}
	if hw.InDim != h.InDim() {
		return errors.NewDimensionError("MLPHead.SetWeights", h.InDim(), hw.InDim, 0)
	}
	if hw.OutDim != h.OutDim() {
		return errors.NewDimensionError("MLPHead.SetWeights", h.OutDim(), hw.OutDim, 1)
	}
	h.hidden = mat.NewDense(hw.InDim, hw.InDim, append([]float64(nil), hw.Hidden...))
	h.output = mat.NewDense(hw.InDim, hw.OutDim, append([]float64(nil), hw.Output...))
	return nil
}
