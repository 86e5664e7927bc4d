// Package losses provides the NTXent contrastive loss used by the MuLOOC heads.
package losses

import (
	"math"

	"github.com/Pliploop/MuLOOC/core/parallel"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultTemperature is the softmax temperature used when none is configured.
const DefaultTemperature = 0.1

// Option configures NTXent.
type Option func(*NTXent)

// WithTemperature sets the softmax temperature.
func WithTemperature(t float64) Option {
	return func(l *NTXent) {
		l.temperature = t
	}
}

// WithEpsilon sets the norm floor used when normalising embeddings.
func WithEpsilon(eps float64) Option {
	return func(l *NTXent) {
		l.eps = eps
	}
}

// NTXent is the normalized temperature-scaled cross entropy loss with
// support for several positives per anchor.
//
// For anchor i with positives P(i) = {j != i : target[i,j] = 1}:
//
//	l_i = -1/|P(i)| Σ_{p∈P(i)} [ s(i,p)/τ - log Σ_{k∈D(i)} exp(s(i,k)/τ) ]
//
// where s is cosine similarity and D(i) holds every k != i that is either a
// positive or allowed as a negative by the mask. The loss is the mean of l_i
// over anchors with at least one positive, and 0 if there are none.
type NTXent struct {
	temperature float64
	eps         float64
	threshold   int
}

// NewNTXent returns an NTXent loss.
func NewNTXent(opts ...Option) (*NTXent, error) {
	l := &NTXent{temperature: DefaultTemperature, eps: 1e-8, threshold: 128}
	for _, opt := range opts {
		opt(l)
	}
	if l.temperature <= 0 || math.IsNaN(l.temperature) || math.IsInf(l.temperature, 0) {
		return nil, errors.NewValidationError("temperature", "must be positive and finite", l.temperature)
	}
	return l, nil
}

// Temperature returns τ.
func (l *NTXent) Temperature() float64 {
	return l.temperature
}

// Similarities returns the cosine similarity of every pair of rows of emb.
func (l *NTXent) Similarities(emb *mat.Dense) (*mat.SymDense, error) {
	r, c := emb.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("NTXent.Similarities", "empty embeddings")
	}

	unit := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := emb.RawRowView(i)
		norm := math.Max(mat.Norm(mat.NewVecDense(c, row), 2), l.eps)
		dst := unit.RawRowView(i)
		for j, v := range row {
			dst[j] = v / norm
		}
	}

	sims := mat.NewSymDense(r, nil)
	sims.SymOuterK(1, unit)
	return sims, nil
}

// Loss implements model.ContrastiveLoss.
func (l *NTXent) Loss(emb *mat.Dense, target, negMask mat.Symmetric) (float64, error) {
	r, _ := emb.Dims()
	if target.SymmetricDim() != r {
		return 0, errors.NewDimensionError("NTXent.Loss", r, target.SymmetricDim(), 0)
	}
	if negMask != nil && negMask.SymmetricDim() != r {
		return 0, errors.NewDimensionError("NTXent.Loss", r, negMask.SymmetricDim(), 0)
	}

	sims, err := l.Similarities(emb)
	if err != nil {
		return 0, err
	}

	perAnchor := make([]float64, r)
	hasPositive := make([]bool, r)

	parallel.ParallelizeWithThreshold(r, l.threshold, func(start, end int) {
		for i := start; i < end; i++ {
			var row, pos []float64
			for k := 0; k < r; k++ {
				if k == i {
					continue
				}
				s := sims.At(i, k) / l.temperature
				positive := target.At(i, k) != 0
				if positive {
					pos = append(pos, s)
				}
				if positive || negMask == nil || negMask.At(i, k) != 0 {
					row = append(row, s)
				}
			}
			if len(pos) == 0 {
				continue
			}
			lse := errors.LogSumExp(row)
			var sum float64
			for _, s := range pos {
				sum += lse - s
			}
			perAnchor[i] = sum / float64(len(pos))
			hasPositive[i] = true
		}
	})

	var total float64
	anchors := 0
	for i, ok := range hasPositive {
		if ok {
			total += perAnchor[i]
			anchors++
		}
	}
	if anchors == 0 {
		return 0, nil
	}

	loss := total / float64(anchors)
	if err := errors.CheckScalar("NTXent.Loss", loss, 0); err != nil {
		return 0, err
	}
	return loss, nil
}
