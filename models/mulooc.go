// Package models wires the shared encoder, the projection heads and the
// contrastive loss into the MuLOOC multi-head objective.
//
// Each head is bound to one contrastive matrix: head 0 to the invariant
// matrix, head k to the k-th augmentation dimension unless an explicit
// target is configured. ForwardWithLosses returns the per-head losses
// unreduced; their mean is the optimised loss.
package models

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/core/model"
	"github.com/Pliploop/MuLOOC/dataset"
	"github.com/Pliploop/MuLOOC/losses"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// HeadSelector picks the representation returned by ExtractFeatures.
// Values k >= 0 select head k.
type HeadSelector int

const (
	// Superspace selects the shared encoder output.
	Superspace HeadSelector = -1
	// Concatenated selects all head outputs joined along the feature axis.
	Concatenated HeadSelector = -2
)

func (s HeadSelector) String() string {
	switch s {
	case Superspace:
		return "superspace"
	case Concatenated:
		return "concatenated"
	default:
		return fmt.Sprintf("head_%d", int(s))
	}
}

// MuLOOC is the multi-head contrastive model.
type MuLOOC struct {
	encoder model.Encoder
	heads   []model.Head
	specs   []contrastive.HeadSpec
	loss    model.ContrastiveLoss
	builder *contrastive.Builder

	headDims    []int
	targets     []string
	temperature float64
	featHead    HeadSelector
	rule        contrastive.PairRule
	seed        uint64
	logger      log.Logger
}

// Output is the result of Forward.
type Output struct {
	// Views is the input batch, one view per row.
	Views *mat.Dense
	// Encoded is the shared encoder output.
	Encoded *mat.Dense
	// Projected holds one matrix per head, in head order.
	Projected []*mat.Dense
}

// LossOutput is the result of ForwardWithLosses. Maps are keyed by the
// matrix key each head is bound to.
type LossOutput struct {
	// Loss holds one value per head, in head order.
	Loss     []float64
	Losses   map[string]float64
	Sims     map[string]*mat.SymDense
	Matrices *contrastive.MatrixSet
	Bindings []contrastive.Binding
	Output   *Output
}

// Mean returns the average of the per-head losses.
func (o *LossOutput) Mean() float64 {
	if len(o.Loss) == 0 {
		return 0
	}
	var sum float64
	for _, l := range o.Loss {
		sum += l
	}
	return sum / float64(len(o.Loss))
}

// New builds a MuLOOC model around encoder. Without options it has a single
// 128-dimensional head trained on the invariant matrix with temperature 0.1.
func New(encoder model.Encoder, opts ...Option) (*MuLOOC, error) {
	if encoder == nil {
		return nil, errors.NewValueError("models.New", "encoder is nil")
	}
	m := &MuLOOC{
		encoder:     encoder,
		headDims:    []int{128},
		temperature: losses.DefaultTemperature,
		featHead:    Superspace,
		rule:        contrastive.MatchApplied,
		logger:      log.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetLogger()
	}
	m.logger = m.logger.With(log.ModelNameKey, "MuLOOC", log.ComponentKey, "models")

	if len(m.heads) == 0 {
		if len(m.headDims) == 0 {
			return nil, errors.NewValidationError("head_dims", "at least one head is required", m.headDims)
		}
		rng := rand.New(rand.NewPCG(m.seed, m.seed^0x9e3779b97f4a7c15))
		for k, dim := range m.headDims {
			h, err := NewMLPHead(fmt.Sprintf("head_%d", k), encoder.EmbedDim(), dim, rng)
			if err != nil {
				return nil, err
			}
			m.heads = append(m.heads, h)
		}
	}
	m.headDims = make([]int, 0, len(m.heads))
	for _, h := range m.heads {
		if h.InDim() != encoder.EmbedDim() {
			return nil, errors.NewDimensionError("models.New", encoder.EmbedDim(), h.InDim(), 1)
		}
		m.headDims = append(m.headDims, h.OutDim())
	}

	if len(m.targets) > len(m.heads) {
		return nil, errors.NewValidationError("head_targets", "more targets than heads", m.targets)
	}
	m.specs = make([]contrastive.HeadSpec, len(m.heads))
	for k, h := range m.heads {
		m.specs[k] = contrastive.HeadSpec{Name: h.Name()}
		if k < len(m.targets) {
			m.specs[k].Target = m.targets[k]
		}
	}

	if m.loss == nil {
		l, err := losses.NewNTXent(losses.WithTemperature(m.temperature))
		if err != nil {
			return nil, err
		}
		m.loss = l
	}
	m.builder = contrastive.NewBuilder(contrastive.WithPairRule(m.rule))

	if err := m.checkSelector(m.featHead); err != nil {
		return nil, err
	}
	return m, nil
}

// Heads returns the projection heads in order.
func (m *MuLOOC) Heads() []model.Head {
	return append([]model.Head(nil), m.heads...)
}

// HeadSpecs returns the head binding specs in order.
func (m *MuLOOC) HeadSpecs() []contrastive.HeadSpec {
	return append([]contrastive.HeadSpec(nil), m.specs...)
}

// Builder returns the matrix builder.
func (m *MuLOOC) Builder() *contrastive.Builder {
	return m.builder
}

// EncoderDim returns the shared encoder width.
func (m *MuLOOC) EncoderDim() int {
	return m.encoder.EmbedDim()
}

// FeatureHead returns the default feature-extraction selector.
func (m *MuLOOC) FeatureHead() HeadSelector {
	return m.featHead
}

// EmbedDim returns the width of ExtractFeatures output for the default selector.
func (m *MuLOOC) EmbedDim() int {
	d, _ := m.EmbedDimFor(m.featHead)
	return d
}

// EmbedDimFor returns the width of ExtractFeatures output for sel.
func (m *MuLOOC) EmbedDimFor(sel HeadSelector) (int, error) {
	if err := m.checkSelector(sel); err != nil {
		return 0, err
	}
	switch sel {
	case Superspace:
		return m.encoder.EmbedDim(), nil
	case Concatenated:
		total := 0
		for _, h := range m.heads {
			total += h.OutDim()
		}
		return total, nil
	default:
		return m.heads[sel].OutDim(), nil
	}
}

func (m *MuLOOC) checkSelector(sel HeadSelector) error {
	if sel == Superspace || sel == Concatenated {
		return nil
	}
	if sel < 0 || int(sel) >= len(m.heads) {
		return errors.NewValidationError("feat_extract_head",
			fmt.Sprintf("must be -1, -2 or a head index below %d", len(m.heads)), int(sel))
	}
	return nil
}

// Forward encodes every view and projects it through every head.
func (m *MuLOOC) Forward(views *mat.Dense) (*Output, error) {
	if views == nil {
		return nil, errors.NewValueError("MuLOOC.Forward", "views is nil")
	}
	encoded, err := m.encoder.Encode(views)
	if err != nil {
		return nil, errors.NewModelError("MuLOOC.Forward", "encoder failed", err)
	}
	rows, _ := views.Dims()
	if r, c := encoded.Dims(); r != rows || c != m.encoder.EmbedDim() {
		return nil, errors.NewInputShapeError("embeddings", []int{rows, m.encoder.EmbedDim()}, []int{r, c})
	}

	projected := make([]*mat.Dense, len(m.heads))
	for k, h := range m.heads {
		p, err := h.Project(encoded)
		if err != nil {
			return nil, errors.NewModelError("MuLOOC.Forward", "head "+h.Name()+" failed", err)
		}
		projected[k] = p
	}
	return &Output{Views: views, Encoded: encoded, Projected: projected}, nil
}

// ForwardWithLosses computes one loss per head against its bound matrix.
// Head bindings are resolved before any encoding or matrix work, so a head
// without a matrix fails with HeadMatrixMismatchError and no computation.
func (m *MuLOOC) ForwardWithLosses(batch *dataset.Batch) (*LossOutput, error) {
	if batch == nil {
		return nil, errors.NewValueError("MuLOOC.ForwardWithLosses", "batch is nil")
	}
	return m.Losses(batch.Audio, batch.Layout, batch.Augs)
}

// Losses is ForwardWithLosses on unbundled inputs.
func (m *MuLOOC) Losses(views *mat.Dense, l layout.Layout, augs *contrastive.LabelSet) (*LossOutput, error) {
	start := time.Now()

	bindings, err := contrastive.Bind(m.specs, contrastive.MatrixKeys(augs))
	if err != nil {
		return nil, err
	}
	if views == nil {
		return nil, errors.NewValueError("MuLOOC.Losses", "views is nil")
	}
	rows, _ := views.Dims()
	if err := l.CheckRows("MuLOOC.Losses", rows); err != nil {
		return nil, err
	}

	matrices, err := m.builder.Build(l, augs)
	if err != nil {
		return nil, err
	}
	negMask := ones(l.Size())

	out, err := m.Forward(views)
	if err != nil {
		return nil, err
	}

	res := &LossOutput{
		Loss:     make([]float64, len(bindings)),
		Losses:   make(map[string]float64, len(bindings)),
		Sims:     make(map[string]*mat.SymDense, len(bindings)),
		Matrices: matrices,
		Bindings: bindings,
		Output:   out,
	}
	for _, b := range bindings {
		target, _ := matrices.Get(b.Matrix)
		emb := out.Projected[b.Head]

		if contrastive.CountPositives(target) == 0 {
			errors.Warn(errors.NewUndefinedLossWarning(b.HeadName, "no positive pairs in matrix '"+b.Matrix+"'", 0))
		}
		value, err := m.loss.Loss(emb, target, negMask)
		if err != nil {
			return nil, errors.NewModelError("MuLOOC.Losses", "loss for "+b.Matrix+" failed", err)
		}
		sims, err := m.loss.Similarities(emb)
		if err != nil {
			return nil, errors.NewModelError("MuLOOC.Losses", "similarities for "+b.Matrix+" failed", err)
		}

		res.Loss[b.Head] = value
		res.Losses[b.Matrix] = value
		res.Sims[b.Matrix] = sims
	}

	if m.logger.Enabled(context.Background(), log.LevelDebug) {
		m.logger.Debug("computed head losses",
			log.OperationKey, log.OperationForwardLosses,
			log.BatchSizeKey, l.Items,
			log.ViewsKey, l.Views,
			log.LossKey, res.Mean(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
	return res, nil
}

// ExtractFeatures returns the representation chosen by sel without any
// matrix or loss work.
func (m *MuLOOC) ExtractFeatures(views *mat.Dense, sel HeadSelector) (*mat.Dense, error) {
	if err := m.checkSelector(sel); err != nil {
		return nil, err
	}
	if views == nil {
		return nil, errors.NewValueError("MuLOOC.ExtractFeatures", "views is nil")
	}
	encoded, err := m.encoder.Encode(views)
	if err != nil {
		return nil, errors.NewModelError("MuLOOC.ExtractFeatures", "encoder failed", err)
	}
	if sel == Superspace {
		return encoded, nil
	}
	if sel >= 0 {
		return m.heads[sel].Project(encoded)
	}

	rows, _ := encoded.Dims()
	width, _ := m.EmbedDimFor(Concatenated)
	out := mat.NewDense(rows, width, nil)
	col := 0
	for _, h := range m.heads {
		p, err := h.Project(encoded)
		if err != nil {
			return nil, errors.NewModelError("MuLOOC.ExtractFeatures", "head "+h.Name()+" failed", err)
		}
		out.Slice(0, rows, col, col+h.OutDim()).(*mat.Dense).Copy(p)
		col += h.OutDim()
	}
	return out, nil
}

// GetParams implements model.ParameterGetter.
func (m *MuLOOC) GetParams() map[string]interface{} {
	targets := make([]string, len(m.specs))
	for k, s := range m.specs {
		targets[k] = s.Target
	}
	return map[string]interface{}{
		"head_dims":         append([]int(nil), m.headDims...),
		"head_targets":      targets,
		"temperature":       m.temperature,
		"feat_extract_head": int(m.featHead),
		"pair_rule":         m.rule.String(),
		"encoder_dim":       m.encoder.EmbedDim(),
	}
}

func ones(n int) *mat.SymDense {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = 1
	}
	return mat.NewSymDense(n, data)
}
