package augment

import (
	"math/rand/v2"
	"sync"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Pipeline runs an unlabelled base stage followed by a labelled variant
// stage over every view of one item. It is safe for concurrent use.
type Pipeline struct {
	base       []Transform
	vary       []Transform
	keepAnchor bool

	mu     sync.Mutex
	rng    *rand.Rand
	logger log.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBase adds unlabelled transforms run before the labelled stage.
func WithBase(ts ...Transform) PipelineOption {
	return func(p *Pipeline) {
		p.base = append(p.base, ts...)
	}
}

// WithKeepAnchor leaves view 0 untouched when an item has several views.
func WithKeepAnchor(keep bool) PipelineOption {
	return func(p *Pipeline) {
		p.keepAnchor = keep
	}
}

// WithRand sets the random source.
func WithRand(rng *rand.Rand) PipelineOption {
	return func(p *Pipeline) {
		p.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline builds a pipeline whose labelled stage is vary. Dimension
// names must be unique.
func NewPipeline(vary []Transform, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{vary: vary, logger: log.GetLogger()}
	for _, opt := range opts {
		opt(p)
	}
	seen := map[string]bool{}
	for _, t := range p.vary {
		name := t.Spec().Name
		if name == contrastive.InvariantKey || name == contrastive.NoneKey || seen[name] {
			return nil, errors.NewValidationError("augmentations", "duplicate or reserved dimension name", name)
		}
		seen[name] = true
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p.logger = p.logger.With(log.ComponentKey, "augment")
	return p, nil
}

// Specs returns the label dimensions in stage order.
func (p *Pipeline) Specs() []contrastive.DimSpec {
	specs := make([]contrastive.DimSpec, len(p.vary))
	for i, t := range p.vary {
		specs[i] = t.Spec()
	}
	return specs
}

// KeepAnchor reports whether view 0 bypasses augmentation.
func (p *Pipeline) KeepAnchor() bool { return p.keepAnchor }

// Apply transforms a copy of the N×T views and returns it with one label
// map per view. Untouched views carry None in every dimension.
func (p *Pipeline) Apply(views *mat.Dense) (*mat.Dense, []contrastive.ViewLabels, error) {
	if views == nil {
		return nil, nil, errors.NewValueError("Pipeline.Apply", "views are nil")
	}
	n, _ := views.Dims()
	out := mat.DenseCopyOf(views)
	labels := make([]contrastive.ViewLabels, n)

	p.mu.Lock()
	defer p.mu.Unlock()
	for v := 0; v < n; v++ {
		labels[v] = contrastive.ViewLabels{}
		if p.keepAnchor && n > 1 && v == 0 {
			continue
		}
		row := out.RawRowView(v)
		for _, t := range p.base {
			t.Apply(row, p.rng)
		}
		for _, t := range p.vary {
			lab := t.Apply(row, p.rng)
			labels[v][t.Spec().Name] = lab
			if lab.IsApplied() {
				p.logger.Debug("augmented view",
					log.AugmentationKey, t.Spec().Name,
					log.IndexKey, v,
				)
			}
		}
	}
	return out, labels, nil
}
