// Package contrastive builds the equivalence matrices that tell the loss
// which pairs of flattened views are positives.
//
// For a batch laid out as B items with N views each, Build returns one
// invariant matrix (same source item) followed by one variant matrix per
// augmentation dimension. A variant matrix never marks a pair positive unless
// the invariant matrix does.
package contrastive

import (
	"fmt"
	"strings"

	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/core/parallel"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PairRule decides which label states make a same-item pair positive in a
// variant matrix.
type PairRule int

const (
	// MatchApplied marks a pair positive when both views carry the applied
	// state (binary) or share an active class (multi-hot).
	MatchApplied PairRule = iota
	// MatchUnapplied marks a pair positive when neither view was augmented
	// (binary) or some class is inactive in both views (multi-hot).
	MatchUnapplied
)

func (r PairRule) String() string {
	switch r {
	case MatchApplied:
		return "applied"
	case MatchUnapplied:
		return "unapplied"
	default:
		return fmt.Sprintf("PairRule(%d)", int(r))
	}
}

// ParsePairRule parses "applied" or "unapplied".
func ParsePairRule(s string) (PairRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "applied", "":
		return MatchApplied, nil
	case "unapplied":
		return MatchUnapplied, nil
	default:
		return MatchApplied, errors.NewValidationError("pair_rule", "must be 'applied' or 'unapplied'", s)
	}
}

// DefaultParallelThreshold is the matrix size above which rows are filled concurrently.
const DefaultParallelThreshold = 256

// Option configures a Builder.
type Option func(*Builder)

// WithPairRule sets the rule used for variant matrices.
func WithPairRule(r PairRule) Option {
	return func(b *Builder) {
		b.rule = r
	}
}

// WithParallelThreshold sets the number of rows above which rows are filled in parallel.
func WithParallelThreshold(n int) Option {
	return func(b *Builder) {
		b.threshold = n
	}
}

// Builder constructs MatrixSets. It holds configuration only and is safe
// for concurrent use.
type Builder struct {
	rule      PairRule
	threshold int
}

// NewBuilder returns a Builder using MatchApplied unless configured otherwise.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{rule: MatchApplied, threshold: DefaultParallelThreshold}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rule returns the configured pair rule.
func (b *Builder) Rule() PairRule {
	return b.rule
}

// Build returns the invariant matrix followed by one variant matrix per
// dimension of labels, in label order. labels may be nil.
func (b *Builder) Build(l layout.Layout, labels *LabelSet) (*MatrixSet, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	for _, d := range labels.Dims() {
		if err := d.validate(l); err != nil {
			return nil, err
		}
	}

	set := &MatrixSet{layout: l, mats: make(map[string]*mat.SymDense, labels.Len()+1)}
	inv := b.Invariant(l)
	set.add(InvariantKey, inv)

	for _, d := range labels.Dims() {
		set.add(d.Name, b.variant(l, d, inv))
	}
	return set, nil
}

// Invariant returns M0 with M0[i,j] = 1 iff rows i and j come from the same
// item. The diagonal is 1.
func (b *Builder) Invariant(l layout.Layout) *mat.SymDense {
	n := l.Size()
	m := mat.NewSymDense(n, nil)
	b.fill(n, func(i int) {
		// same-item rows are contiguous, so only the rest of the block is visited
		end := (l.Item(i) + 1) * l.Views
		for j := i; j < end; j++ {
			m.SetSym(i, j, 1)
		}
	})
	return m
}

// Variant returns the matrix for one dimension, already intersected with
// the invariant matrix.
func (b *Builder) Variant(l layout.Layout, d Dimension) (*mat.SymDense, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if err := d.validate(l); err != nil {
		return nil, err
	}
	return b.variant(l, d, b.Invariant(l)), nil
}

func (b *Builder) variant(l layout.Layout, d Dimension, inv *mat.SymDense) *mat.SymDense {
	n := l.Size()
	m := mat.NewSymDense(n, nil)
	b.fill(n, func(i int) {
		for j := i; j < n; j++ {
			if inv.At(i, j) == 0 {
				continue
			}
			if b.raw(d, i, j) {
				m.SetSym(i, j, 1)
			}
		}
	})
	return m
}

// raw is the label-equality rule before intersection with the invariant matrix.
func (b *Builder) raw(d Dimension, i, j int) bool {
	li, lj := d.Labels[i], d.Labels[j]
	if d.Form == Binary {
		// self-pairs never count in the scalar form
		if i == j {
			return false
		}
		if b.rule == MatchUnapplied {
			return !li.IsApplied() && !lj.IsApplied()
		}
		return li.IsApplied() && lj.IsApplied()
	}
	if b.rule == MatchUnapplied {
		for c := 0; c < d.Classes; c++ {
			if !li.HasClass(c) && !lj.HasClass(c) {
				return true
			}
		}
		return false
	}
	return li.SharesClass(lj)
}

// fill runs row over every row index; each call writes only entries (i, j>=i).
func (b *Builder) fill(n int, row func(i int)) {
	parallel.ParallelizeWithThreshold(n, b.threshold, func(start, end int) {
		for i := start; i < end; i++ {
			row(i)
		}
	})
}
