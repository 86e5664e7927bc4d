// Package dataset turns a manifest of recordings into collated contrastive
// batches.
package dataset

import (
	"context"
	"io"
	"math/rand/v2"

	"github.com/Pliploop/MuLOOC/augment"
	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/core/parallel"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/Pliploop/MuLOOC/sampling"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxRetries bounds how many following items Get tries after a
// recording fails to decode.
const DefaultMaxRetries = 10

// Example is one loaded item.
type Example struct {
	Index int
	Path  string

	// Audio holds one mono view per row.
	Audio *mat.Dense

	// Augs holds the labels of each view. It is nil when the dataset reports
	// no augmentation dimension.
	Augs []contrastive.ViewLabels

	// Labels is the manifest label vector when label return is enabled.
	Labels []float64

	Strategy sampling.Kind
}

// AudioDataset loads recordings through a Sampler and optionally augments
// their views.
type AudioDataset struct {
	items      Manifest
	sampler    *sampling.Sampler
	pipeline   *augment.Pipeline
	train      bool
	returnFull bool
	labels     bool
	noneDim    bool
	maxRetries int
	logger     log.Logger
}

// Option configures an AudioDataset.
type Option func(*AudioDataset)

// WithAugmentations sets the augmentation pipeline. It only runs in
// training mode.
func WithAugmentations(p *augment.Pipeline) Option {
	return func(d *AudioDataset) {
		d.pipeline = p
	}
}

// WithTrain toggles training mode.
func WithTrain(train bool) Option {
	return func(d *AudioDataset) {
		d.train = train
	}
}

// WithReturnFull makes Get return every window of the recording instead of
// sampled views.
func WithReturnFull(full bool) Option {
	return func(d *AudioDataset) {
		d.returnFull = full
	}
}

// WithReturnLabels attaches the manifest label vectors to examples.
func WithReturnLabels(labels bool) Option {
	return func(d *AudioDataset) {
		d.labels = labels
	}
}

// WithNoneDimension reports an all-None "none" dimension when no
// augmentation runs, which yields one extra variant matrix with no positives.
func WithNoneDimension(enabled bool) Option {
	return func(d *AudioDataset) {
		d.noneDim = enabled
	}
}

// WithMaxRetries sets the number of following items tried after a decode
// failure.
func WithMaxRetries(n int) Option {
	return func(d *AudioDataset) {
		d.maxRetries = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(d *AudioDataset) {
		d.logger = logger
	}
}

// New builds a dataset over items.
func New(items Manifest, sampler *sampling.Sampler, opts ...Option) (*AudioDataset, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset has no items")
	}
	if sampler == nil {
		return nil, errors.NewValidationError("sampler", "must not be nil", nil)
	}
	d := &AudioDataset{
		items:      items,
		sampler:    sampler,
		train:      true,
		maxRetries: DefaultMaxRetries,
		logger:     log.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxRetries < 0 {
		return nil, errors.NewValidationError("max_retries", "must not be negative", d.maxRetries)
	}
	d.logger = d.logger.With(log.ComponentKey, "dataset")
	return d, nil
}

// Len returns the number of items.
func (d *AudioDataset) Len() int { return len(d.items) }

// Views returns the number of views per sampled item.
func (d *AudioDataset) Views() int { return d.sampler.Views() }

func (d *AudioDataset) augmenting() bool {
	return d.pipeline != nil && d.train && !d.returnFull
}

// Specs returns the augmentation dimensions examples are labelled with.
func (d *AudioDataset) Specs() []contrastive.DimSpec {
	if d.augmenting() {
		return d.pipeline.Specs()
	}
	if d.noneDim && !d.returnFull {
		return []contrastive.DimSpec{{Name: contrastive.NoneKey, Form: contrastive.Binary}}
	}
	return nil
}

// Get loads item idx. A recording that fails to decode is skipped in favour
// of the next one, wrapping around, for at most MaxRetries further items.
func (d *AudioDataset) Get(idx int) (*Example, error) {
	if idx < 0 || idx >= d.Len() {
		return nil, errors.NewValueError("AudioDataset.Get", "index out of range")
	}
	var last error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		i := (idx + attempt) % d.Len()
		ex, err := d.load(i)
		if err == nil {
			return ex, nil
		}
		if !errors.IsRecoverable(err) {
			return nil, err
		}
		last = err
		d.logger.Warn("skipping unreadable item",
			log.IndexKey, i,
			log.PathKey, d.items[i].Path,
			log.RetryKey, attempt,
			log.ErrAttrKey, err,
		)
	}
	return nil, errors.NewDatasetExhaustedError(idx, d.maxRetries+1, last)
}

func (d *AudioDataset) load(i int) (*Example, error) {
	it := d.items[i]
	ex := &Example{Index: i, Path: it.Path}
	if d.labels {
		ex.Labels = append([]float64(nil), it.Labels...)
	}

	if d.returnFull {
		views, err := d.sampler.Full(it.Path)
		if err != nil {
			return nil, err
		}
		ex.Audio = views
		return ex, nil
	}

	views, kind, err := d.sampler.Sample(it.Path)
	if err != nil {
		return nil, err
	}
	ex.Strategy = kind

	switch {
	case d.augmenting():
		views, ex.Augs, err = d.pipeline.Apply(views)
		if err != nil {
			return nil, err
		}
	case d.noneDim:
		n, _ := views.Dims()
		ex.Augs = make([]contrastive.ViewLabels, n)
		for v := range ex.Augs {
			ex.Augs[v] = contrastive.ViewLabels{contrastive.NoneKey: contrastive.None()}
		}
	}
	ex.Audio = views
	return ex, nil
}

// Collate stacks examples into a Batch. Every example must have the same
// number of views.
func (d *AudioDataset) Collate(examples []*Example) (*Batch, error) {
	if len(examples) == 0 {
		return nil, errors.ErrEmptyData
	}
	views, cols := examples[0].Audio.Dims()
	l, err := layout.New(len(examples), views)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		Layout: l,
		Audio:  mat.NewDense(l.Size(), cols, nil),
		Paths:  make([]string, len(examples)),
	}
	var flat []contrastive.ViewLabels
	for item, ex := range examples {
		r, c := ex.Audio.Dims()
		if r != views {
			return nil, errors.NewDimensionError("AudioDataset.Collate", views, r, 0)
		}
		if c != cols {
			return nil, errors.NewDimensionError("AudioDataset.Collate", cols, c, 1)
		}
		b.Audio.Slice(l.Index(item, 0), l.Index(item, 0)+views, 0, cols).(*mat.Dense).Copy(ex.Audio)
		b.Paths[item] = ex.Path
		if ex.Augs != nil {
			flat = append(flat, ex.Augs...)
		} else {
			flat = append(flat, make([]contrastive.ViewLabels, views)...)
		}
	}

	if specs := d.Specs(); len(specs) > 0 {
		b.Augs, err = contrastive.Collect(l, specs, flat)
		if err != nil {
			return nil, err
		}
	}

	if d.labels {
		width := len(examples[0].Labels)
		if width > 0 {
			b.Labels = mat.NewDense(len(examples), width, nil)
			for item, ex := range examples {
				if len(ex.Labels) != width {
					return nil, errors.NewDimensionError("AudioDataset.Collate.Labels", width, len(ex.Labels), 1)
				}
				b.Labels.SetRow(item, ex.Labels)
			}
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Batch loads the given indices concurrently and collates them.
func (d *AudioDataset) Batch(ctx context.Context, indices []int) (*Batch, error) {
	examples := make([]*Example, len(indices))
	err := parallel.ForEach(ctx, len(indices), func(_ context.Context, k int) error {
		ex, err := d.Get(indices[k])
		if err != nil {
			return err
		}
		examples[k] = ex
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.Collate(examples)
}

// Iterator walks a dataset in batches.
type Iterator struct {
	ds        *AudioDataset
	order     []int
	batchSize int
	dropLast  bool
	pos       int
}

// IteratorOption configures an Iterator.
type IteratorOption func(*Iterator)

// WithShuffle visits items in an order drawn from rng.
func WithShuffle(rng *rand.Rand) IteratorOption {
	return func(it *Iterator) {
		rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
}

// WithDropLast skips a final batch smaller than the batch size.
func WithDropLast(drop bool) IteratorOption {
	return func(it *Iterator) {
		it.dropLast = drop
	}
}

// Iterate returns an Iterator over batches of batchSize items.
func (d *AudioDataset) Iterate(batchSize int, opts ...IteratorOption) (*Iterator, error) {
	if batchSize <= 0 {
		return nil, errors.NewValidationError("batch_size", "must be positive", batchSize)
	}
	it := &Iterator{ds: d, order: make([]int, d.Len()), batchSize: batchSize}
	for i := range it.order {
		it.order[i] = i
	}
	for _, opt := range opts {
		opt(it)
	}
	return it, nil
}

// Next returns the next batch, or io.EOF once every item has been visited.
func (it *Iterator) Next(ctx context.Context) (*Batch, error) {
	remaining := len(it.order) - it.pos
	if remaining <= 0 || (it.dropLast && remaining < it.batchSize) {
		return nil, io.EOF
	}
	end := min(it.pos+it.batchSize, len(it.order))
	indices := it.order[it.pos:end]
	it.pos = end
	return it.ds.Batch(ctx, indices)
}

// Batches returns the number of batches Next yields.
func (it *Iterator) Batches() int {
	n := len(it.order) / it.batchSize
	if !it.dropLast && len(it.order)%it.batchSize != 0 {
		n++
	}
	return n
}
