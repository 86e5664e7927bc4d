package dataset

import (
	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Batch is a collated training batch. Audio rows follow Layout order:
// row b*N + n is view n of item b.
type Batch struct {
	Layout layout.Layout

	// Audio holds one mono view per row.
	Audio *mat.Dense

	// Augs holds one dimension per augmentation, nil when none are configured.
	Augs *contrastive.LabelSet

	// Labels holds optional per-item label vectors, one row per item.
	Labels *mat.Dense

	// Paths lists the source recording of each item.
	Paths []string
}

// Validate checks that Audio, Augs and Labels agree with Layout.
func (b *Batch) Validate() error {
	if err := b.Layout.Validate(); err != nil {
		return err
	}
	if b.Audio == nil {
		return b.Layout.CheckRows("Batch.Audio", 0)
	}
	rows, _ := b.Audio.Dims()
	if err := b.Layout.CheckRows("Batch.Audio", rows); err != nil {
		return err
	}
	for _, d := range b.Augs.Dims() {
		if err := b.Layout.CheckRows("Batch.Augs."+d.Name, len(d.Labels)); err != nil {
			return err
		}
	}
	if b.Labels != nil {
		r, _ := b.Labels.Dims()
		if r != b.Layout.Items {
			return errors.NewDimensionError("Batch.Labels", b.Layout.Items, r, 0)
		}
	}
	return nil
}
