// Package augment applies stochastic waveform transforms to views and
// reports, per view, which transform was applied.
package augment

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// Transform modifies one mono view in place.
type Transform interface {
	// Spec declares the label dimension the transform reports into.
	Spec() contrastive.DimSpec
	// Apply may modify view and returns its label. A view left untouched is
	// labelled None.
	Apply(view []float64, rng *rand.Rand) contrastive.Label
}

func checkProbability(name string, p float64) error {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return errors.NewValidationError(name+".p", "probability must be in [0, 1]", p)
	}
	return nil
}

// Gain scales a view by a random gain in decibels.
type Gain struct {
	P     float64
	MinDB float64
	MaxDB float64
}

// NewGain returns a Gain applied with probability p.
func NewGain(p, minDB, maxDB float64) (*Gain, error) {
	if err := checkProbability("gain", p); err != nil {
		return nil, err
	}
	if minDB > maxDB {
		return nil, errors.NewValidationError("gain.min_db", "must not exceed max_db", minDB)
	}
	return &Gain{P: p, MinDB: minDB, MaxDB: maxDB}, nil
}

func (g *Gain) Spec() contrastive.DimSpec {
	return contrastive.DimSpec{Name: "gain", Form: contrastive.Binary}
}

func (g *Gain) Apply(view []float64, rng *rand.Rand) contrastive.Label {
	if rng.Float64() >= g.P {
		return contrastive.None()
	}
	db := g.MinDB + rng.Float64()*(g.MaxDB-g.MinDB)
	scale := math.Pow(10, db/20)
	for i := range view {
		view[i] = clip(view[i] * scale)
	}
	return contrastive.Applied()
}

// Polarity inverts a view.
type Polarity struct {
	P float64
}

// NewPolarity returns a Polarity applied with probability p.
func NewPolarity(p float64) (*Polarity, error) {
	if err := checkProbability("polarity", p); err != nil {
		return nil, err
	}
	return &Polarity{P: p}, nil
}

func (p *Polarity) Spec() contrastive.DimSpec {
	return contrastive.DimSpec{Name: "polarity", Form: contrastive.Binary}
}

func (p *Polarity) Apply(view []float64, rng *rand.Rand) contrastive.Label {
	if rng.Float64() >= p.P {
		return contrastive.None()
	}
	for i := range view {
		view[i] = -view[i]
	}
	return contrastive.Applied()
}

// Bitcrush quantizes a view to a bit depth drawn from Depths. The label is
// the index of the depth used.
type Bitcrush struct {
	P      float64
	Depths []int
}

// NewBitcrush returns a Bitcrush applied with probability p.
func NewBitcrush(p float64, depths ...int) (*Bitcrush, error) {
	if err := checkProbability("bitcrush", p); err != nil {
		return nil, err
	}
	if len(depths) == 0 {
		depths = []int{8}
	}
	for _, d := range depths {
		if d < 1 || d > 24 {
			return nil, errors.NewValidationError("bitcrush.depths", "bit depth must be in [1, 24]", d)
		}
	}
	return &Bitcrush{P: p, Depths: depths}, nil
}

func (b *Bitcrush) Spec() contrastive.DimSpec {
	return contrastive.DimSpec{Name: "bitcrush", Form: contrastive.MultiHot, Classes: len(b.Depths)}
}

func (b *Bitcrush) Apply(view []float64, rng *rand.Rand) contrastive.Label {
	if rng.Float64() >= b.P {
		return contrastive.None()
	}
	k := rng.IntN(len(b.Depths))
	step := 2 / math.Ldexp(1, b.Depths[k])
	for i := range view {
		view[i] = clip(math.Round(view[i]/step) * step)
	}
	return contrastive.Class(k)
}

// FromName builds a transform with default parameters.
func FromName(name string, p float64) (Transform, error) {
	switch name {
	case "gain":
		return NewGain(p, -12, 6)
	case "polarity":
		return NewPolarity(p)
	case "bitcrush":
		return NewBitcrush(p, 4, 6, 8)
	}
	return nil, errors.NewValidationError("augmentation", fmt.Sprintf("unknown transform %q", name), name)
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
