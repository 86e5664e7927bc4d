package models

import (
	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/model"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

// Option configures MuLOOC.
type Option func(*MuLOOC)

// WithHeadDims builds one MLPHead per output dimension, in order.
func WithHeadDims(dims ...int) Option {
	return func(m *MuLOOC) {
		m.headDims = append([]int(nil), dims...)
	}
}

// WithHeads uses prebuilt heads instead of building MLPHeads.
func WithHeads(heads ...model.Head) Option {
	return func(m *MuLOOC) {
		m.heads = append([]model.Head(nil), heads...)
	}
}

// WithHeadTargets binds head k to the matrix named targets[k]. An empty
// target keeps positional binding.
func WithHeadTargets(targets ...string) Option {
	return func(m *MuLOOC) {
		m.targets = append([]string(nil), targets...)
	}
}

// WithTemperature sets the NTXent temperature.
func WithTemperature(t float64) Option {
	return func(m *MuLOOC) {
		m.temperature = t
	}
}

// WithLoss replaces the NTXent loss primitive.
func WithLoss(l model.ContrastiveLoss) Option {
	return func(m *MuLOOC) {
		m.loss = l
	}
}

// WithFeatExtractHead sets the default selector used by ExtractFeatures.
func WithFeatExtractHead(sel HeadSelector) Option {
	return func(m *MuLOOC) {
		m.featHead = sel
	}
}

// WithPairRule sets the rule used to build variant matrices.
func WithPairRule(r contrastive.PairRule) Option {
	return func(m *MuLOOC) {
		m.rule = r
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *MuLOOC) {
		m.logger = l
	}
}

// WithSeed seeds head initialisation.
func WithSeed(seed uint64) Option {
	return func(m *MuLOOC) {
		m.seed = seed
	}
}
