package augment

import (
	"math/rand/v2"
	"testing"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func ramp(rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float64(j+1)/float64(cols+1))
		}
	}
	return m
}

func TestPolarityAlwaysAndNever(t *testing.T) {
	always, err := NewPolarity(1)
	require.NoError(t, err)
	never, err := NewPolarity(0)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 1))

	v := []float64{0.5, -0.25}
	assert.True(t, always.Apply(v, rng).IsApplied())
	assert.Equal(t, []float64{-0.5, 0.25}, v)

	assert.False(t, never.Apply(v, rng).IsApplied())
	assert.Equal(t, []float64{-0.5, 0.25}, v)
}

func TestBitcrushQuantizes(t *testing.T) {
	b, err := NewBitcrush(1, 2)
	require.NoError(t, err)
	assert.Equal(t, contrastive.DimSpec{Name: "bitcrush", Form: contrastive.MultiHot, Classes: 1}, b.Spec())

	v := []float64{0.1, 0.3, -0.6, 0.9}
	lab := b.Apply(v, rand.New(rand.NewPCG(2, 2)))
	assert.True(t, lab.HasClass(0))
	// two bits give a step of 0.5
	assert.Equal(t, []float64{0, 0.5, -0.5, 1}, v)

	_, err = NewBitcrush(0.5, 0)
	assert.Error(t, err)
}

func TestGainRange(t *testing.T) {
	g, err := NewGain(1, -6.0206, -6.0206)
	require.NoError(t, err)
	v := []float64{0.8, -0.4}
	assert.True(t, g.Apply(v, rand.New(rand.NewPCG(3, 3))).IsApplied())
	assert.InDelta(t, 0.4, v[0], 1e-4)
	assert.InDelta(t, -0.2, v[1], 1e-4)

	_, err = NewGain(1.5, 0, 1)
	assert.Error(t, err)
	_, err = NewGain(0.5, 3, 1)
	assert.Error(t, err)
}

func TestPipelineLabelsAndCopy(t *testing.T) {
	pol, _ := NewPolarity(1)
	crush, _ := NewBitcrush(0, 8)
	p, err := NewPipeline([]Transform{pol, crush}, WithRand(rand.New(rand.NewPCG(4, 4))))
	require.NoError(t, err)
	assert.Equal(t, []string{"polarity", "bitcrush"}, []string{p.Specs()[0].Name, p.Specs()[1].Name})

	in := ramp(3, 5)
	out, labels, err := p.Apply(in)
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Greater(t, in.At(0, 0), 0.0)
	assert.Less(t, out.At(0, 0), 0.0)
	for _, l := range labels {
		assert.True(t, l.Get("polarity").IsApplied())
		assert.False(t, l.Get("bitcrush").IsApplied())
	}
}

func TestPipelineKeepAnchor(t *testing.T) {
	pol, _ := NewPolarity(1)
	base, _ := NewGain(1, 0, 0)
	p, err := NewPipeline([]Transform{pol}, WithBase(base), WithKeepAnchor(true))
	require.NoError(t, err)

	in := ramp(3, 4)
	out, labels, err := p.Apply(in)
	require.NoError(t, err)

	assert.Equal(t, in.RawRowView(0), out.RawRowView(0))
	assert.False(t, labels[0].Get("polarity").IsApplied())
	assert.True(t, labels[1].Get("polarity").IsApplied())

	// a single view is never treated as the anchor
	out, labels, err = p.Apply(ramp(1, 4))
	require.NoError(t, err)
	assert.Less(t, out.At(0, 0), 0.0)
	assert.True(t, labels[0].Get("polarity").IsApplied())
}

func TestPipelineLabelsCollect(t *testing.T) {
	pol, _ := NewPolarity(0.5)
	p, err := NewPipeline([]Transform{pol}, WithRand(rand.New(rand.NewPCG(5, 5))))
	require.NoError(t, err)

	_, labels, err := p.Apply(ramp(4, 8))
	require.NoError(t, err)
	set, err := contrastive.Collect(layout.Layout{Items: 2, Views: 2}, p.Specs(), labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"polarity"}, set.Keys())
}

func TestPipelineRejectsDuplicateDims(t *testing.T) {
	a, _ := NewPolarity(1)
	b, _ := NewPolarity(0.5)
	_, err := NewPipeline([]Transform{a, b})
	assert.Error(t, err)
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"gain", "polarity", "bitcrush"} {
		tr, err := FromName(name, 0.5)
		require.NoError(t, err)
		assert.Equal(t, name, tr.Spec().Name)
	}
	_, err := FromName("reverb", 0.5)
	assert.Error(t, err)
}
