package models

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/dataset"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// spyEncoder returns the first dim samples of every view and counts calls.
type spyEncoder struct {
	dim   int
	calls int
}

func (e *spyEncoder) EmbedDim() int { return e.dim }

func (e *spyEncoder) Encode(views *mat.Dense) (*mat.Dense, error) {
	e.calls++
	rows, _ := views.Dims()
	out := mat.NewDense(rows, e.dim, nil)
	out.Copy(views.Slice(0, rows, 0, e.dim))
	return out, nil
}

func testViews(rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.Sin(float64(i)*0.37) + float64(i%cols)*0.01
	}
	return mat.NewDense(rows, cols, data)
}

func gainLabels(t *testing.T, l layout.Layout, values ...float64) *contrastive.LabelSet {
	t.Helper()
	d, err := contrastive.FromTensor(l, "gain", []int{l.Items, l.Views}, values)
	require.NoError(t, err)
	set, err := contrastive.NewLabelSet(d)
	require.NoError(t, err)
	return set
}

func TestExtractFeaturesDimensions(t *testing.T) {
	enc := &spyEncoder{dim: 6}
	m, err := New(enc, WithHeadDims(4, 3, 5), WithSeed(1))
	require.NoError(t, err)

	views := testViews(4, 8)

	superspace, err := m.ExtractFeatures(views, Superspace)
	require.NoError(t, err)
	_, c := superspace.Dims()
	assert.Equal(t, 6, c)

	concat, err := m.ExtractFeatures(views, Concatenated)
	require.NoError(t, err)
	r, c := concat.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 4+3+5, c)

	second, err := m.ExtractFeatures(views, 1)
	require.NoError(t, err)
	_, c = second.Dims()
	assert.Equal(t, 3, c)
	assert.True(t, mat.Equal(second, concat.Slice(0, 4, 4, 7)))

	_, err = m.ExtractFeatures(views, 3)
	assert.Error(t, err)

	for sel, want := range map[HeadSelector]int{Superspace: 6, Concatenated: 12, 0: 4, 2: 5} {
		got, err := m.EmbedDimFor(sel)
		require.NoError(t, err)
		assert.Equal(t, want, got, sel.String())
	}
	assert.Equal(t, 6, m.EmbedDim())
}

func TestNewRejectsBadSelector(t *testing.T) {
	_, err := New(&spyEncoder{dim: 4}, WithHeadDims(8), WithFeatExtractHead(2))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))

	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8, 2), WithFeatExtractHead(Concatenated))
	require.NoError(t, err)
	assert.Equal(t, 10, m.EmbedDim())
}

func TestForwardWithLossesMismatchBeforeCompute(t *testing.T) {
	enc := &spyEncoder{dim: 4}
	m, err := New(enc, WithHeadDims(8, 8, 8))
	require.NoError(t, err)

	l := layout.Layout{Items: 2, Views: 2}
	batch := &dataset.Batch{Layout: l, Audio: testViews(4, 16), Augs: gainLabels(t, l, 1, 0, 1, 1)}

	_, err = m.ForwardWithLosses(batch)
	var mismatch *errors.HeadMatrixMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 3, mismatch.Heads)
	assert.Equal(t, 2, mismatch.Matrices)
	assert.Zero(t, enc.calls)
}

func TestForwardWithLossesPerHead(t *testing.T) {
	enc := &spyEncoder{dim: 4}
	m, err := New(enc, WithHeadDims(8, 3), WithSeed(42))
	require.NoError(t, err)

	l := layout.Layout{Items: 2, Views: 2}
	batch := &dataset.Batch{Layout: l, Audio: testViews(4, 16), Augs: gainLabels(t, l, 1, 0, 1, 1)}

	out, err := m.ForwardWithLosses(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, enc.calls)

	require.Len(t, out.Loss, 2)
	assert.Equal(t, []string{contrastive.InvariantKey, "gain"}, out.Matrices.Keys())
	assert.Equal(t, out.Loss[0], out.Losses[contrastive.InvariantKey])
	assert.Equal(t, out.Loss[1], out.Losses["gain"])
	assert.InDelta(t, (out.Loss[0]+out.Loss[1])/2, out.Mean(), 1e-12)

	for _, key := range []string{contrastive.InvariantKey, "gain"} {
		sims, ok := out.Sims[key]
		require.True(t, ok, key)
		assert.Equal(t, 4, sims.SymmetricDim())
		assert.Greater(t, out.Losses[key], 0.0)
	}
	require.Len(t, out.Output.Projected, 2)
	_, c := out.Output.Projected[1].Dims()
	assert.Equal(t, 3, c)
}

func TestForwardWithLossesFewerHeads(t *testing.T) {
	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8))
	require.NoError(t, err)

	l := layout.Layout{Items: 2, Views: 2}
	out, err := m.Losses(testViews(4, 16), l, gainLabels(t, l, 1, 1, 0, 1))
	require.NoError(t, err)

	assert.Len(t, out.Loss, 1)
	assert.Equal(t, 2, out.Matrices.Len())
	_, ok := out.Losses["gain"]
	assert.False(t, ok)
}

func TestForwardWithLossesExplicitTarget(t *testing.T) {
	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8, 8), WithHeadTargets("", "bitcrush"))
	require.NoError(t, err)

	l := layout.Layout{Items: 1, Views: 2}
	crush := contrastive.Dimension{
		DimSpec: contrastive.DimSpec{Name: "bitcrush", Form: contrastive.MultiHot, Classes: 2},
		Labels:  []contrastive.Label{contrastive.Class(1), contrastive.Class(1)},
	}
	gain := contrastive.Dimension{
		DimSpec: contrastive.DimSpec{Name: "gain"},
		Labels:  make([]contrastive.Label, 2),
	}
	augs, err := contrastive.NewLabelSet(gain, crush)
	require.NoError(t, err)

	out, err := m.Losses(testViews(2, 8), l, augs)
	require.NoError(t, err)
	assert.Equal(t, "bitcrush", out.Bindings[1].Matrix)
	assert.Contains(t, out.Losses, "bitcrush")
	assert.NotContains(t, out.Losses, "gain")
}

func TestUndefinedLossWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8, 8))
	require.NoError(t, err)

	l := layout.Layout{Items: 2, Views: 2}
	out, err := m.Losses(testViews(4, 16), l, gainLabels(t, l, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Losses["gain"])

	require.Len(t, warnings, 1)
	var undefined *errors.UndefinedLossWarning
	require.True(t, errors.As(warnings[0], &undefined))
	assert.Equal(t, "head_1", undefined.Head)
}

func TestLossesRejectsRowMismatch(t *testing.T) {
	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8))
	require.NoError(t, err)

	_, err = m.Losses(testViews(3, 16), layout.Layout{Items: 2, Views: 2}, nil)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestCheckpointRoundTrip(t *testing.T) {
	enc := &spyEncoder{dim: 4}
	a, err := New(enc, WithHeadDims(6, 2), WithSeed(1))
	require.NoError(t, err)
	b, err := New(enc, WithHeadDims(6, 2), WithSeed(2))
	require.NoError(t, err)

	views := testViews(3, 8)
	fa, err := a.ExtractFeatures(views, Concatenated)
	require.NoError(t, err)
	fb, err := b.ExtractFeatures(views, Concatenated)
	require.NoError(t, err)
	require.False(t, mat.Equal(fa, fb))

	path := filepath.Join(t.TempDir(), "heads.gob")
	require.NoError(t, a.SaveHeads(path))
	require.NoError(t, b.LoadHeadWeights(path))

	fb, err = b.ExtractFeatures(views, Concatenated)
	require.NoError(t, err)
	assert.True(t, mat.Equal(fa, fb))

	c, err := New(enc, WithHeadDims(6))
	require.NoError(t, err)
	assert.Error(t, c.LoadHeadWeights(path))
}

func TestGetParams(t *testing.T) {
	m, err := New(&spyEncoder{dim: 4}, WithHeadDims(8, 2), WithTemperature(0.2),
		WithPairRule(contrastive.MatchUnapplied))
	require.NoError(t, err)

	params := m.GetParams()
	assert.Equal(t, []int{8, 2}, params["head_dims"])
	assert.Equal(t, 0.2, params["temperature"])
	assert.Equal(t, "unapplied", params["pair_rule"])
	assert.Equal(t, contrastive.MatchUnapplied, m.Builder().Rule())
}
