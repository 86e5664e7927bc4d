package losses

import (
	"math"
	"testing"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoClusters() *mat.Dense {
	return mat.NewDense(4, 2, []float64{
		1, 0,
		2, 0,
		0, 1,
		0, 3,
	})
}

func TestSimilarities(t *testing.T) {
	loss, err := NewNTXent()
	require.NoError(t, err)

	sims, err := loss.Similarities(twoClusters())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sims.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, sims.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0, sims.At(1, 2), 1e-12)
	assert.InDelta(t, 1.0, sims.At(2, 3), 1e-12)

	_, err = loss.Similarities(&mat.Dense{})
	assert.Error(t, err)
}

func TestSimilaritiesZeroRow(t *testing.T) {
	loss, err := NewNTXent()
	require.NoError(t, err)

	sims, err := loss.Similarities(mat.NewDense(2, 2, []float64{0, 0, 1, 0}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(sims.At(0, 1)))
	assert.Equal(t, 0.0, sims.At(0, 0))
}

func TestLossValue(t *testing.T) {
	loss, err := NewNTXent(WithTemperature(1))
	require.NoError(t, err)

	target := contrastive.NewBuilder().Invariant(layout.Layout{Items: 2, Views: 2})
	got, err := loss.Loss(twoClusters(), target, nil)
	require.NoError(t, err)

	want := math.Log(math.E+2) - 1
	assert.InDelta(t, want, got, 1e-12)
}

func TestLossPrefersAlignedPositives(t *testing.T) {
	loss, err := NewNTXent(WithTemperature(0.5))
	require.NoError(t, err)
	target := contrastive.NewBuilder().Invariant(layout.Layout{Items: 2, Views: 2})

	aligned, err := loss.Loss(twoClusters(), target, nil)
	require.NoError(t, err)

	crossed := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		1, 0,
		0, 1,
	})
	misaligned, err := loss.Loss(crossed, target, nil)
	require.NoError(t, err)

	assert.Less(t, aligned, misaligned)
}

func TestLossNegativeMask(t *testing.T) {
	loss, err := NewNTXent(WithTemperature(1))
	require.NoError(t, err)
	target := contrastive.NewBuilder().Invariant(layout.Layout{Items: 2, Views: 2})

	// no eligible negatives leaves only the positive in the denominator
	got, err := loss.Loss(twoClusters(), target, mat.NewSymDense(4, nil))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-12)

	ones := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			ones.SetSym(i, j, 1)
		}
	}
	masked, err := loss.Loss(twoClusters(), target, ones)
	require.NoError(t, err)
	unmasked, err := loss.Loss(twoClusters(), target, nil)
	require.NoError(t, err)
	assert.InDelta(t, unmasked, masked, 1e-12)
}

func TestLossWithoutPositives(t *testing.T) {
	loss, err := NewNTXent()
	require.NoError(t, err)

	got, err := loss.Loss(twoClusters(), mat.NewSymDense(4, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestLossDimensionMismatch(t *testing.T) {
	loss, err := NewNTXent()
	require.NoError(t, err)

	_, err = loss.Loss(twoClusters(), mat.NewSymDense(6, nil), nil)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestNewNTXentRejectsTemperature(t *testing.T) {
	for _, temp := range []float64{0, -0.1, math.NaN(), math.Inf(1)} {
		_, err := NewNTXent(WithTemperature(temp))
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr), "temperature %v", temp)
	}
}
