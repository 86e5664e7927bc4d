package models

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func sine(freq, sr float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
	}
	return out
}

func TestSpectralEncoderShapeAndDeterminism(t *testing.T) {
	enc, err := NewSpectralEncoder(WithFrameSize(64), WithHopSize(32), WithBands(8))
	require.NoError(t, err)
	assert.Equal(t, 16, enc.EmbedDim())

	views := mat.NewDense(3, 256, nil)
	views.SetRow(0, sine(1000, 8000, 256))
	views.SetRow(1, sine(3000, 8000, 256))
	views.SetRow(2, make([]float64, 256))

	a, err := enc.Encode(views)
	require.NoError(t, err)
	b, err := enc.Encode(views)
	require.NoError(t, err)

	r, c := a.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 16, c)
	assert.True(t, mat.Equal(a, b))
}

func TestSpectralEncoderSeparatesFrequencies(t *testing.T) {
	enc, err := NewSpectralEncoder(WithFrameSize(128), WithHopSize(64), WithBands(8))
	require.NoError(t, err)

	views := mat.NewDense(2, 1024, nil)
	views.SetRow(0, sine(500, 8000, 1024))
	views.SetRow(1, sine(3500, 8000, 1024))

	out, err := enc.Encode(views)
	require.NoError(t, err)

	low := floats.MaxIdx(out.RawRowView(0)[:8])
	high := floats.MaxIdx(out.RawRowView(1)[:8])
	assert.Less(t, low, high)
}

func TestSpectralEncoderPadsShortInput(t *testing.T) {
	enc, err := NewSpectralEncoder(WithFrameSize(64), WithHopSize(16), WithBands(4))
	require.NoError(t, err)

	out, err := enc.Encode(mat.NewDense(1, 10, sine(440, 8000, 10)))
	require.NoError(t, err)
	for _, v := range out.RawRowView(0) {
		assert.False(t, math.IsNaN(v))
	}
	// a single frame has no spread over time
	for _, v := range out.RawRowView(0)[4:] {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestSpectralEncoderValidation(t *testing.T) {
	for _, opts := range [][]EncoderOption{
		{WithFrameSize(1)},
		{WithHopSize(0)},
		{WithFrameSize(16), WithBands(9)},
		{WithBands(0)},
	} {
		_, err := NewSpectralEncoder(opts...)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr))
	}
}

func TestMLPHead(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	h, err := NewMLPHead("head_0", 3, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 3, h.InDim())
	assert.Equal(t, 2, h.OutDim())

	hw := h.Weights()
	hw.Hidden = []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	hw.Output = []float64{1, 0, 0, 1, 1, 1}
	require.NoError(t, h.SetWeights(hw))

	out, err := h.Project(mat.NewDense(2, 3, []float64{
		1, -2, 3,
		-1, -1, -1,
	}))
	require.NoError(t, err)
	// relu zeroes the negative entries before the output layer
	assert.Equal(t, []float64{4, 3, 0, 0}, out.RawMatrix().Data)

	_, err = h.Project(mat.NewDense(1, 4, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	hw.OutDim = 3
	hw.Output = make([]float64, 9)
	assert.Error(t, h.SetWeights(hw))

	_, err = NewMLPHead("bad", 3, 0, rng)
	assert.Error(t, err)
}
