package audio

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRamp writes a stereo file whose left channel is a ramp and right
// channel its negation, so every sample position is recognisable.
func writeRamp(t *testing.T, dir string, n, sr int) string {
	t.Helper()
	left := make([]float64, n)
	right := make([]float64, n)
	for i := range left {
		left[i] = float64(i%1000) / 1000
		right[i] = -left[i] / 2
	}
	path := filepath.Join(dir, "ramp.wav")
	require.NoError(t, WriteWAV(path, &Waveform{SampleRate: sr, Channels: [][]float64{left, right}}))
	return path
}

func TestWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeRamp(t, dir, 4000, 8000)

	w, err := NewWAVLoader().Decode(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 8000, w.SampleRate)
	assert.Equal(t, 2, w.NumChannels())
	assert.Equal(t, 4000, w.Len())
	assert.InDelta(t, 0.5, w.Channels[0][500], 1e-3)
	assert.InDelta(t, -0.25, w.Channels[1][500], 1e-3)

	mono := w.Mono()
	assert.InDelta(t, 0.125, mono[500], 1e-3)
}

func TestLoadChunk(t *testing.T) {
	dir := t.TempDir()
	path := writeRamp(t, dir, 4000, 8000)
	loader := NewWAVLoader(WithRand(rand.New(rand.NewPCG(1, 2))))

	chunk, err := loader.LoadChunk(path, 800, 8000)
	require.NoError(t, err)
	assert.Equal(t, 800, chunk.Len())
	assert.Equal(t, 2, chunk.NumChannels())

	// consecutive ramp samples differ by one step unless the ramp wraps
	for i := 1; i < chunk.Len(); i++ {
		d := chunk.Channels[0][i] - chunk.Channels[0][i-1]
		if d > 0 {
			assert.InDelta(t, 0.001, d, 2e-4)
		}
	}
}

func TestLoadChunkTooShort(t *testing.T) {
	dir := t.TempDir()
	path := writeRamp(t, dir, 100, 8000)

	_, err := NewWAVLoader().LoadChunk(path, 200, 8000)
	require.Error(t, err)
	assert.True(t, errors.IsRecoverable(err))
	assert.True(t, errors.Is(err, errors.ErrTooShort))
}

func TestDecodeCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o644))

	_, err := NewWAVLoader().LoadChunk(path, 10, 8000)
	var decodeErr *errors.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, path, decodeErr.Path)

	_, err = NewWAVLoader().LoadChunk(filepath.Join(dir, "missing.wav"), 10, 8000)
	assert.True(t, errors.IsRecoverable(err))
}

func TestLoadFull(t *testing.T) {
	dir := t.TempDir()
	path := writeRamp(t, dir, 2500, 8000)
	loader := NewWAVLoader()

	chunks, err := loader.LoadFull(path, 8000, 1000)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.InDelta(t, 0.0, chunks[1].Channels[0][0], 1e-3)

	padded, err := loader.LoadFull(path, 8000, 3000)
	require.NoError(t, err)
	require.Len(t, padded, 1)
	assert.Equal(t, 3000, padded[0].Len())
	assert.Equal(t, 0.0, padded[0].Channels[0][2999])
}

func TestResampleLength(t *testing.T) {
	n := 8000
	ch := make([]float64, n)
	for i := range ch {
		ch[i] = math.Sin(2 * math.Pi * 220 * float64(i) / 8000)
	}
	w := &Waveform{SampleRate: 8000, Channels: [][]float64{ch}}

	out, err := Resample(w, 16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, out.SampleRate)
	assert.Equal(t, 16000, out.Len())

	same, err := Resample(w, 8000)
	require.NoError(t, err)
	assert.Same(t, w, same)

	_, err = Resample(w, 0)
	assert.Error(t, err)
}

func TestWaveformSplitAndSlice(t *testing.T) {
	w := &Waveform{SampleRate: 10, Channels: [][]float64{{0, 1, 2, 3, 4, 5, 6}}}

	parts, err := w.Split(3)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, []float64{3, 4, 5}, parts[1].Channels[0])

	_, err = w.Slice(5, 3)
	assert.Error(t, err)

	clone := w.Clone()
	clone.Channels[0][0] = 9
	assert.Equal(t, 0.0, w.Channels[0][0])
}
