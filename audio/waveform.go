// Package audio decodes recordings into float waveforms for the segment
// sampler.
package audio

import (
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// Waveform is a multi-channel signal with samples in [-1, 1].
type Waveform struct {
	SampleRate int
	// Channels holds one equally long sample slice per channel.
	Channels [][]float64
}

// Len returns the number of samples per channel.
func (w *Waveform) Len() int {
	if w == nil || len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// NumChannels returns the channel count.
func (w *Waveform) NumChannels() int {
	if w == nil {
		return 0
	}
	return len(w.Channels)
}

// Slice returns samples [start, start+n) of every channel. The returned
// waveform shares memory with w.
func (w *Waveform) Slice(start, n int) (*Waveform, error) {
	if start < 0 || n < 0 || start+n > w.Len() {
		return nil, errors.NewValueError("Waveform.Slice", "window out of range")
	}
	out := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float64, len(w.Channels))}
	for c, ch := range w.Channels {
		out.Channels[c] = ch[start : start+n : start+n]
	}
	return out, nil
}

// Split cuts w into consecutive non-overlapping windows of n samples. A
// trailing remainder shorter than n is dropped.
func (w *Waveform) Split(n int) ([]*Waveform, error) {
	if n <= 0 {
		return nil, errors.NewValueError("Waveform.Split", "window must be positive")
	}
	count := w.Len() / n
	out := make([]*Waveform, count)
	for k := 0; k < count; k++ {
		s, err := w.Slice(k*n, n)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

// Mono averages channels into a single slice.
func (w *Waveform) Mono() []float64 {
	n := w.Len()
	out := make([]float64, n)
	if len(w.Channels) == 0 {
		return out
	}
	for _, ch := range w.Channels {
		for i, v := range ch {
			out[i] += v
		}
	}
	scale := 1 / float64(len(w.Channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Clone returns a deep copy of w.
func (w *Waveform) Clone() *Waveform {
	out := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float64, len(w.Channels))}
	for c, ch := range w.Channels {
		out.Channels[c] = append([]float64(nil), ch...)
	}
	return out
}

// Loader decodes recordings.
type Loader interface {
	// LoadChunk decodes n samples at sampleRate starting at a random offset.
	// It fails with a DecodeError when the file cannot be read or is shorter
	// than n samples.
	LoadChunk(path string, n, sampleRate int) (*Waveform, error)

	// LoadFull decodes the whole file at sampleRate and splits it into
	// windows of n samples. A file shorter than n yields one zero-padded window.
	LoadFull(path string, sampleRate, n int) ([]*Waveform, error)
}
