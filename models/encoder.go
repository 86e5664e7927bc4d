package models

import (
	"math"
	"math/cmplx"

	"github.com/Pliploop/MuLOOC/core/parallel"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// EncoderOption configures a SpectralEncoder.
type EncoderOption func(*SpectralEncoder)

// WithFrameSize sets the STFT frame length in samples.
func WithFrameSize(n int) EncoderOption {
	return func(e *SpectralEncoder) {
		e.frame = n
	}
}

// WithHopSize sets the STFT hop in samples.
func WithHopSize(n int) EncoderOption {
	return func(e *SpectralEncoder) {
		e.hop = n
	}
}

// WithBands sets the number of linear frequency bands pooled from each frame.
func WithBands(n int) EncoderOption {
	return func(e *SpectralEncoder) {
		e.bands = n
	}
}

// SpectralEncoder is a parameter-free encoder: a Hann-windowed STFT whose
// log band energies are summarised by their mean and standard deviation
// over time. EmbedDim is twice the number of bands.
type SpectralEncoder struct {
	frame  int
	hop    int
	bands  int
	window []float64
}

// NewSpectralEncoder returns an encoder with 512-sample frames, a 256-sample
// hop and 32 bands unless configured otherwise.
func NewSpectralEncoder(opts ...EncoderOption) (*SpectralEncoder, error) {
	e := &SpectralEncoder{frame: 512, hop: 256, bands: 32}
	for _, opt := range opts {
		opt(e)
	}
	if e.frame < 2 {
		return nil, errors.NewValidationError("frame_size", "must be at least 2", e.frame)
	}
	if e.hop <= 0 {
		return nil, errors.NewValidationError("hop_size", "must be positive", e.hop)
	}
	if e.bands <= 0 || e.bands > e.frame/2 {
		return nil, errors.NewValidationError("bands", "must be in [1, frame_size/2]", e.bands)
	}

	e.window = make([]float64, e.frame)
	for i := range e.window {
		e.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(e.frame-1))
	}
	return e, nil
}

// EmbedDim implements model.Encoder.
func (e *SpectralEncoder) EmbedDim() int {
	return 2 * e.bands
}

// Encode implements model.Encoder. Rows shorter than one frame are zero padded.
func (e *SpectralEncoder) Encode(views *mat.Dense) (*mat.Dense, error) {
	rows, cols := views.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.NewValueError("SpectralEncoder.Encode", "empty input")
	}

	out := mat.NewDense(rows, e.EmbedDim(), nil)
	parallel.ParallelizeWithThreshold(rows, 4, func(start, end int) {
		// fourier.FFT holds scratch space and is not safe for concurrent use
		fft := fourier.NewFFT(e.frame)
		buf := make([]float64, e.frame)
		coeffs := make([]complex128, e.frame/2+1)
		for i := start; i < end; i++ {
			e.encodeRow(views.RawRowView(i), out.RawRowView(i), fft, buf, coeffs)
		}
	})

	if err := errors.CheckMatrix("SpectralEncoder.Encode", out, rows, e.EmbedDim(), 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *SpectralEncoder) encodeRow(x, dst []float64, fft *fourier.FFT, buf []float64, coeffs []complex128) {
	frames := 1
	if len(x) > e.frame {
		frames += (len(x) - e.frame) / e.hop
	}

	mean := dst[:e.bands]
	sq := dst[e.bands:]
	bins := e.frame / 2
	width := float64(bins) / float64(e.bands)

	for f := 0; f < frames; f++ {
		off := f * e.hop
		for k := range buf {
			v := 0.0
			if off+k < len(x) {
				v = x[off+k]
			}
			buf[k] = v * e.window[k]
		}
		coeffs = fft.Coefficients(coeffs, buf)

		for b := 0; b < e.bands; b++ {
			lo := 1 + int(float64(b)*width)
			hi := 1 + int(float64(b+1)*width)
			if hi > bins+1 {
				hi = bins + 1
			}
			var energy float64
			for k := lo; k < hi; k++ {
				a := cmplx.Abs(coeffs[k])
				energy += a * a
			}
			if hi > lo {
				energy /= float64(hi - lo)
			}
			le := math.Log(energy + 1e-10)
			mean[b] += le
			sq[b] += le * le
		}
	}

	n := float64(frames)
	for b := 0; b < e.bands; b++ {
		m := mean[b] / n
		v := sq[b]/n - m*m
		mean[b] = m
		sq[b] = math.Sqrt(math.Max(v, 0))
	}
}
