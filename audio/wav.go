package audio

import (
	"math"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// WAVLoader decodes PCM WAV files and resamples them to the requested rate.
// It is safe for concurrent use.
type WAVLoader struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger log.Logger
}

// LoaderOption configures a WAVLoader.
type LoaderOption func(*WAVLoader)

// WithRand sets the source of chunk offsets.
func WithRand(rng *rand.Rand) LoaderOption {
	return func(l *WAVLoader) {
		l.rng = rng
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger log.Logger) LoaderOption {
	return func(l *WAVLoader) {
		l.logger = logger
	}
}

// NewWAVLoader returns a loader seeded from the runtime unless WithRand is given.
func NewWAVLoader(opts ...LoaderOption) *WAVLoader {
	l := &WAVLoader{logger: log.GetLogger()}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	l.logger = l.logger.With(log.ComponentKey, "audio")
	return l
}

// LoadChunk implements Loader.
func (l *WAVLoader) LoadChunk(path string, n, sampleRate int) (*Waveform, error) {
	if n <= 0 {
		return nil, errors.NewValueError("WAVLoader.LoadChunk", "n must be positive")
	}
	w, err := l.Decode(path, sampleRate)
	if err != nil {
		return nil, err
	}
	if w.Len() < n {
		return nil, errors.NewDecodeError(path, errors.Wrapf(errors.ErrTooShort, "%d samples, need %d", w.Len(), n))
	}

	l.mu.Lock()
	offset := l.rng.IntN(w.Len() - n + 1)
	l.mu.Unlock()

	return w.Slice(offset, n)
}

// LoadFull implements Loader.
func (l *WAVLoader) LoadFull(path string, sampleRate, n int) ([]*Waveform, error) {
	if n <= 0 {
		return nil, errors.NewValueError("WAVLoader.LoadFull", "n must be positive")
	}
	w, err := l.Decode(path, sampleRate)
	if err != nil {
		return nil, err
	}
	if w.Len() == 0 {
		return nil, errors.NewDecodeError(path, errors.ErrEmptyData)
	}
	if w.Len() < n {
		padded := &Waveform{SampleRate: w.SampleRate, Channels: make([][]float64, w.NumChannels())}
		for c, ch := range w.Channels {
			padded.Channels[c] = make([]float64, n)
			copy(padded.Channels[c], ch)
		}
		return []*Waveform{padded}, nil
	}
	return w.Split(n)
}

// Decode reads the whole file at sampleRate. Any failure, including a
// panic inside the decoder, is returned as a DecodeError.
func (l *WAVLoader) Decode(path string, sampleRate int) (*Waveform, error) {
	var w *Waveform
	err := errors.SafeExecute("wav decode "+path, func() error {
		var err error
		w, err = decodeFile(path)
		if err != nil {
			return err
		}
		if sampleRate > 0 && sampleRate != w.SampleRate {
			l.logger.Debug("resampling",
				log.PathKey, path,
				log.SampleRateKey, w.SampleRate,
				"target_rate", sampleRate,
			)
			w, err = Resample(w, sampleRate)
		}
		return err
	})
	if err != nil {
		var decodeErr *errors.DecodeError
		if errors.As(err, &decodeErr) {
			return nil, err
		}
		return nil, errors.NewDecodeError(path, err)
	}
	return w, nil
}

func decodeFile(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDecodeError(path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.NewDecodeError(path, errors.New("not a valid wav file"))
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, errors.NewDecodeError(path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, errors.NewDecodeError(path, errors.New("missing pcm format"))
	}

	chans := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(d.BitDepth)
	}
	scale := math.Ldexp(1, depth-1)
	frames := len(buf.Data) / chans

	w := &Waveform{SampleRate: buf.Format.SampleRate, Channels: make([][]float64, chans)}
	for c := range w.Channels {
		w.Channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < chans; c++ {
			w.Channels[c][i] = float64(buf.Data[i*chans+c]) / scale
		}
	}
	return w, nil
}

// Resample converts every channel of w to rate.
func Resample(w *Waveform, rate int) (*Waveform, error) {
	if rate <= 0 {
		return nil, errors.NewValueError("audio.Resample", "rate must be positive")
	}
	if w.SampleRate == rate {
		return w, nil
	}
	want := int(math.Round(float64(w.Len()) * float64(rate) / float64(w.SampleRate)))

	out := &Waveform{SampleRate: rate, Channels: make([][]float64, w.NumChannels())}
	for c, ch := range w.Channels {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(w.SampleRate),
			OutputRate: float64(rate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create resampler")
		}
		res, err := r.Process(ch)
		if err != nil {
			return nil, errors.Wrap(err, "resample error")
		}
		// filter latency can leave the stream short of the exact length
		fixed := make([]float64, want)
		copy(fixed, res)
		out.Channels[c] = fixed
	}
	return out, nil
}

// WriteWAV encodes w as 16-bit PCM.
func WriteWAV(path string, w *Waveform) error {
	if w.NumChannels() == 0 {
		return errors.NewValueError("audio.WriteWAV", "waveform has no channels")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	const depth = 16
	chans := w.NumChannels()
	enc := wav.NewEncoder(f, w.SampleRate, depth, chans, 1)

	data := make([]int, w.Len()*chans)
	for i := 0; i < w.Len(); i++ {
		for c := 0; c < chans; c++ {
			v := math.Max(-1, math.Min(1, w.Channels[c][i]))
			data[i*chans+c] = int(math.Round(v * 32767))
		}
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "failed to write pcm data")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize wav")
	}
	return nil
}
