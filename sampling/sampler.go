// Package sampling turns one recording into N correlated views.
//
// A Sampler draws a strategy per call from configured probabilities:
//
//	Same      one window replicated N times
//	Adjacent  one window of N·T samples split into N consecutive windows
//	Random    N windows with independent offsets
//
// Views are reduced to mono and returned as the rows of an N×T matrix.
package sampling

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/Pliploop/MuLOOC/audio"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Kind is a sampling strategy.
type Kind int

const (
	Same Kind = iota
	Adjacent
	Random
)

func (k Kind) String() string {
	switch k {
	case Same:
		return "same"
	case Adjacent:
		return "adjacent"
	case Random:
		return "random"
	}
	return "unknown"
}

// ParseKind maps a strategy name onto its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "same":
		return Same, nil
	case "adjacent":
		return Adjacent, nil
	case "random":
		return Random, nil
	}
	return 0, errors.NewValidationError("strategy", "must be same, adjacent or random", s)
}

// Weights are the probabilities of each strategy.
type Weights struct {
	Same     float64 `yaml:"same"`
	Adjacent float64 `yaml:"adjacent"`
	Random   float64 `yaml:"random"`
}

// DefaultWeights always picks Same.
var DefaultWeights = Weights{Same: 1}

// Validate checks that the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	for _, v := range w.slice() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError("strategy_probs", "probabilities must be finite and non-negative", w)
		}
	}
	sum := w.Same + w.Adjacent + w.Random
	if math.Abs(sum-1) > 1e-6 {
		return errors.NewValidationError("strategy_probs", "probabilities must sum to 1", sum)
	}
	return nil
}

func (w Weights) slice() []float64 {
	return []float64{w.Same, w.Adjacent, w.Random}
}

// Sampler produces views from recordings through an audio.Loader.
// It is safe for concurrent use.
type Sampler struct {
	loader     audio.Loader
	weights    Weights
	views      int
	sampleRate int
	nSamples   int
	lengthSec  float64

	mu     sync.Mutex
	src    rand.Source
	logger log.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithWeights sets the strategy probabilities.
func WithWeights(w Weights) Option {
	return func(s *Sampler) {
		s.weights = w
	}
}

// WithViews sets the number of views per recording.
func WithViews(n int) Option {
	return func(s *Sampler) {
		s.views = n
	}
}

// WithSampleRate sets the decoding rate.
func WithSampleRate(sr int) Option {
	return func(s *Sampler) {
		s.sampleRate = sr
	}
}

// WithTargetLength sets the window length in seconds.
func WithTargetLength(seconds float64) Option {
	return func(s *Sampler) {
		s.lengthSec = seconds
	}
}

// WithTargetSamples sets the window length in samples. It takes precedence
// over WithTargetLength.
func WithTargetSamples(n int) Option {
	return func(s *Sampler) {
		s.nSamples = n
	}
}

// WithSource sets the random source used for strategy draws.
func WithSource(src rand.Source) Option {
	return func(s *Sampler) {
		s.src = src
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// New builds a Sampler. The default draws two Same views of 2.7s at 22050Hz.
func New(loader audio.Loader, opts ...Option) (*Sampler, error) {
	if loader == nil {
		return nil, errors.NewValidationError("loader", "must not be nil", nil)
	}
	s := &Sampler{
		loader:     loader,
		weights:    DefaultWeights,
		views:      2,
		sampleRate: 22050,
		lengthSec:  2.7,
		logger:     log.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	if s.views <= 0 {
		return nil, errors.NewValidationError("n_augmentations", "must be positive", s.views)
	}
	if s.sampleRate <= 0 {
		return nil, errors.NewValidationError("target_sr", "must be positive", s.sampleRate)
	}
	if s.nSamples <= 0 {
		s.nSamples = int(math.Round(s.lengthSec * float64(s.sampleRate)))
	}
	if s.nSamples <= 0 {
		return nil, errors.NewValidationError("target_n_samples", "must be positive", s.nSamples)
	}
	if s.src == nil {
		s.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	s.logger = s.logger.With(log.ComponentKey, "sampler")
	return s, nil
}

// Views returns N.
func (s *Sampler) Views() int { return s.views }

// TargetSamples returns T.
func (s *Sampler) TargetSamples() int { return s.nSamples }

// SampleRate returns the decoding rate.
func (s *Sampler) SampleRate() int { return s.sampleRate }

// Weights returns the strategy probabilities.
func (s *Sampler) Weights() Weights { return s.weights }

// Draw picks a strategy according to the weights.
func (s *Sampler) Draw() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Take removes the drawn item, so every draw uses a fresh set
	w := sampleuv.NewWeighted(s.weights.slice(), s.src)
	idx, ok := w.Take()
	if !ok {
		return Same
	}
	return Kind(idx)
}

// Sample draws a strategy and returns the N×T mono views of path together
// with the strategy used.
func (s *Sampler) Sample(path string) (*mat.Dense, Kind, error) {
	kind := s.Draw()
	views, err := s.SampleKind(path, kind)
	return views, kind, err
}

// SampleKind returns the N×T mono views of path under kind.
func (s *Sampler) SampleKind(path string, kind Kind) (*mat.Dense, error) {
	var waves []*audio.Waveform
	switch kind {
	case Same:
		w, err := s.loader.LoadChunk(path, s.nSamples, s.sampleRate)
		if err != nil {
			return nil, err
		}
		waves = make([]*audio.Waveform, s.views)
		for n := range waves {
			waves[n] = w
		}
	case Adjacent:
		w, err := s.loader.LoadChunk(path, s.nSamples*s.views, s.sampleRate)
		if err != nil {
			return nil, err
		}
		waves, err = w.Split(s.nSamples)
		if err != nil {
			return nil, err
		}
	case Random:
		waves = make([]*audio.Waveform, s.views)
		for n := range waves {
			w, err := s.loader.LoadChunk(path, s.nSamples, s.sampleRate)
			if err != nil {
				return nil, err
			}
			waves[n] = w
		}
	default:
		return nil, errors.NewValueError("Sampler.SampleKind", "unknown strategy "+kind.String())
	}

	out, err := s.stack(waves)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sampled views",
		log.PathKey, path,
		log.StrategyKey, kind.String(),
		log.ViewsKey, s.views,
		log.SamplesKey, s.nSamples,
	)
	return out, nil
}

// Full decodes the whole recording and returns every T-sample window as a
// row, zero-padding a recording shorter than one window.
func (s *Sampler) Full(path string) (*mat.Dense, error) {
	waves, err := s.loader.LoadFull(path, s.sampleRate, s.nSamples)
	if err != nil {
		return nil, err
	}
	if len(waves) == 0 {
		return nil, errors.NewDecodeError(path, errors.ErrEmptyData)
	}
	out := mat.NewDense(len(waves), s.nSamples, nil)
	for i, w := range waves {
		if err := s.setRow(out, i, w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Sampler) stack(waves []*audio.Waveform) (*mat.Dense, error) {
	if len(waves) != s.views {
		return nil, errors.NewDimensionError("Sampler.stack", s.views, len(waves), 0)
	}
	out := mat.NewDense(s.views, s.nSamples, nil)
	for n, w := range waves {
		if err := s.setRow(out, n, w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Sampler) setRow(out *mat.Dense, i int, w *audio.Waveform) error {
	if w.Len() != s.nSamples {
		return errors.NewDimensionError("Sampler.setRow", s.nSamples, w.Len(), 1)
	}
	out.SetRow(i, w.Mono())
	return nil
}
