// Package monitor tracks per-head contrastive losses over a run, renders
// similarity heatmaps and decides when to stop on validation loss.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/google/uuid"
)

// EpochSummary holds the mean losses of one epoch. A phase with no observed
// batch has a NaN mean.
type EpochSummary struct {
	Epoch    int
	Train    float64
	Val      float64
	Improved bool
	Stop     bool
}

type accum struct {
	sum   float64
	count int
}

func (a accum) mean() float64 {
	if a.count == 0 {
		return math.NaN()
	}
	return a.sum / float64(a.count)
}

// Monitor aggregates loss outputs per phase. It is safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	runID     uuid.UUID
	logger    log.Logger
	callbacks []Callback
	early     *EarlyStopping

	step   int
	epoch  int
	phases map[string]*accum
	stop   bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCallbacks appends callbacks run after every observed batch.
func WithCallbacks(cbs ...Callback) Option {
	return func(m *Monitor) {
		m.callbacks = append(m.callbacks, cbs...)
	}
}

// WithEarlyStopping stops after patience epochs without a validation
// improvement larger than minDelta.
func WithEarlyStopping(patience int, minDelta float64) Option {
	return func(m *Monitor) {
		m.early = NewEarlyStopping(patience, minDelta)
	}
}

// WithRunID sets the run identifier instead of a random one.
func WithRunID(id uuid.UUID) Option {
	return func(m *Monitor) {
		m.runID = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// New returns a Monitor with a fresh run id.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		runID:  uuid.New(),
		logger: log.GetLogger(),
		early:  NewEarlyStopping(0, 0),
		phases: make(map[string]*accum),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(log.ComponentKey, "monitor", log.RunIDKey, m.runID.String())
	return m
}

// RunID returns the run identifier.
func (m *Monitor) RunID() string { return m.runID.String() }

// Step returns the number of training batches observed.
func (m *Monitor) Step() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Epoch returns the index of the current epoch.
func (m *Monitor) Epoch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// ShouldStop reports whether a callback or early stopping requested a stop.
func (m *Monitor) ShouldStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop
}

// Observe records the losses of one batch under phase. Training batches
// advance the step counter.
func (m *Monitor) Observe(phase string, out *models.LossOutput) error {
	if out == nil {
		return errors.NewValueError("Monitor.Observe", "loss output is nil")
	}
	mean := out.Mean()
	if err := errors.CheckScalar("Monitor.Observe", mean, m.Step()); err != nil {
		return err
	}

	m.mu.Lock()
	if phase == log.PhaseTraining {
		m.step++
	}
	a, ok := m.phases[phase]
	if !ok {
		a = &accum{}
		m.phases[phase] = a
	}
	a.sum += mean
	a.count++
	env := &CallbackEnv{
		RunID:  m.runID.String(),
		Phase:  phase,
		Step:   m.step,
		Epoch:  m.epoch,
		Time:   time.Now(),
		Losses: out.Losses,
		Mean:   mean,
		Output: out,
	}
	m.mu.Unlock()

	for _, cb := range m.callbacks {
		if err := cb(env); err != nil {
			m.logger.Error("callback failed",
				log.OperationKey, log.OperationObserve,
				log.StepKey, env.Step,
				log.ErrAttrKey, err,
			)
			return err
		}
	}
	if env.StopTraining {
		m.mu.Lock()
		m.stop = true
		m.mu.Unlock()
	}
	return nil
}

// EndEpoch closes the current epoch, feeds its validation mean to early
// stopping and resets the phase accumulators.
func (m *Monitor) EndEpoch() EpochSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := EpochSummary{
		Epoch: m.epoch,
		Train: m.mean(log.PhaseTraining),
		Val:   m.mean(log.PhaseValidation),
	}
	if !math.IsNaN(s.Val) {
		s.Improved, s.Stop = m.early.Update(m.epoch, s.Val)
		if s.Stop {
			m.stop = true
		}
	}
	s.Stop = m.stop

	m.logger.Info("epoch finished",
		log.EpochKey, s.Epoch,
		log.StepKey, m.step,
		"train_loss", s.Train,
		"val_loss", s.Val,
	)
	if s.Stop && m.early.Enabled {
		m.logger.Info("early stopping",
			log.EpochKey, s.Epoch,
			"best_epoch", m.early.BestEpoch,
			"best_val_loss", m.early.BestScore,
		)
	}

	m.phases = make(map[string]*accum)
	m.epoch++
	return s
}

func (m *Monitor) mean(phase string) float64 {
	a, ok := m.phases[phase]
	if !ok {
		return math.NaN()
	}
	return a.mean()
}

// Best returns the best validation loss and its epoch, or (+Inf, -1)
// without early stopping or before any validation epoch.
func (m *Monitor) Best() (float64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.early.Enabled {
		return math.Inf(1), -1
	}
	return m.early.BestScore, m.early.BestEpoch
}
