package monitor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Pliploop/MuLOOC/metrics"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

// DefaultRenderEvery is the step period of heatmap rendering.
const DefaultRenderEvery = 2000

// CallbackEnv is the state handed to callbacks after each observed batch.
type CallbackEnv struct {
	RunID  string
	Phase  string
	Step   int
	Epoch  int
	Time   time.Time
	Losses map[string]float64
	Mean   float64
	Output *models.LossOutput

	// StopTraining may be set by a callback to request an early stop.
	StopTraining bool
}

// Callback is invoked by a Monitor for every observed batch.
type Callback func(env *CallbackEnv) error

// LogLosses logs the per-matrix losses every period training steps.
func LogLosses(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if env.Phase == log.PhaseTraining && env.Step%period != 0 {
			return nil
		}
		fields := []any{
			log.RunIDKey, env.RunID,
			log.PhaseKey, env.Phase,
			log.StepKey, env.Step,
			log.LossKey, env.Mean,
		}
		for key, v := range env.Losses {
			fields = append(fields, key+"_loss", v)
		}
		logger.Info("losses", fields...)
		return nil
	}
}

// RecordLosses appends every per-matrix loss and the mean, under the key
// "<phase>_loss", to history.
func RecordLosses(history *map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		if *history == nil {
			*history = make(map[string][]float64)
		}
		for key, v := range env.Losses {
			(*history)[key+"_loss"] = append((*history)[key+"_loss"], v)
		}
		name := env.Phase + "_loss"
		(*history)[name] = append((*history)[name], env.Mean)
		return nil
	}
}

// LogDiagnostics logs similarity diagnostics of every loss-bearing matrix
// at debug level every period training steps.
func LogDiagnostics(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if env.Output == nil || env.Phase != log.PhaseTraining || env.Step%period != 0 {
			return nil
		}
		for key, sims := range env.Output.Sims {
			target, ok := env.Output.Matrices.Get(key)
			if !ok {
				continue
			}
			d, err := metrics.Diagnose(sims, target)
			if err != nil {
				return err
			}
			logger.Debug("similarity diagnostics",
				log.StepKey, env.Step,
				log.MatrixKey, key,
				log.PositivesKey, d.Positives,
				"positive_mean", d.PositiveMean,
				"negative_mean", d.NegativeMean,
				"alignment", d.Alignment,
				"retrieval", d.Retrieval,
			)
		}
		return nil
	}
}

// RenderHeatmaps writes the similarity matrix, with its diagonal zeroed, and
// the target matrix of every loss-bearing matrix to dir every `every`
// training steps, starting with step 1.
func RenderHeatmaps(dir string, every int) Callback {
	if every <= 0 {
		every = DefaultRenderEvery
	}
	return func(env *CallbackEnv) error {
		if env.Output == nil || env.Phase != log.PhaseTraining || (env.Step-1)%every != 0 {
			return nil
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithStack(err)
		}
		for key, sims := range env.Output.Sims {
			name := fmt.Sprintf("%s_step%06d", key, env.Step)
			if err := SaveHeatmap(filepath.Join(dir, name+"_similarity.png"),
				ZeroDiagonal(sims), key+" similarity", -1, 1); err != nil {
				return err
			}
			target, ok := env.Output.Matrices.Get(key)
			if !ok {
				continue
			}
			if err := SaveHeatmap(filepath.Join(dir, name+"_target.png"),
				target, key+" target contrastive matrix", 0, 1); err != nil {
				return err
			}
		}
		return nil
	}
}

// TimeLimit requests a stop once maxDuration has elapsed since creation.
func TimeLimit(maxDuration time.Duration) Callback {
	start := time.Now()
	return func(env *CallbackEnv) error {
		if env.Time.Sub(start) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// EarlyStopping tracks a validation loss and signals a stop after Patience
// epochs without an improvement larger than MinDelta.
type EarlyStopping struct {
	Patience        int
	MinDelta        float64
	BestScore       float64
	BestEpoch       int
	RoundsNoImprove int
	Enabled         bool
}

// NewEarlyStopping returns a disabled tracker when patience is not positive.
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	if patience <= 0 {
		return &EarlyStopping{Enabled: false}
	}
	return &EarlyStopping{
		Patience:  patience,
		MinDelta:  math.Abs(minDelta),
		BestScore: math.Inf(1),
		BestEpoch: -1,
		Enabled:   true,
	}
}

// Update records the score of epoch and reports whether training should stop.
// It returns improved=true when the score is a new best.
func (es *EarlyStopping) Update(epoch int, score float64) (improved, stop bool) {
	if !es.Enabled {
		return false, false
	}
	if score < es.BestScore-es.MinDelta {
		es.BestScore = score
		es.BestEpoch = epoch
		es.RoundsNoImprove = 0
		return true, false
	}
	es.RoundsNoImprove++
	return false, es.ShouldStop()
}

// ShouldStop reports whether the patience is exhausted.
func (es *EarlyStopping) ShouldStop() bool {
	if !es.Enabled {
		return false
	}
	return es.RoundsNoImprove >= es.Patience
}
