// Package linear trains linear probes on frozen embeddings read from a
// feature store.
package linear

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/Pliploop/MuLOOC/monitor"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Task selects the output link and loss of a probe.
type Task int

const (
	// Multilabel applies an independent sigmoid per output with binary
	// cross-entropy.
	Multilabel Task = iota
	// Multiclass applies a softmax over one-hot targets with cross-entropy.
	Multiclass
	// Regression keeps the raw outputs with a squared error.
	Regression
)

func (t Task) String() string {
	switch t {
	case Multilabel:
		return "multilabel"
	case Multiclass:
		return "multiclass"
	case Regression:
		return "regression"
	default:
		return fmt.Sprintf("Task(%d)", int(t))
	}
}

// ParseTask parses "multilabel", "multiclass" or "regression".
func ParseTask(s string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multilabel", "":
		return Multilabel, nil
	case "multiclass":
		return Multiclass, nil
	case "regression":
		return Regression, nil
	default:
		return Multilabel, errors.NewValidationError("task", "must be 'multilabel', 'multiclass' or 'regression'", s)
	}
}

// EpochLoss holds the losses of one training epoch. Val is NaN when no
// validation set was given.
type EpochLoss struct {
	Epoch int     `yaml:"epoch"`
	Train float64 `yaml:"train"`
	Val   float64 `yaml:"val"`
}

// Probe is a linear map from features to targets trained by full-batch
// gradient descent.
type Probe struct {
	task         Task
	learningRate float64
	epochs       int
	l2           float64
	patience     int
	minDelta     float64
	logger       log.Logger

	Weights   *mat.Dense // NFeatures×NOutputs
	Intercept []float64
	NFeatures int
	NOutputs  int
	// BestEpoch is the epoch whose weights were kept.
	BestEpoch int
	History   []EpochLoss

	fitted bool
}

// NewProbe returns a multilabel probe with a 0.1 step size, 200 epochs and
// a patience of 5 epochs.
func NewProbe(opts ...Option) *Probe {
	p := &Probe{
		task:         Multilabel,
		learningRate: 0.1,
		epochs:       200,
		patience:     5,
		logger:       log.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Task returns the configured task.
func (p *Probe) Task() Task {
	return p.task
}

// IsFitted reports whether Fit has completed.
func (p *Probe) IsFitted() bool {
	return p.fitted
}

// Fit trains on X and Y and monitors the training loss for early stopping.
func (p *Probe) Fit(X, Y mat.Matrix) error {
	return p.FitWithValidation(X, Y, nil, nil)
}

// FitWithValidation trains on X and Y. After every epoch the loss on XVal
// and YVal (the training loss when they are nil) feeds early stopping, and
// the weights of the best epoch are restored when training ends.
func (p *Probe) FitWithValidation(X, Y, XVal, YVal mat.Matrix) error {
	if empty(X) || empty(Y) {
		return errors.NewModelError("Probe.Fit", "empty data", errors.ErrEmptyData)
	}
	r, c := X.Dims()
	ry, k := Y.Dims()
	if ry != r {
		return errors.NewDimensionError("Probe.Fit", r, ry, 0)
	}
	if err := p.checkTargets("Probe.Fit", Y); err != nil {
		return err
	}
	hasVal := !empty(XVal) && !empty(YVal)
	if hasVal {
		vr, vc := XVal.Dims()
		vry, vk := YVal.Dims()
		if vc != c {
			return errors.NewDimensionError("Probe.Fit", c, vc, 1)
		}
		if vry != vr {
			return errors.NewDimensionError("Probe.Fit", vr, vry, 0)
		}
		if vk != k {
			return errors.NewDimensionError("Probe.Fit", k, vk, 1)
		}
	}
	if p.learningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.learningRate)
	}
	if p.epochs <= 0 {
		return errors.NewValidationError("epochs", "must be positive", p.epochs)
	}

	p.NFeatures, p.NOutputs = c, k
	p.Weights = mat.NewDense(c, k, nil)
	p.Intercept = make([]float64, k)
	p.History = p.History[:0]
	p.BestEpoch = -1
	p.fitted = false

	logger := p.logger.With(log.OperationKey, log.OperationProbe, log.ModelNameKey, "linear_probe")
	es := monitor.NewEarlyStopping(p.patience, p.minDelta)
	var bestW *mat.Dense
	var bestB []float64

	for epoch := 0; epoch < p.epochs; epoch++ {
		train := p.step(X, Y)
		if math.IsNaN(train) || math.IsInf(train, 0) {
			return errors.NewNumericalInstabilityError("Probe.Fit", []float64{train}, epoch)
		}
		val := math.NaN()
		var score float64
		if hasVal {
			val = p.lossOf(p.decision(XVal), YVal)
			score = val
		} else {
			score = p.lossOf(p.decision(X), Y)
		}
		p.History = append(p.History, EpochLoss{Epoch: epoch, Train: train, Val: val})
		logger.Debug("probe epoch", log.EpochKey, epoch, log.LossKey, train, "val_loss", val)

		improved, stop := es.Update(epoch, score)
		if improved {
			bestW = mat.DenseCopyOf(p.Weights)
			bestB = append(bestB[:0], p.Intercept...)
			p.BestEpoch = epoch
		}
		if stop {
			logger.Info("early stopping",
				log.EpochKey, epoch,
				"best_epoch", es.BestEpoch,
				"best_loss", es.BestScore,
			)
			break
		}
	}
	if bestW != nil {
		p.Weights = bestW
		p.Intercept = bestB
	} else {
		p.BestEpoch = len(p.History) - 1
	}
	p.fitted = true
	return nil
}

// Predict returns sigmoid probabilities (multilabel), softmax probabilities
// (multiclass) or raw outputs (regression), one row per input row.
func (p *Probe) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := p.checkInput("Probe.Predict", X); err != nil {
		return nil, err
	}
	z := p.decision(X)
	p.link(z)
	return z, nil
}

// Loss returns the mean per-row loss of the probe on X and Y.
func (p *Probe) Loss(X, Y mat.Matrix) (float64, error) {
	if err := p.checkPair("Probe.Loss", X, Y); err != nil {
		return 0, err
	}
	return p.lossOf(p.decision(X), Y), nil
}

// Score returns the accuracy of the arg-max class (multiclass), the
// element-wise accuracy at a 0.5 threshold (multilabel) or the coefficient
// of determination averaged over outputs (regression).
func (p *Probe) Score(X, Y mat.Matrix) (float64, error) {
	if err := p.checkPair("Probe.Score", X, Y); err != nil {
		return 0, err
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	r, k := Y.Dims()

	switch p.task {
	case Multiclass:
		var hits int
		for i := 0; i < r; i++ {
			if floats.MaxIdx(mat.Row(nil, i, pred)) == floats.MaxIdx(mat.Row(nil, i, Y)) {
				hits++
			}
		}
		return float64(hits) / float64(r), nil
	case Multilabel:
		var hits int
		for i := 0; i < r; i++ {
			for j := 0; j < k; j++ {
				if (pred.At(i, j) >= 0.5) == (Y.At(i, j) >= 0.5) {
					hits++
				}
			}
		}
		return float64(hits) / float64(r*k), nil
	default:
		var sum float64
		var used int
		for j := 0; j < k; j++ {
			y := mat.Col(nil, j, Y)
			mean := stat.Mean(y, nil)
			var tss, rss float64
			for i, v := range y {
				tss += (v - mean) * (v - mean)
				d := v - pred.At(i, j)
				rss += d * d
			}
			if tss == 0 {
				continue
			}
			sum += 1 - rss/tss
			used++
		}
		if used == 0 {
			return 0, errors.Newf("total sum of squares is zero")
		}
		return sum / float64(used), nil
	}
}

// GetParams returns the probe hyperparameters.
func (p *Probe) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"task":          p.task.String(),
		"learning_rate": p.learningRate,
		"epochs":        p.epochs,
		"l2":            p.l2,
		"patience":      p.patience,
		"min_delta":     p.minDelta,
	}
}

// step takes one gradient step and returns the loss before it. Every task
// uses its canonical link, so the gradient of the mean loss with respect to
// the outputs is (link(Z) - Y) / n.
func (p *Probe) step(X, Y mat.Matrix) float64 {
	r, _ := X.Dims()
	z := p.decision(X)
	loss := p.lossOf(z, Y)

	p.link(z)
	z.Sub(z, Y)
	z.Scale(1/float64(r), z)

	var grad mat.Dense
	grad.Mul(X.T(), z)
	if p.l2 > 0 {
		var decay mat.Dense
		decay.Scale(p.l2, p.Weights)
		grad.Add(&grad, &decay)
	}
	grad.Scale(p.learningRate, &grad)
	p.Weights.Sub(p.Weights, &grad)
	for j := range p.Intercept {
		p.Intercept[j] -= p.learningRate * mat.Sum(z.ColView(j))
	}
	return loss
}

// decision returns X·W + b.
func (p *Probe) decision(X mat.Matrix) *mat.Dense {
	r, _ := X.Dims()
	z := mat.NewDense(r, p.NOutputs, nil)
	z.Mul(X, p.Weights)
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), p.Intercept)
	}
	return z
}

// link maps decision values to predictions in place.
func (p *Probe) link(z *mat.Dense) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		switch p.task {
		case Multilabel:
			for j, v := range row {
				row[j] = sigmoid(v)
			}
		case Multiclass:
			lse := floats.LogSumExp(row)
			for j, v := range row {
				row[j] = math.Exp(v - lse)
			}
		}
	}
}

func (p *Probe) lossOf(z *mat.Dense, Y mat.Matrix) float64 {
	r, _ := z.Dims()
	var total float64
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		switch p.task {
		case Multilabel:
			for j, v := range row {
				// log(1 + e^v) - v·y without overflow
				total += math.Max(v, 0) - v*Y.At(i, j) + math.Log1p(math.Exp(-math.Abs(v)))
			}
		case Multiclass:
			lse := floats.LogSumExp(row)
			for j, v := range row {
				total += Y.At(i, j) * (lse - v)
			}
		default:
			for j, v := range row {
				d := v - Y.At(i, j)
				total += 0.5 * d * d
			}
		}
	}
	return total / float64(r)
}

func (p *Probe) checkTargets(op string, Y mat.Matrix) error {
	if p.task == Regression {
		return nil
	}
	r, k := Y.Dims()
	if p.task == Multiclass && k < 2 {
		return errors.NewValueError(op, "multiclass targets need at least two columns")
	}
	for i := 0; i < r; i++ {
		for j := 0; j < k; j++ {
			if v := Y.At(i, j); v < 0 || v > 1 {
				return errors.NewValueError(op, fmt.Sprintf("target (%d, %d) = %g outside [0, 1]", i, j, v))
			}
		}
	}
	return nil
}

func (p *Probe) checkInput(op string, X mat.Matrix) error {
	if !p.fitted {
		return errors.NewModelError(op, "not fitted", errors.ErrNotFitted)
	}
	if empty(X) {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if _, c := X.Dims(); c != p.NFeatures {
		return errors.NewDimensionError(op, p.NFeatures, c, 1)
	}
	return nil
}

func (p *Probe) checkPair(op string, X, Y mat.Matrix) error {
	if err := p.checkInput(op, X); err != nil {
		return err
	}
	if empty(Y) {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	r, _ := X.Dims()
	ry, k := Y.Dims()
	if ry != r {
		return errors.NewDimensionError(op, r, ry, 0)
	}
	if k != p.NOutputs {
		return errors.NewDimensionError(op, p.NOutputs, k, 1)
	}
	return nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// empty treats a nil interface and a nil *mat.Dense alike.
func empty(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	if d, ok := m.(*mat.Dense); ok && d == nil {
		return true
	}
	r, c := m.Dims()
	return r == 0 || c == 0
}

// Split shuffles [0, n) with seed and cuts it into train, validation and
// test indices. Set sizes are the fractions of n rounded down; the training
// set must keep at least one index.
func Split(n int, valFraction, testFraction float64, seed uint64) (train, val, test []int, err error) {
	if valFraction < 0 || testFraction < 0 || valFraction+testFraction >= 1 {
		return nil, nil, nil, errors.NewValidationError("fractions", "must be non-negative and sum below 1",
			[]float64{valFraction, testFraction})
	}
	nVal := int(valFraction * float64(n))
	nTest := int(testFraction * float64(n))
	if n-nVal-nTest < 1 {
		return nil, nil, nil, errors.NewModelError("Split", "no training rows", errors.ErrEmptyData)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)
	return perm[nTest+nVal:], perm[nTest : nTest+nVal], perm[:nTest], nil
}

// Rows gathers the rows idx of m. It returns nil when idx is empty.
func Rows(m mat.Matrix, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, src := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(src, j))
		}
	}
	return out
}
