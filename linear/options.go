package linear

import (
	"github.com/Pliploop/MuLOOC/pkg/log"
)

// Option is a function that configures a Probe
type Option func(*Probe)

// WithTask sets the output link and loss
func WithTask(task Task) Option {
	return func(p *Probe) {
		p.task = task
	}
}

// WithLearningRate sets the gradient descent step size
func WithLearningRate(lr float64) Option {
	return func(p *Probe) {
		p.learningRate = lr
	}
}

// WithEpochs sets the maximum number of full-batch epochs
func WithEpochs(n int) Option {
	return func(p *Probe) {
		p.epochs = n
	}
}

// WithL2 sets the weight decay applied to the coefficients
func WithL2(alpha float64) Option {
	return func(p *Probe) {
		p.l2 = alpha
	}
}

// WithEarlyStopping stops after patience epochs without a validation loss
// improvement larger than minDelta. A non-positive patience disables it.
func WithEarlyStopping(patience int, minDelta float64) Option {
	return func(p *Probe) {
		p.patience = patience
		p.minDelta = minDelta
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}
