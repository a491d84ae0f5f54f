package forecast

import (
	"errors"
	"fmt"

	"github.com/aouyang1/ghg-forecaster/arima"
)

var ErrNegativeIterations = errors.New("secondary max iterations must be non-negative")

// Options configures the strategy ladder of the engine
type Options struct {
	// Order used by both arima rungs
	Order arima.Order `json:"order" yaml:"order" envconfig:"ORDER"`

	// SecondaryMaxIterations caps the nelder mead retry of the arima fit
	SecondaryMaxIterations int `json:"secondary_max_iterations" yaml:"secondary_max_iterations" envconfig:"SECONDARY_MAX_ITERATIONS"`
}

// NewDefaultOptions returns an ARIMA(2,1,2) ladder with a 500 iteration nelder mead retry
func NewDefaultOptions() *Options {
	return &Options{
		Order:                  arima.Order{P: 2, D: 1, Q: 2},
		SecondaryMaxIterations: 500,
	}
}

// Validate runs basic validation on the engine options
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		o = NewDefaultOptions()
	}
	if err := o.Order.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine order, %w", err)
	}
	if o.SecondaryMaxIterations < 0 {
		return nil, ErrNegativeIterations
	}
	return o, nil
}
