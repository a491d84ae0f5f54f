package forecaster

import (
	"errors"
	"fmt"

	"github.com/aouyang1/ghg-forecaster/forecast"
)

var (
	ErrInvalidHorizon    = errors.New("horizon must be positive")
	ErrInvalidMinHistory = errors.New("minimum history must be at least one observation")
	ErrNegativeWorkers   = errors.New("workers must be non-negative")
)

const (
	DefaultHorizon    = 10
	DefaultMinHistory = 3
)

// Options configures a batch run over all entities
type Options struct {
	// Horizon is the number of future years produced per entity when a run does not override it
	Horizon int `json:"horizon" yaml:"horizon" envconfig:"HORIZON"`

	// MinHistory is the number of observations each metric needs before an entity is forecast
	MinHistory int `json:"min_history" yaml:"min_history" envconfig:"MIN_HISTORY"`

	// Workers bounds the entities forecast concurrently, 0 or 1 runs sequentially
	Workers int `json:"workers" yaml:"workers" envconfig:"WORKERS"`

	EngineOptions *forecast.Options `json:"engine" yaml:"engine" envconfig:"ENGINE"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Horizon:       DefaultHorizon,
		MinHistory:    DefaultMinHistory,
		Workers:       1,
		EngineOptions: forecast.NewDefaultOptions(),
	}
}

// Validate fills unset fields with defaults and rejects invalid values. A nil receiver returns the
// default options.
func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o
	if out.Horizon == 0 {
		out.Horizon = DefaultHorizon
	}
	if out.Horizon < 0 {
		return nil, fmt.Errorf("got %d, %w", out.Horizon, ErrInvalidHorizon)
	}
	if out.MinHistory == 0 {
		out.MinHistory = DefaultMinHistory
	}
	if out.MinHistory < 1 {
		return nil, fmt.Errorf("got %d, %w", out.MinHistory, ErrInvalidMinHistory)
	}
	if out.Workers < 0 {
		return nil, fmt.Errorf("got %d, %w", out.Workers, ErrNegativeWorkers)
	}
	if out.Workers == 0 {
		out.Workers = 1
	}
	engineOpt, err := out.EngineOptions.Validate()
	if err != nil {
		return nil, err
	}
	out.EngineOptions = engineOpt
	return &out, nil
}
