// Package forecast projects a yearly series a fixed number of years ahead. Strategies are tried
// in order from the most to the least sophisticated and the first one that succeeds wins, so a
// forecast is always produced for valid input.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/aouyang1/ghg-forecaster/timedataset"
)

var (
	ErrInvalidHorizon  = errors.New("horizon must be positive")
	ErrNoStrategies    = errors.New("engine has no strategies")
	ErrLadderExhausted = errors.New("every forecast strategy failed")
	ErrWrongLength     = errors.New("strategy returned the wrong number of values")
	ErrNonFiniteValue  = errors.New("strategy returned a non finite value")
)

// Point is a single forecast year. A NaN value is absent.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// RungFailure records a strategy that was attempted and failed before the winning rung
type RungFailure struct {
	Rung Rung
	Err  error
}

// Result is the outcome of one engine call
type Result struct {
	Points    []Point
	Rung      Rung
	Scores    *Scores
	Synthetic bool
	Failures  []RungFailure
}

func (r *Result) Years() []int {
	if r == nil {
		return nil
	}
	years := make([]int, len(r.Points))
	for i, p := range r.Points {
		years[i] = p.Year
	}
	return years
}

func (r *Result) Values() []float64 {
	if r == nil {
		return nil
	}
	values := make([]float64, len(r.Points))
	for i, p := range r.Points {
		values[i] = p.Value
	}
	return values
}

// Engine runs the strategy ladder for one series at a time. It holds no per call state and is
// safe for concurrent use.
type Engine struct {
	opt    *Options
	ladder []Strategy
}

// New creates an engine with the default ladder. If no options are provided a default is used.
func New(opt *Options) (*Engine, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Engine{
		opt:    opt,
		ladder: NewLadder(opt),
	}, nil
}

// NewWithLadder creates an engine trying the given strategies in order
func NewWithLadder(opt *Options, ladder []Strategy) (*Engine, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	if len(ladder) == 0 {
		return nil, ErrNoStrategies
	}
	return &Engine{
		opt:    opt,
		ladder: append([]Strategy(nil), ladder...),
	}, nil
}

func (e *Engine) Options() *Options {
	if e == nil {
		return nil
	}
	o := *e.opt
	return &o
}

// Forecast normalizes the raw points and returns exactly horizon future points. An empty series
// is not an error and yields absent values for years 1..horizon.
func (e *Engine) Forecast(points []timedataset.Point, horizon int) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)
	}
	ds, err := timedataset.Normalize(points)
	if err != nil {
		if !errors.Is(err, timedataset.ErrEmptySeries) {
			return nil, fmt.Errorf("unable to normalize series, %w", err)
		}
		ds = &timedataset.YearDataset{}
	}
	return e.ForecastDataset(ds, horizon)
}

// ForecastDataset runs the ladder on an already normalized series.
func (e *Engine) ForecastDataset(ds *timedataset.YearDataset, horizon int) (*Result, error) {
	if e == nil || len(e.ladder) == 0 {
		return nil, ErrNoStrategies
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)
	}
	if ds == nil {
		ds = &timedataset.YearDataset{}
	}

	var failures []RungFailure
	for i, s := range e.ladder {
		values, scores, err := s.Attempt(ds, horizon)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err == nil {
			err = checkValues(s.Name(), values, horizon)
		}
		if err != nil {
			failures = append(failures, RungFailure{Rung: s.Name(), Err: err})
			next := "none"
			if i+1 < len(e.ladder) {
				next = string(e.ladder[i+1].Name())
			}
			slog.Warn("forecast strategy failed, falling back",
				"strategy", string(s.Name()), "next", next, "observations", ds.Len(), "error", err.Error())
			continue
		}

		years := timedataset.YearSlice(ds.Years).Future(horizon)
		points := make([]Point, horizon)
		for j := range points {
			points[j] = Point{Year: years[j], Value: values[j]}
		}
		return &Result{
			Points:    points,
			Rung:      s.Name(),
			Scores:    scores,
			Synthetic: ds.Synthetic,
			Failures:  failures,
		}, nil
	}
	return nil, fmt.Errorf("after %d failures, %w", len(failures), ErrLadderExhausted)
}

func checkValues(rung Rung, values []float64, horizon int) error {
	if len(values) != horizon {
		return fmt.Errorf("%s returned %d of %d, %w", rung, len(values), horizon, ErrWrongLength)
	}
	if rung == RungEmpty {
		return nil
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s step %d is %v, %w", rung, i+1, v, ErrNonFiniteValue)
		}
	}
	return nil
}
