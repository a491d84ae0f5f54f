package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/aouyang1/ghg-forecaster/arima"
	"github.com/aouyang1/ghg-forecaster/linearmodel"
	"github.com/aouyang1/ghg-forecaster/timedataset"
)

// ErrNotApplicable is returned by a strategy that does not handle the given series. The engine
// moves to the next rung without logging.
var ErrNotApplicable = errors.New("strategy does not apply to series")

type Rung string

const (
	RungEmpty           Rung = "empty"
	RungSingle          Rung = "single"
	RungARIMA           Rung = "arima"
	RungARIMANelderMead Rung = "arima_nelder_mead"
	RungLinearTrend     Rung = "linear_trend"
	RungLastValue       Rung = "last_value"
)

// Strategy is one rung of the degradation ladder. Attempt returns exactly horizon values.
type Strategy interface {
	Name() Rung
	Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error)
}

func repeat(val float64, horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = val
	}
	return out
}

// EmptyStrategy yields an all absent forecast for a series without observations
type EmptyStrategy struct{}

func (EmptyStrategy) Name() Rung { return RungEmpty }

func (EmptyStrategy) Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error) {
	if ds.Len() != 0 {
		return nil, nil, ErrNotApplicable
	}
	return repeat(math.NaN(), horizon), nil, nil
}

// SingleStrategy repeats the only observation of a one point series
type SingleStrategy struct{}

func (SingleStrategy) Name() Rung { return RungSingle }

func (SingleStrategy) Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error) {
	if ds.Len() != 1 {
		return nil, nil, ErrNotApplicable
	}
	return repeat(ds.Values[0], horizon), nil, nil
}

// ARIMAStrategy fits an ARIMA model and forecasts from it
type ARIMAStrategy struct {
	Rung    Rung
	Order   arima.Order
	Options *arima.FitOptions
}

func (s ARIMAStrategy) Name() Rung { return s.Rung }

func (s ARIMAStrategy) Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error) {
	if ds.Len() < 2 {
		return nil, nil, ErrNotApplicable
	}
	model, err := arima.Fit(ds.Values, s.Order, s.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to fit arima%s, %w", s.Order, err)
	}
	values, err := model.Forecast(horizon)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to forecast arima%s, %w", s.Order, err)
	}
	scores, err := NewScores(model.InSample())
	if err != nil {
		return nil, nil, err
	}
	return values, scores, nil
}

// LinearTrendStrategy extrapolates a least squares line through all observations
type LinearTrendStrategy struct{}

func (LinearTrendStrategy) Name() Rung { return RungLinearTrend }

func (LinearTrendStrategy) Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error) {
	switch ds.Len() {
	case 0:
		return nil, nil, ErrNotApplicable
	case 1:
		return repeat(ds.LastValue(), horizon), nil, nil
	}

	trend, err := linearmodel.FitTrend(ds.Years, ds.Values)
	if err != nil {
		return nil, nil, err
	}
	values, err := trend.Extrapolate(timedataset.YearSlice(ds.Years).Future(horizon))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to extrapolate trend, %w", err)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("trend value at step %d is %v, %w", i+1, v, linearmodel.ErrSingularMatrix)
		}
	}
	fitted, err := trend.Extrapolate(ds.Years)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to evaluate trend in sample, %w", err)
	}
	scores, err := NewScores(fitted, ds.Values)
	if err != nil {
		return nil, nil, err
	}
	return values, scores, nil
}

// LastValueStrategy repeats the most recent observation. It never fails on a non empty series.
type LastValueStrategy struct{}

func (LastValueStrategy) Name() Rung { return RungLastValue }

func (LastValueStrategy) Attempt(ds *timedataset.YearDataset, horizon int) ([]float64, *Scores, error) {
	if ds.Len() == 0 {
		return nil, nil, ErrNotApplicable
	}
	return repeat(ds.LastValue(), horizon), nil, nil
}

// NewLadder returns the default ordered strategies for the options
func NewLadder(opt *Options) []Strategy {
	return []Strategy{
		EmptyStrategy{},
		SingleStrategy{},
		ARIMAStrategy{
			Rung:    RungARIMA,
			Order:   opt.Order,
			Options: &arima.FitOptions{Method: arima.MethodLBFGS},
		},
		ARIMAStrategy{
			Rung:  RungARIMANelderMead,
			Order: opt.Order,
			Options: &arima.FitOptions{
				Method:        arima.MethodNelderMead,
				MaxIterations: opt.SecondaryMaxIterations,
			},
		},
		LinearTrendStrategy{},
		LastValueStrategy{},
	}
}
