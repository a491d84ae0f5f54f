package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrResLenMismatch = errors.New("predicted and actual have different lengths")

// Scores tracks the in-sample fit scores of the model that produced a forecast
type Scores struct {
	MSE  float64 `json:"mean_squared_error"`
	MAPE float64 `json:"mean_average_percent_error"`
	R2   float64 `json:"r_squared"`
}

// NewScores calculates the fit scores given the predicted and actual input slice values
func NewScores(predicted, actual []float64) (*Scores, error) {
	mse, err := MSE(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean squared error, %w", err)
	}
	mape, err := MAPE(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean average percent error, %w", err)
	}
	rs, err := RSquared(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("unable to compute r-squared, %w", err)
	}

	return &Scores{
		MSE:  mse,
		MAPE: mape,
		R2:   rs,
	}, nil
}

// pairs drops positions where either side is NaN
func pairs(predicted, actual []float64) ([]float64, []float64, error) {
	if len(predicted) != len(actual) {
		return nil, nil, fmt.Errorf("expected %d, but got %d, %w", len(actual), len(predicted), ErrResLenMismatch)
	}
	p := make([]float64, 0, len(predicted))
	a := make([]float64, 0, len(actual))
	for i := range actual {
		if math.IsNaN(actual[i]) || math.IsNaN(predicted[i]) {
			continue
		}
		p = append(p, predicted[i])
		a = append(a, actual[i])
	}
	return p, a, nil
}

// MSE computes the mean squared error over the non missing pairs. A score of 0 means a perfect
// match with no errors.
func MSE(predicted, actual []float64) (float64, error) {
	p, a, err := pairs(predicted, actual)
	if err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}

	mse := 0.0
	for i := range a {
		mse += (a[i] - p[i]) * (a[i] - p[i])
	}
	return mse / float64(len(a)), nil
}

// MAPE calculates the mean average percent error skipping zero actuals.
// A score of 0 means a perfect match with no errors.
func MAPE(predicted, actual []float64) (float64, error) {
	p, a, err := pairs(predicted, actual)
	if err != nil {
		return 0, err
	}

	mape := 0.0
	cnt := 0
	for i := range a {
		if a[i] == 0 {
			continue
		}
		mape += math.Abs((a[i] - p[i]) / a[i])
		cnt++
	}
	if cnt == 0 {
		return 0, nil
	}
	return mape / float64(cnt), nil
}

// RSquared computes the r squared value between the predicted and actual where 1.0 means perfect
// fit and 0 represents no relationship. A constant actual series scores 1.0.
func RSquared(predicted, actual []float64) (float64, error) {
	p, a, err := pairs(predicted, actual)
	if err != nil {
		return 0, err
	}
	r2 := stat.RSquaredFrom(p, a, nil)
	if math.IsNaN(r2) {
		return 1.0, nil
	}
	return r2, nil
}
