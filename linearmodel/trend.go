package linearmodel

import (
	"fmt"

	mat_ "github.com/aouyang1/ghg-forecaster/mat"
	"gonum.org/v1/gonum/stat"
)

// Trend is a straight line fit of value against year. Years are centered on their mean before
// fitting so large calendar years do not hurt the conditioning of R.
type Trend struct {
	model  *OLSRegression
	center float64
	r2     float64
}

func yearColumn(years []int, center float64) [][]float64 {
	x := make([][]float64, len(years))
	for i, y := range years {
		x[i] = []float64{float64(y) - center}
	}
	return x
}

// FitTrend fits a degree one polynomial to the yearly values
func FitTrend(years []int, values []float64) (*Trend, error) {
	if len(years) != len(values) {
		return nil, fmt.Errorf("got %d years and %d values, %w", len(years), len(values), ErrTargetLenMismatch)
	}
	if len(years) == 0 {
		return nil, ErrNoTrainingMatrix
	}

	fy := make([]float64, len(years))
	for i, y := range years {
		fy[i] = float64(y)
	}
	center := stat.Mean(fy, nil)

	x, err := mat_.NewDenseFromArray(yearColumn(years, center))
	if err != nil {
		return nil, err
	}
	y := mat_.NewColumn(values)

	model, err := NewOLSRegression(NewDefaultOLSOptions())
	if err != nil {
		return nil, err
	}
	if err := model.Fit(x, y); err != nil {
		return nil, fmt.Errorf("unable to fit trend, %w", err)
	}
	r2, err := model.Score(x, y)
	if err != nil {
		return nil, fmt.Errorf("unable to score trend, %w", err)
	}

	return &Trend{
		model:  model,
		center: center,
		r2:     r2,
	}, nil
}

// Slope is the change in value per year
func (t *Trend) Slope() float64 {
	if t == nil || t.model == nil {
		return 0
	}
	return t.model.Coef()[0]
}

func (t *Trend) R2() float64 {
	if t == nil {
		return 0
	}
	return t.r2
}

// Extrapolate evaluates the fitted line at each of the given years
func (t *Trend) Extrapolate(years []int) ([]float64, error) {
	if t == nil || t.model == nil {
		return nil, ErrNotFitted
	}
	if len(years) == 0 {
		return []float64{}, nil
	}
	x, err := mat_.NewDenseFromArray(yearColumn(years, t.center))
	if err != nil {
		return nil, err
	}
	return t.model.Predict(x)
}
