package arima

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aouyang1/ghg-forecaster/timedataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifferenceIntegrate(t *testing.T) {
	testData := map[string]struct {
		y          []float64
		d          int
		diffed     []float64
		lasts      []float64
		future     []float64
		integrated []float64
	}{
		"no differencing": {
			y:          []float64{1, 2, 3},
			diffed:     []float64{1, 2, 3},
			lasts:      []float64{},
			future:     []float64{4},
			integrated: []float64{4},
		},
		"first difference": {
			y:          []float64{1, 3, 6, 10},
			d:          1,
			diffed:     []float64{2, 3, 4},
			lasts:      []float64{10},
			future:     []float64{5, 6},
			integrated: []float64{15, 21},
		},
		"second difference": {
			y:          []float64{1, 3, 6, 10},
			d:          2,
			diffed:     []float64{1, 1},
			lasts:      []float64{10, 4},
			future:     []float64{1, 1},
			integrated: []float64{15, 21},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			w, lasts := Difference(td.y, td.d)
			assert.Equal(t, td.diffed, w, "differenced")
			assert.Equal(t, td.lasts, lasts, "lasts")
			assert.Equal(t, td.integrated, Integrate(td.future, lasts), "integrated")
		})
	}
}

func TestOrderValidate(t *testing.T) {
	assert.Nil(t, Order{2, 1, 2}.Validate())
	assert.ErrorIs(t, Order{-1, 0, 0}.Validate(), ErrInvalidOrder)
	assert.ErrorIs(t, Order{0, 0, -2}.Validate(), ErrInvalidOrder)
	assert.Equal(t, 6, Order{2, 1, 2}.MinObservations())
	assert.Equal(t, "(2,1,2)", Order{2, 1, 2}.String())
}

func TestFitOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt      *FitOptions
		expected *FitOptions
		err      error
	}{
		"nil": {
			expected: NewDefaultFitOptions(),
		},
		"empty method": {
			opt:      &FitOptions{MaxIterations: 10},
			expected: &FitOptions{Method: MethodLBFGS, MaxIterations: 10},
		},
		"nelder mead": {
			opt:      &FitOptions{Method: MethodNelderMead, MaxIterations: 500},
			expected: &FitOptions{Method: MethodNelderMead, MaxIterations: 500},
		},
		"unknown method": {
			opt: &FitOptions{Method: "newton"},
			err: ErrUnknownMethod,
		},
		"negative iterations": {
			opt: &FitOptions{MaxIterations: -1},
			err: ErrNegativeMaxIter,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, opt)
		})
	}
}

func TestFitErrors(t *testing.T) {
	testData := map[string]struct {
		y     []float64
		order Order
		err   error
	}{
		"invalid order": {
			y:     []float64{1, 2, 3},
			order: Order{P: -1},
			err:   ErrInvalidOrder,
		},
		"three points default order": {
			y:     []float64{1000, 950, 900},
			order: Order{2, 1, 2},
			err:   ErrInsufficientObservations,
		},
		"constant series": {
			y:     []float64{5, 5, 5, 5, 5, 5, 5},
			order: Order{1, 0, 0},
			err:   ErrDegenerateSeries,
		},
		"perfectly linear series is degenerate once differenced": {
			y:     []float64{10, 8, 6, 4, 2, 0, -2, -4},
			order: Order{2, 1, 2},
			err:   ErrDegenerateSeries,
		},
		"non finite observation": {
			y:     []float64{1, math.NaN(), 3, 4},
			order: Order{1, 0, 0},
			err:   ErrEstimation,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := Fit(td.y, td.order, nil)
			assert.ErrorIs(t, err, td.err)
		})
	}
}

func TestFitAR1(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	y := timedataset.GenerateAR1(400, 2.0, 0.6, 1.0, rng)

	testData := map[string]struct {
		opt *FitOptions
	}{
		"lbfgs":       {opt: &FitOptions{Method: MethodLBFGS}},
		"nelder mead": {opt: &FitOptions{Method: MethodNelderMead, MaxIterations: 500}},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			m, err := Fit(y, Order{1, 0, 0}, td.opt)
			require.Nil(t, err)

			assert.InDelta(t, 0.6, m.AR()[0], 0.1, "phi")
			assert.InDelta(t, 5.0, m.Mean(), 0.5, "mean")
			assert.InDelta(t, 1.0, m.Sigma2(), 0.25, "sigma2")
			assert.Empty(t, m.MA())
			assert.Equal(t, td.opt.Method, m.Method())

			res, err := m.Forecast(50)
			require.Nil(t, err)
			require.Len(t, res, 50)

			// mean reverting forecasts approach the process mean
			assert.InDelta(t, m.Mean(), res[49], 1e-3)

			first := m.Mean() + m.AR()[0]*(y[len(y)-1]-m.Mean())
			assert.InDelta(t, first, res[0], 1e-9)
		})
	}
}

func TestFitRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	y := timedataset.GenerateRandomWalk(30, 100, 0, 2, rng)

	m, err := Fit(y, Order{0, 1, 0}, nil)
	require.Nil(t, err)
	assert.Equal(t, Order{0, 1, 0}, m.Order())

	res, err := m.Forecast(4)
	require.Nil(t, err)
	last := y[len(y)-1]
	assert.InDeltaSlice(t, []float64{last, last, last, last}, res, 1e-9)
}

func TestFitDefaultOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 42))
	y := timedataset.GenerateRandomWalk(34, 4000, -30, 40, rng)

	for _, method := range []Method{MethodLBFGS, MethodNelderMead} {
		t.Run(string(method), func(t *testing.T) {
			m, err := Fit(y, Order{2, 1, 2}, &FitOptions{Method: method, MaxIterations: 500})
			if err != nil {
				assert.ErrorIs(t, err, ErrEstimation)
				return
			}
			res, err := m.Forecast(10)
			require.Nil(t, err)
			require.Len(t, res, 10)
			for _, v := range res {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}

			predicted, actual := m.InSample()
			assert.Len(t, predicted, len(y)-1-2)
			assert.Len(t, actual, len(y)-1-2)
		})
	}
}

func TestForecastErrors(t *testing.T) {
	var m *Model
	_, err := m.Forecast(3)
	assert.ErrorIs(t, err, ErrNotFitted)

	rng := rand.New(rand.NewPCG(1, 2))
	y := timedataset.GenerateAR1(50, 0, 0.3, 1, rng)
	m, err = Fit(y, Order{1, 0, 0}, nil)
	require.Nil(t, err)

	_, err = m.Forecast(0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}
