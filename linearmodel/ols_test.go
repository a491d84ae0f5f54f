package linearmodel

import (
	"testing"

	mat_ "github.com/aouyang1/ghg-forecaster/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testModel(t *testing.T, model Model, x, y mat.Matrix, intercept float64, coef []float64, tol float64) {
	err := model.Fit(x, y)
	require.Nil(t, err)

	assert.InDelta(t, intercept, model.Intercept(), tol, "intercept")

	c := model.Coef()
	assert.InDeltaSlice(t, coef, c, tol, "coefficients")

	r2, err := model.Score(x, y)
	require.Nil(t, err)
	assert.InDelta(t, 1.0, r2, tol, "score")
}

func TestOLSOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt      *OLSOptions
		err      error
		expected *OLSOptions
	}{
		"nil": {nil, nil, NewDefaultOLSOptions()},
		"zero tolerance defaults": {
			&OLSOptions{
				FitIntercept: true,
			}, nil,
			&OLSOptions{
				FitIntercept: true,
				SingularTol:  1e-10,
			},
		},
		"negative tolerance": {
			&OLSOptions{
				SingularTol: -1,
			}, ErrInvalidSingularTol, nil,
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

func TestOLSRegression(t *testing.T) {
	tol := 1e-5
	testData := map[string]struct {
		x         [][]float64
		y         []float64
		opt       *OLSOptions
		intercept float64
		coef      []float64
	}{
		"ols model intercept": {
			x: [][]float64{
				{0, 0},
				{3, 5},
				{9, 20},
				{12, 6},
				{15, 10},
			},
			y:         []float64{2, 31, 109, 62, 87},
			intercept: 2.0,
			coef:      []float64{3.0, 4.0},
		},
		"ols model no intercept": {
			x: [][]float64{
				{1, 0, 0},
				{1, 3, 5},
				{1, 9, 20},
				{1, 12, 6},
				{1, 15, 10},
			},
			y: []float64{2, 31, 109, 62, 87},
			opt: &OLSOptions{
				FitIntercept: false,
			},
			intercept: 0.0,
			coef:      []float64{2.0, 3.0, 4.0},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			x, err := mat_.NewDenseFromArray(td.x)
			require.Nil(t, err)

			y := mat.NewDense(len(td.y), 1, td.y)

			model, err := NewOLSRegression(td.opt)
			require.Nil(t, err)

			testModel(t, model, x, y, td.intercept, td.coef, tol)
		})
	}
}

func TestOLSRegressionErrors(t *testing.T) {
	testData := map[string]struct {
		x   [][]float64
		y   []float64
		err error
	}{
		"target mismatch": {
			x:   [][]float64{{1}, {2}},
			y:   []float64{1},
			err: ErrTargetLenMismatch,
		},
		"underdetermined": {
			x:   [][]float64{{1}},
			y:   []float64{1},
			err: ErrUnderdetermined,
		},
		"constant column collinear with intercept": {
			x:   [][]float64{{5}, {5}, {5}},
			y:   []float64{1, 2, 3},
			err: ErrSingularMatrix,
		},
		"duplicate columns": {
			x:   [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
			y:   []float64{1, 2, 3, 4},
			err: ErrSingularMatrix,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			x, err := mat_.NewDenseFromArray(td.x)
			require.Nil(t, err)
			y := mat.NewDense(len(td.y), 1, td.y)

			model, err := NewOLSRegression(nil)
			require.Nil(t, err)
			assert.ErrorIs(t, model.Fit(x, y), td.err)

			_, err = model.Predict(x)
			assert.ErrorIs(t, err, ErrNotFitted)
		})
	}
}

func BenchmarkOLSRegression(b *testing.B) {
	data := make([][]float64, 1000)
	target := make([]float64, 1000)
	for i := range data {
		data[i] = []float64{float64(i), float64(i * i % 97)}
		target[i] = 3 + 2*float64(i) - 0.5*float64(i*i%97)
	}
	x, err := mat_.NewDenseFromArray(data)
	if err != nil {
		b.Fatal(err)
	}
	y := mat.NewDense(len(target), 1, target)

	for b.Loop() {
		model, err := NewOLSRegression(nil)
		if err != nil {
			b.Error(err)
			continue
		}
		if err := model.Fit(x, y); err != nil {
			b.Error(err)
			continue
		}
	}
}
