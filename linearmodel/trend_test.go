package linearmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTrend(t *testing.T) {
	tol := 1e-8
	testData := map[string]struct {
		years    []int
		values   []float64
		future   []int
		slope    float64
		expected []float64
		err      error
	}{
		"declining three points": {
			years:    []int{2018, 2019, 2020},
			values:   []float64{1000, 950, 900},
			future:   []int{2021, 2022, 2023},
			slope:    -50,
			expected: []float64{850, 800, 750},
		},
		"gapped years": {
			years:    []int{2000, 2004, 2010},
			values:   []float64{10, 18, 30},
			future:   []int{2011},
			slope:    2,
			expected: []float64{32},
		},
		"flat": {
			years:    []int{1, 2},
			values:   []float64{7, 7},
			future:   []int{3, 4},
			slope:    0,
			expected: []float64{7, 7},
		},
		"single point": {
			years:  []int{2019},
			values: []float64{1},
			err:    ErrUnderdetermined,
		},
		"empty": {
			err: ErrNoTrainingMatrix,
		},
		"length mismatch": {
			years:  []int{2019, 2020},
			values: []float64{1},
			err:    ErrTargetLenMismatch,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			trend, err := FitTrend(td.years, td.values)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.InDelta(t, td.slope, trend.Slope(), tol, "slope")

			res, err := trend.Extrapolate(td.future)
			require.Nil(t, err)
			assert.InDeltaSlice(t, td.expected, res, tol, "extrapolation")
		})
	}
}

func TestTrendNil(t *testing.T) {
	var trend *Trend
	_, err := trend.Extrapolate([]int{1})
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.Equal(t, 0.0, trend.Slope())
}
