package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrColMismatch  = errors.New("column size mismatch")
	ErrNegativeLags = errors.New("number of lags must be non-negative")
	ErrShortForLags = errors.New("series is too short for the requested lags")
)

// NewDenseFromArray converts a row ordered 2d slice into a dense matrix. Empty input panics
// with mat.ErrZeroLength like gonum does.
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if n < 0 {
		n = 0
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// NewColumn wraps a copy of y as an m x 1 matrix.
func NewColumn(y []float64) *mat.Dense {
	data := make([]float64, len(y))
	copy(data, y)
	return mat.NewDense(len(data), 1, data)
}

// NewLagMatrix builds the autoregressive design for y with the given number of lags. Row i holds
// y[t-1], ..., y[t-lags] for t = lags+i and the returned target holds y[t].
func NewLagMatrix(y []float64, lags int) (*mat.Dense, *mat.Dense, error) {
	if lags < 0 {
		return nil, nil, ErrNegativeLags
	}
	m := len(y) - lags
	if m <= 0 || lags == 0 {
		return nil, nil, fmt.Errorf("%d observations with %d lags, %w", len(y), lags, ErrShortForLags)
	}

	rows := make([][]float64, m)
	for i := 0; i < m; i++ {
		t := lags + i
		row := make([]float64, lags)
		for j := 0; j < lags; j++ {
			row[j] = y[t-1-j]
		}
		rows[i] = row
	}
	x, err := NewDenseFromArray(rows)
	if err != nil {
		return nil, nil, err
	}
	return x, NewColumn(y[lags:]), nil
}
