package linearmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrInvalidSingularTol = errors.New("singular tolerance must be positive and finite")

// OLSOptions represents input options to run the OLS Regression
type OLSOptions struct {
	// FitIntercept adds a constant 1.0 feature as the first column if set to true
	FitIntercept bool

	// SingularTol is the smallest allowed ratio between a diagonal entry of R and the largest
	// diagonal entry before the design is treated as rank deficient
	SingularTol float64
}

// Validate runs basic validation on OLS options
func (o *OLSOptions) Validate() (*OLSOptions, error) {
	if o == nil {
		o = NewDefaultOLSOptions()
	}
	if o.SingularTol == 0 {
		o.SingularTol = 1e-10
	}
	if o.SingularTol < 0 || math.IsNaN(o.SingularTol) || math.IsInf(o.SingularTol, 0) {
		return nil, ErrInvalidSingularTol
	}

	return o, nil
}

// NewDefaultOLSOptions returns a default set of OLS Regression options
func NewDefaultOLSOptions() *OLSOptions {
	return &OLSOptions{
		FitIntercept: true,
		SingularTol:  1e-10,
	}
}

// OLSRegression computes ordinary least squares using QR factorization
type OLSRegression struct {
	opt       *OLSOptions
	coef      []float64
	intercept float64
	fitted    bool
}

// NewOLSRegression initializes an ordinary least squares model ready for fitting
func NewOLSRegression(opt *OLSOptions) (*OLSRegression, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &OLSRegression{
		opt: opt,
	}, nil
}

// withIntercept prepends a column of ones to x
func withIntercept(x mat.Matrix) mat.Matrix {
	m, _ := x.Dims()
	ones := mat.NewDense(m, 1, nil)
	for i := 0; i < m; i++ {
		ones.Set(i, 0, 1)
	}
	var out mat.Dense
	out.Augment(ones, x)
	return &out
}

// checkRank rejects a design whose R diagonal has an entry negligible relative to the largest one
func checkRank(qr *mat.QR, n int, tol float64) error {
	var r mat.Dense
	qr.RTo(&r)

	diag := make([]float64, n)
	for i := range diag {
		diag[i] = math.Abs(r.At(i, i))
	}
	largest := floats.Max(diag)
	for i, d := range diag {
		if largest == 0 || d <= tol*largest {
			return fmt.Errorf("column %d is linearly dependent, %w", i, ErrSingularMatrix)
		}
	}
	return nil
}

// Fit the model according to the given training data
func (o *OLSRegression) Fit(x, y mat.Matrix) error {
	if o == nil || o.opt == nil {
		return ErrNoOptions
	}
	if x == nil {
		return ErrNoTrainingMatrix
	}
	if y == nil {
		return ErrNoTargetMatrix
	}
	o.fitted = false

	m, _ := x.Dims()
	if ym, _ := y.Dims(); ym != m {
		return fmt.Errorf("training data has %d rows and target has %d row, %w", m, ym, ErrTargetLenMismatch)
	}
	if o.opt.FitIntercept {
		x = withIntercept(x)
	}
	_, n := x.Dims()
	if m < n {
		return fmt.Errorf("%d observations for %d coefficients, %w", m, n, ErrUnderdetermined)
	}

	var qr mat.QR
	qr.Factorize(x)
	if err := checkRank(&qr, n, o.opt.SingularTol); err != nil {
		return err
	}

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, y); err != nil {
		return fmt.Errorf("unable to solve least squares, %v, %w", err, ErrSingularMatrix)
	}
	c := mat.Col(nil, 0, &sol)

	o.intercept = 0
	if o.opt.FitIntercept {
		o.intercept, c = c[0], c[1:]
	}
	o.coef = c
	o.fitted = true
	return nil
}

// Predict using the OLS model
func (o *OLSRegression) Predict(x mat.Matrix) ([]float64, error) {
	if o == nil || o.opt == nil {
		return nil, ErrNoOptions
	}
	if !o.fitted {
		return nil, ErrNotFitted
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}

	coef := o.coef
	if o.opt.FitIntercept {
		coef = append([]float64{o.intercept}, o.coef...)
		x = withIntercept(x)
	}
	m, n := x.Dims()
	if n != len(coef) {
		return nil, fmt.Errorf("got %d features in design matrix, but expected %d, %w", n, len(coef), ErrFeatureLenMismatch)
	}

	out := mat.NewVecDense(m, nil)
	out.MulVec(x, mat.NewVecDense(n, coef))
	return out.RawVector().Data, nil
}

// Score computes the coefficient of determination of the prediction
func (o *OLSRegression) Score(x, y mat.Matrix) (float64, error) {
	if o == nil || o.opt == nil {
		return 0.0, ErrNoOptions
	}
	if x == nil {
		return 0.0, ErrNoDesignMatrix
	}
	if y == nil {
		return 0.0, ErrNoTargetMatrix
	}

	m, _ := x.Dims()

	ym, _ := y.Dims()
	if m != ym {
		return 0.0, fmt.Errorf("design matrix has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}

	res, err := o.Predict(x)
	if err != nil {
		return 0.0, err
	}

	ySlice := mat.Col(nil, 0, y)

	return stat.RSquaredFrom(res, ySlice, nil), nil
}

// Intercept returns the computed intercept if FitIntercept is set to true. Defaults to 0.0 if not set.
func (o *OLSRegression) Intercept() float64 {
	return o.intercept
}

// Coef returns a slice of the trained coefficients in the same order of the training feature Matrix by column.
func (o *OLSRegression) Coef() []float64 {
	c := make([]float64, len(o.coef))
	copy(c, o.coef)
	return c
}
