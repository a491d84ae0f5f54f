// Package arima estimates ARIMA(p,d,q) models by conditional sum of squares and produces
// point forecasts on the original scale of the series.
package arima

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/aouyang1/ghg-forecaster/linearmodel"
	mat_ "github.com/aouyang1/ghg-forecaster/mat"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEstimation               = errors.New("arima estimation failed")
	ErrInsufficientObservations = errors.New("too few observations for arima order")
	ErrDegenerateSeries         = errors.New("differenced series has no variance")
	ErrNonFiniteParams          = errors.New("estimated parameters are not finite")
	ErrNonFiniteForecast        = errors.New("forecast contains non finite values")
	ErrNotFitted                = errors.New("model has not been fit")
	ErrInvalidHorizon           = errors.New("forecast horizon must be positive")
)

const (
	// penalty returned by the objective when the residual recursion blows up
	divergentObjective = 1e10

	minVariance = 1e-12
)

// Model is a fitted ARIMA model
type Model struct {
	order  Order
	method Method

	hasMean bool
	mean    float64
	ar      []float64
	ma      []float64
	sigma2  float64

	w      []float64
	lasts  []float64
	resid  []float64
	status optimize.Status
}

// Fit estimates an ARIMA model of the given order. A mean term is estimated when the series is
// not differenced. Stationarity and invertibility of the estimated polynomials are not enforced.
func Fit(y []float64, order Order, opt *FitOptions) (m *Model, err error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	opt, err = opt.Validate()
	if err != nil {
		return nil, err
	}

	if len(y) < order.MinObservations() {
		return nil, fmt.Errorf(
			"%d observations for order %s needing %d, %w",
			len(y), order, order.MinObservations(), ErrInsufficientObservations,
		)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non finite observation at %d, %w", i, ErrEstimation)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("numerical panic %v, %w", r, ErrEstimation)
		}
	}()

	w, lasts := Difference(y, order.D)
	if v := stat.Variance(w, nil); !(v > minVariance*math.Max(1, stat.Mean(w, nil)*stat.Mean(w, nil))) {
		return nil, fmt.Errorf("variance %g, %w", v, ErrDegenerateSeries)
	}

	m = &Model{
		order:   order,
		method:  opt.Method,
		hasMean: order.D == 0,
		w:       w,
		lasts:   lasts,
	}

	init := m.initialParams()
	obj := func(x []float64) float64 {
		return m.objective(x)
	}

	params := init
	if len(init) > 0 {
		problem := optimize.Problem{
			Func: obj,
		}

		var method optimize.Method
		switch opt.Method {
		case MethodNelderMead:
			method = &optimize.NelderMead{}
		default:
			problem.Grad = func(grad, x []float64) {
				fd.Gradient(grad, obj, x, nil)
			}
			method = &optimize.LBFGS{}
		}

		settings := &optimize.Settings{
			MajorIterations: opt.MaxIterations,
		}
		res, err := optimize.Minimize(problem, init, settings, method)
		switch {
		case err == nil && res != nil && res.Status != optimize.Failure:
			if res.Status == optimize.IterationLimit || res.Status == optimize.FunctionEvaluationLimit {
				slog.Debug("arima optimizer stopped at its limit",
					"method", string(opt.Method), "status", res.Status.String(), "order", order.String())
			}
		case stalled(err) && res != nil && res.F < divergentObjective && !math.IsNaN(res.F):
			// line search could not improve on the best location, keep it
			slog.Debug("arima optimizer stalled",
				"method", string(opt.Method), "error", err.Error(), "order", order.String())
		case err != nil:
			return nil, fmt.Errorf("unable to minimize with %s, %v, %w", opt.Method, err, ErrEstimation)
		default:
			return nil, fmt.Errorf("optimizer status failure with %s, %w", opt.Method, ErrEstimation)
		}
		m.status = res.Status
		params = res.X
	}

	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("with %s, %w", opt.Method, ErrNonFiniteParams)
		}
	}

	m.setParams(params)
	ssr, resid := m.residuals(params)
	if math.IsNaN(ssr) || math.IsInf(ssr, 0) {
		return nil, fmt.Errorf("residual sum of squares %v, %w", ssr, ErrEstimation)
	}
	m.resid = resid
	m.sigma2 = ssr / float64(m.nEff())

	return m, nil
}

func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

func (m *Model) nEff() int {
	return len(m.w) - m.order.P
}

func (m *Model) numParams() int {
	n := m.order.P + m.order.Q
	if m.hasMean {
		n++
	}
	return n
}

// initialParams starts the mean at the sample mean, the autoregressive terms at a least squares
// fit on lagged values and the moving average terms at zero.
func (m *Model) initialParams() []float64 {
	x := make([]float64, m.numParams())
	idx := 0
	mean := 0.0
	if m.hasMean {
		mean = stat.Mean(m.w, nil)
		x[idx] = mean
		idx++
	}

	p := m.order.P
	if p > 0 {
		z := make([]float64, len(m.w))
		copy(z, m.w)
		floats.AddConst(-mean, z)
		if coef, err := lagCoefficients(z, p); err == nil {
			copy(x[idx:idx+p], coef)
		}
	}
	return x
}

func lagCoefficients(z []float64, p int) ([]float64, error) {
	lagX, lagY, err := mat_.NewLagMatrix(z, p)
	if err != nil {
		return nil, err
	}
	ols, err := linearmodel.NewOLSRegression(&linearmodel.OLSOptions{FitIntercept: false})
	if err != nil {
		return nil, err
	}
	if err := ols.Fit(lagX, lagY); err != nil {
		return nil, err
	}
	coef := ols.Coef()
	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) || math.Abs(c) > 10 {
			return nil, ErrNonFiniteParams
		}
	}
	return coef, nil
}

func (m *Model) split(x []float64) (float64, []float64, []float64) {
	idx := 0
	mean := 0.0
	if m.hasMean {
		mean = x[0]
		idx = 1
	}
	ar := x[idx : idx+m.order.P]
	ma := x[idx+m.order.P : idx+m.order.P+m.order.Q]
	return mean, ar, ma
}

func (m *Model) setParams(x []float64) {
	mean, ar, ma := m.split(x)
	m.mean = mean
	m.ar = append([]float64(nil), ar...)
	m.ma = append([]float64(nil), ma...)
}

// residuals runs the conditional recursion with pre-sample errors fixed at zero.
func (m *Model) residuals(x []float64) (float64, []float64) {
	mean, ar, ma := m.split(x)
	n := len(m.w)
	p := m.order.P

	e := make([]float64, n)
	ssr := 0.0
	for t := p; t < n; t++ {
		pred := 0.0
		for i, phi := range ar {
			pred += phi * (m.w[t-1-i] - mean)
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				pred += theta * e[t-1-j]
			}
		}
		e[t] = (m.w[t] - mean) - pred
		ssr += e[t] * e[t]
	}
	return ssr, e
}

// objective is the concentrated gaussian negative log likelihood of the conditional residuals
func (m *Model) objective(x []float64) float64 {
	ssr, _ := m.residuals(x)
	if math.IsNaN(ssr) || math.IsInf(ssr, 0) {
		return divergentObjective
	}
	nEff := float64(m.nEff())
	return 0.5 * nEff * math.Log(math.Max(ssr/nEff, 1e-300))
}

// Forecast returns the next horizon values on the original scale of the series.
func (m *Model) Forecast(horizon int) ([]float64, error) {
	if m == nil || m.w == nil {
		return nil, ErrNotFitted
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)
	}

	n := len(m.w)
	z := make([]float64, n, n+horizon)
	for i, v := range m.w {
		z[i] = v - m.mean
	}
	e := make([]float64, n, n+horizon)
	copy(e, m.resid)

	for k := 0; k < horizon; k++ {
		t := n + k
		pred := 0.0
		for i, phi := range m.ar {
			if t-1-i >= 0 {
				pred += phi * z[t-1-i]
			}
		}
		for j, theta := range m.ma {
			if t-1-j >= 0 {
				pred += theta * e[t-1-j]
			}
		}
		z = append(z, pred)
		e = append(e, 0)
	}

	wf := make([]float64, horizon)
	for k := range wf {
		wf[k] = z[n+k] + m.mean
	}
	out := Integrate(wf, m.lasts)
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("at step %d, %w, %w", i+1, ErrNonFiniteForecast, ErrEstimation)
		}
	}
	return out, nil
}

// InSample returns the one step ahead predictions and the matching observations of the
// differenced series from the first fully conditioned step onwards.
func (m *Model) InSample() ([]float64, []float64) {
	if m == nil {
		return nil, nil
	}
	p := m.order.P
	if p >= len(m.w) {
		return []float64{}, []float64{}
	}
	actual := make([]float64, len(m.w)-p)
	predicted := make([]float64, len(m.w)-p)
	for t := p; t < len(m.w); t++ {
		actual[t-p] = m.w[t]
		predicted[t-p] = m.w[t] - m.resid[t]
	}
	return predicted, actual
}

func (m *Model) Order() Order {
	return m.order
}

func (m *Model) Method() Method {
	return m.method
}

// Mean is the estimated process mean of the differenced series, 0 when differenced.
func (m *Model) Mean() float64 {
	return m.mean
}

func (m *Model) AR() []float64 {
	return append([]float64(nil), m.ar...)
}

func (m *Model) MA() []float64 {
	return append([]float64(nil), m.ma...)
}

// Sigma2 is the residual variance
func (m *Model) Sigma2() float64 {
	return m.sigma2
}

func (m *Model) Status() optimize.Status {
	return m.status
}
