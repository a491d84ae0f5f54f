package arima

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder    = errors.New("arima order terms must be non-negative")
	ErrUnknownMethod   = errors.New("unknown optimization method")
	ErrNegativeMaxIter = errors.New("max iterations must be non-negative")
)

// Order holds the autoregressive, differencing and moving average orders of the model
type Order struct {
	P int `json:"p" yaml:"p"`
	D int `json:"d" yaml:"d"`
	Q int `json:"q" yaml:"q"`
}

func (o Order) Validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return fmt.Errorf("got (%d,%d,%d), %w", o.P, o.D, o.Q, ErrInvalidOrder)
	}
	return nil
}

// MinObservations is the smallest series length the order can be estimated from
func (o Order) MinObservations() int {
	return o.P + o.D + o.Q + 1
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

type Method string

const (
	// MethodLBFGS minimizes with L-BFGS using finite difference gradients
	MethodLBFGS Method = "lbfgs"

	// MethodNelderMead minimizes with the derivative free simplex method
	MethodNelderMead Method = "nelder_mead"
)

// FitOptions configures how parameters are estimated
type FitOptions struct {
	Method Method

	// MaxIterations caps the optimizer major iterations, 0 leaves it to the optimizer
	MaxIterations int
}

// NewDefaultFitOptions returns the default estimation options
func NewDefaultFitOptions() *FitOptions {
	return &FitOptions{
		Method: MethodLBFGS,
	}
}

// Validate runs basic validation on the fit options
func (o *FitOptions) Validate() (*FitOptions, error) {
	if o == nil {
		o = NewDefaultFitOptions()
	}
	switch o.Method {
	case "":
		o.Method = MethodLBFGS
	case MethodLBFGS, MethodNelderMead:
	default:
		return nil, fmt.Errorf("%q, %w", o.Method, ErrUnknownMethod)
	}
	if o.MaxIterations < 0 {
		return nil, ErrNegativeMaxIter
	}
	return o, nil
}
