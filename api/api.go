// Package api serves the stored history, the forecast snapshot, trend rankings and the failure log
// as json over http.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aouyang1/ghg-forecaster/cache"
	"github.com/aouyang1/ghg-forecaster/metrics"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrMissingParam = errors.New("missing required query parameter")
	ErrInvalidParam = errors.New("invalid query parameter")
	ErrNotFound     = errors.New("not found")
)

const (
	DefaultTopN         = 10
	DefaultFailureLimit = 100
	MaxTopN             = 1000
)

// Options wires the optional collaborators of the server. Nil fields are disabled.
type Options struct {
	Cache    *cache.Service
	Metrics  *metrics.HTTP
	Gatherer prometheus.Gatherer

	// Dashboard is mounted under /dashboard
	Dashboard http.Handler

	RequestTimeout time.Duration
}

func NewDefaultOptions() *Options {
	return &Options{
		RequestTimeout: 30 * time.Second,
	}
}

type Server struct {
	reader store.Reader
	opt    *Options
	cache  *cache.Service
	logger *slog.Logger
}

func New(reader store.Reader, opt *Options, logger *slog.Logger) *Server {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		reader: reader,
		opt:    opt,
		cache:  opt.Cache,
		logger: logger.With("component", "api"),
	}
}

// Routes returns the router of every endpoint
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.opt.Metrics != nil {
		r.Use(s.opt.Metrics.Middleware)
	}
	if s.opt.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opt.RequestTimeout))
	}

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", s.Health)
		r.Get("/entities", s.Entities)
		r.Get("/historical", s.Historical)
		r.Get("/forecast", s.Forecast)
		r.Get("/failures", s.Failures)

		r.Route("/trends", func(r chi.Router) {
			r.Get("/top_emitters", s.TopEmitters)
			r.Get("/decreases", s.Decreases)
			r.Get("/forecast_increases", s.ForecastIncreases)
		})
	})

	if s.opt.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.opt.Gatherer))
	}
	if s.opt.Dashboard != nil {
		r.Mount("/dashboard", s.opt.Dashboard)
	}
	return r
}

// ErrResponse is the body of every error
type ErrResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	detail := "internal server error"
	switch {
	case errors.Is(err, ErrMissingParam), errors.Is(err, ErrInvalidParam):
		status = http.StatusBadRequest
		detail = err.Error()
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		detail = err.Error()
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err.Error())
	}
	render.Status(r, status)
	render.JSON(w, r, ErrResponse{Detail: detail})
}

// detailError carries the client facing detail of a sentinel
type detailError struct {
	detail string
	err    error
}

func (e *detailError) Error() string { return e.detail }
func (e *detailError) Unwrap() error { return e.err }

func notFound(detail string) error {
	return &detailError{detail: detail, err: ErrNotFound}
}

// cached serves key from the cache when present, otherwise loads and stores it. Cache errors only
// cost the cache.
func cached[T any](s *Server, r *http.Request, key string, load func(ctx context.Context) (T, error)) (T, error) {
	ctx := r.Context()
	var v T
	found, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.logger.WarnContext(ctx, "unable to read cache", "key", key, "error", err.Error())
	}
	if found {
		return v, nil
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v, 0); err != nil {
		s.logger.WarnContext(ctx, "unable to write cache", "key", key, "error", err.Error())
	}
	return v, nil
}

func (s *Server) cacheKey(r *http.Request) string {
	return s.cache.Key(r.URL.Path, r.URL.Query().Encode())
}

func requiredString(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%s, %w", name, ErrMissingParam)
	}
	return v, nil
}

func optionalInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, %w", name, ErrInvalidParam)
	}
	return v, nil
}

func requiredInt(r *http.Request, name string) (int, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, fmt.Errorf("%s, %w", name, ErrMissingParam)
	}
	return optionalInt(r, name, 0)
}

func topN(r *http.Request) (int, error) {
	n, err := optionalInt(r, "top_n", DefaultTopN)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > MaxTopN {
		return 0, fmt.Errorf("top_n must be within [1, %d], %w", MaxTopN, ErrInvalidParam)
	}
	return n, nil
}

func optionalBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, %w", name, ErrInvalidParam)
	}
	return v, nil
}

func entityQuery(r *http.Request) (store.Query, error) {
	var q store.Query
	var err error
	if q.Key.Country, err = requiredString(r, "country"); err != nil {
		return q, err
	}
	if q.Key.Sector, err = requiredString(r, "sector"); err != nil {
		return q, err
	}
	if q.StartYear, err = optionalInt(r, "start_year", 0); err != nil {
		return q, err
	}
	if q.EndYear, err = optionalInt(r, "end_year", 0); err != nil {
		return q, err
	}
	return q, nil
}
