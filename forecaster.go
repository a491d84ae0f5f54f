// Package forecaster runs the forecast engine over every stored entity, collects the yearly
// forecast table and the failure records of the run, and replaces the forecast snapshot.
package forecaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/forecast"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/aouyang1/ghg-forecaster/timedataset"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSource    = errors.New("no observation source")
	ErrNoFailures  = errors.New("no failure sink")
	ErrNoSnapshots = errors.New("no snapshot sink")
)

// SeriesForecaster produces exactly horizon future points for one normalized series
type SeriesForecaster interface {
	ForecastDataset(ds *timedataset.YearDataset, horizon int) (*forecast.Result, error)
}

// Recorder observes batch outcomes, see metrics.Batch
type Recorder interface {
	ObserveRung(metric, rung string)
	ObserveFailure(kind string)
	ObserveBatch(d time.Duration, entities, rows int)
}

// Notifier is told about every snapshot that was replaced
type Notifier interface {
	BatchCompleted(ctx context.Context, res *Results) error
}

// Forecaster forecasts every entity of an observation source. Runs are serialized.
type Forecaster struct {
	opt *Options

	engine    SeriesForecaster
	source    store.ObservationSource
	failures  store.FailureSink
	snapshots store.SnapshotSink

	logger   *slog.Logger
	recorder Recorder
	notifier Notifier

	mu sync.Mutex
}

// New creates a Forecaster backed by the default strategy ladder. If no options are provided a
// default is used and a nil logger falls back to the default logger.
func New(opt *Options, source store.ObservationSource, failures store.FailureSink, snapshots store.SnapshotSink, logger *slog.Logger) (*Forecaster, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, fmt.Errorf("unable to validate forecaster options, %w", err)
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if failures == nil {
		return nil, ErrNoFailures
	}
	if snapshots == nil {
		return nil, ErrNoSnapshots
	}
	if logger == nil {
		logger = slog.Default()
	}

	engine, err := forecast.New(opt.EngineOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize forecast engine, %w", err)
	}

	return &Forecaster{
		opt:       opt,
		engine:    engine,
		source:    source,
		failures:  failures,
		snapshots: snapshots,
		logger:    logger.With("component", "forecaster"),
	}, nil
}

// SetEngine replaces the series forecaster used for every metric
func (f *Forecaster) SetEngine(engine SeriesForecaster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engine = engine
}

func (f *Forecaster) SetRecorder(r Recorder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorder = r
}

func (f *Forecaster) SetNotifier(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifier = n
}

func (f *Forecaster) Options() *Options {
	o := *f.opt
	return &o
}

// ForecastAll forecasts every entity and appends the failure records of the run. The snapshot is
// left untouched.
func (f *Forecaster) ForecastAll(ctx context.Context, horizon int) (*Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forecastAll(ctx, horizon)
}

// Run forecasts every entity and replaces the snapshot with the resulting rows
func (f *Forecaster) Run(ctx context.Context, horizon int) (*Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res, err := f.forecastAll(ctx, horizon)
	if err != nil {
		return nil, err
	}
	if err := f.snapshots.ReplaceSnapshot(ctx, res.Rows); err != nil {
		return nil, fmt.Errorf("unable to replace forecast snapshot, %w", err)
	}
	f.logger.Info("forecast snapshot replaced", "run_id", res.RunID, "rows", len(res.Rows))

	if f.notifier != nil {
		if err := f.notifier.BatchCompleted(ctx, res); err != nil {
			f.logger.Warn("unable to notify batch completion", "run_id", res.RunID, "error", err.Error())
		}
	}
	return res, nil
}

type entityOutcome struct {
	rows     []emissions.ForecastRow
	failures []emissions.FailureRecord
	rungs    map[emissions.Metric]forecast.Rung
}

func (f *Forecaster) forecastAll(ctx context.Context, horizon int) (*Results, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)
	}
	start := time.Now()
	runID := uuid.New().String()

	keys, err := f.source.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list entities, %w", err)
	}
	f.logger.Info("forecast batch started",
		"run_id", runID, "entities", len(keys), "horizon", horizon, "workers", f.opt.Workers)

	outcomes := make([]entityOutcome, len(keys))
	if f.opt.Workers <= 1 {
		for i, key := range keys {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i], err = f.forecastEntity(ctx, key, horizon)
			if err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.opt.Workers)
		for i, key := range keys {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out, err := f.forecastEntity(gctx, key, horizon)
				if err != nil {
					return err
				}
				outcomes[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	res := &Results{
		RunID:    runID,
		Horizon:  horizon,
		Entities: len(keys),
		Rows:     make([]emissions.ForecastRow, 0, len(keys)*horizon),
		Failures: []emissions.FailureRecord{},
	}
	for _, out := range outcomes {
		res.Rows = append(res.Rows, out.rows...)
		res.Failures = append(res.Failures, out.failures...)
		for _, m := range emissions.Metrics {
			if rung, ok := out.rungs[m]; ok {
				res.addRung(m, rung)
				if f.recorder != nil {
					f.recorder.ObserveRung(string(m), string(rung))
				}
			}
		}
	}

	if err := f.failures.AppendFailures(ctx, runID, res.Failures); err != nil {
		return nil, fmt.Errorf("unable to append failure records, %w", err)
	}

	res.Duration = time.Since(start)
	if f.recorder != nil {
		f.recorder.ObserveBatch(res.Duration, res.Entities, len(res.Rows))
	}
	f.logger.Info("forecast batch finished",
		"run_id", runID, "rows", len(res.Rows), "failures", len(res.Failures), "duration", res.Duration.String())
	return res, nil
}

// forecastEntity only returns an error for store failures, everything else becomes a failure
// record of the entity.
func (f *Forecaster) forecastEntity(ctx context.Context, key emissions.EntityKey, horizon int) (entityOutcome, error) {
	var out entityOutcome

	history, err := f.source.LoadHistory(ctx, key)
	if err != nil {
		return out, fmt.Errorf("unable to load history of %s, %w", key, err)
	}

	lastYear := math.MinInt
	counts := make(map[emissions.Metric]int, len(emissions.Metrics))
	for _, obs := range history {
		lastYear = max(lastYear, obs.Year)
		for _, m := range emissions.Metrics {
			if v := obs.Value(m); !math.IsNaN(v) && !math.IsInf(v, 0) {
				counts[m]++
			}
		}
	}
	for _, m := range emissions.Metrics {
		if counts[m] < f.opt.MinHistory {
			f.logger.Warn("insufficient history, skipping entity",
				"entity", key.String(), "metric", string(m), "observations", counts[m], "min", f.opt.MinHistory)
			out.failures = append(out.failures, emissions.FailureRecord{
				Key:    key,
				Reason: emissions.ReasonInsufficientHistory,
			})
			f.observeFailure(emissions.ReasonInsufficientHistory)
			return out, nil
		}
	}

	out.rungs = make(map[emissions.Metric]forecast.Rung, len(emissions.Metrics))
	byMetric := make(map[emissions.Metric]map[int]float64, len(emissions.Metrics))
	for _, m := range emissions.Metrics {
		res, err := f.forecastMetric(history, m, horizon)
		if err != nil {
			f.logger.Warn("unable to forecast metric, recording absent values",
				"entity", key.String(), "metric", string(m), "error", err.Error())
			out.failures = append(out.failures, emissions.MetricFailure(key, m, err))
			f.observeFailure(m.FailureKind())
			continue
		}
		out.rungs[m] = res.Rung
		values := make(map[int]float64, len(res.Points))
		for _, p := range res.Points {
			values[p.Year] = p.Value
		}
		byMetric[m] = values
	}

	out.rows = make([]emissions.ForecastRow, horizon)
	for i := range out.rows {
		year := lastYear + i + 1
		out.rows[i] = emissions.ForecastRow{
			Year:      year,
			Key:       key,
			Emissions: lookup(byMetric[emissions.MetricEmissions], year),
			PerCapita: lookup(byMetric[emissions.MetricPerCapita], year),
		}
	}
	return out, nil
}

func lookup(values map[int]float64, year int) float64 {
	if v, ok := values[year]; ok {
		return v
	}
	return math.NaN()
}

// forecastMetric isolates a single metric so a panic inside the engine only affects it
func (f *Forecaster) forecastMetric(history []emissions.Observation, m emissions.Metric, horizon int) (res *forecast.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic while forecasting, %v", r)
		}
	}()

	points := make([]timedataset.Point, len(history))
	for i, obs := range history {
		points[i] = timedataset.Point{Index: obs.Year, Value: obs.Value(m)}
	}
	ds, err := timedataset.Normalize(points)
	if err != nil {
		return nil, fmt.Errorf("unable to normalize series, %w", err)
	}
	return f.engine.ForecastDataset(ds, horizon)
}

func (f *Forecaster) observeFailure(kind string) {
	if f.recorder != nil {
		f.recorder.ObserveFailure(kind)
	}
}
