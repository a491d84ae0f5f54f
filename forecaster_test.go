package forecaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/forecast"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/aouyang1/ghg-forecaster/store/sqlstore"
	"github.com/aouyang1/ghg-forecaster/timedataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store unavailable")

type memStore struct {
	store.NopStore

	keys    []emissions.EntityKey
	history map[emissions.EntityKey][]emissions.Observation

	mu       sync.Mutex
	runs     []string
	failures []emissions.FailureRecord
	snapshot []emissions.ForecastRow

	listErr     error
	loadErr     error
	appendErr   error
	snapshotErr error
}

func newMemStore(observations ...emissions.Observation) *memStore {
	s := &memStore{history: make(map[emissions.EntityKey][]emissions.Observation)}
	for _, obs := range observations {
		if _, exists := s.history[obs.Key]; !exists {
			s.keys = append(s.keys, obs.Key)
		}
		s.history[obs.Key] = append(s.history[obs.Key], obs)
	}
	return s
}

func (s *memStore) ListEntities(ctx context.Context) ([]emissions.EntityKey, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.keys, nil
}

func (s *memStore) LoadHistory(ctx context.Context, key emissions.EntityKey) ([]emissions.Observation, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.history[key], nil
}

func (s *memStore) AppendFailures(ctx context.Context, runID string, records []emissions.FailureRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, runID)
	s.failures = append(s.failures, records...)
	return nil
}

func (s *memStore) ReplaceSnapshot(ctx context.Context, rows []emissions.ForecastRow) error {
	if s.snapshotErr != nil {
		return s.snapshotErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]emissions.ForecastRow(nil), rows...)
	return nil
}

type engineFunc func(ds *timedataset.YearDataset, horizon int) (*forecast.Result, error)

func (fn engineFunc) ForecastDataset(ds *timedataset.YearDataset, horizon int) (*forecast.Result, error) {
	return fn(ds, horizon)
}

type countingRecorder struct {
	mu       sync.Mutex
	rungs    map[string]int
	failures map[string]int
	batches  int
}

func (r *countingRecorder) ObserveRung(metric, rung string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rungs == nil {
		r.rungs = make(map[string]int)
	}
	r.rungs[metric+"/"+rung]++
}

func (r *countingRecorder) ObserveFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[kind]++
}

func (r *countingRecorder) ObserveBatch(d time.Duration, entities, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
}

type notifierFunc func(ctx context.Context, res *Results) error

func (fn notifierFunc) BatchCompleted(ctx context.Context, res *Results) error {
	return fn(ctx, res)
}

var (
	germany = emissions.EntityKey{Country: "Germany", Sector: "Total (excluding memo items)"}
	france  = emissions.EntityKey{Country: "France", Sector: "Total (excluding memo items)"}
	malta   = emissions.EntityKey{Country: "Malta", Sector: "Waste management"}
)

func observations(key emissions.EntityKey, start int, total, perCapita []float64) []emissions.Observation {
	out := make([]emissions.Observation, len(total))
	for i := range total {
		out[i] = emissions.Observation{
			Year:       start + i,
			Key:        key,
			Population: 1e6,
			Emissions:  total[i],
			PerCapita:  perCapita[i],
		}
	}
	return out
}

func seedStore() *memStore {
	var obs []emissions.Observation
	obs = append(obs, observations(germany, 2018, []float64{1000, 950, 900}, []float64{12, 11.5, 11})...)
	obs = append(obs, observations(france, 2017, []float64{450, 440, 430, 420}, []float64{7, 6.8, 6.6, 6.4})...)
	obs = append(obs, observations(malta, 2019, []float64{3, 2}, []float64{0.5, 0.4})...)
	return newMemStore(obs...)
}

func newTestForecaster(t *testing.T, opt *Options, s *memStore) *Forecaster {
	t.Helper()
	f, err := New(opt, s, s, s, nil)
	require.Nil(t, err)
	return f
}

func TestOptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt      *Options
		expected *Options
		err      error
	}{
		"nil": {
			expected: NewDefaultOptions(),
		},
		"zero values": {
			opt:      &Options{},
			expected: NewDefaultOptions(),
		},
		"parallel": {
			opt: &Options{Horizon: 5, MinHistory: 4, Workers: 8},
			expected: &Options{
				Horizon:       5,
				MinHistory:    4,
				Workers:       8,
				EngineOptions: forecast.NewDefaultOptions(),
			},
		},
		"negative horizon": {
			opt: &Options{Horizon: -1},
			err: ErrInvalidHorizon,
		},
		"negative min history": {
			opt: &Options{MinHistory: -3},
			err: ErrInvalidMinHistory,
		},
		"negative workers": {
			opt: &Options{Workers: -1},
			err: ErrNegativeWorkers,
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

func TestNew(t *testing.T) {
	s := seedStore()

	_, err := New(nil, nil, s, s, nil)
	assert.ErrorIs(t, err, ErrNoSource)
	_, err = New(nil, s, nil, s, nil)
	assert.ErrorIs(t, err, ErrNoFailures)
	_, err = New(nil, s, s, nil, nil)
	assert.ErrorIs(t, err, ErrNoSnapshots)
	_, err = New(&Options{Workers: -2}, s, s, s, nil)
	assert.ErrorIs(t, err, ErrNegativeWorkers)
}

func TestForecastAll(t *testing.T) {
	s := seedStore()
	f := newTestForecaster(t, nil, s)
	rec := &countingRecorder{}
	f.SetRecorder(rec)

	res, err := f.ForecastAll(context.Background(), 3)
	require.Nil(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Horizon)
	assert.Equal(t, 3, res.Entities)
	require.Len(t, res.Rows, 6)
	assert.Equal(t, []emissions.FailureRecord{
		{Key: malta, Reason: emissions.ReasonInsufficientHistory},
	}, res.Failures)

	rows := res.Forecast(germany)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, 2021+i, row.Year)
		assert.Equal(t, germany, row.Key)
	}
	assert.InDeltaSlice(t, []float64{850, 800, 750}, metricValues(rows, emissions.MetricEmissions), 1e-6)
	assert.InDeltaSlice(t, []float64{10.5, 10, 9.5}, metricValues(rows, emissions.MetricPerCapita), 1e-6)

	rows = res.Forecast(france)
	require.Len(t, rows, 3)
	assert.Equal(t, 2021, rows[0].Year)
	assert.InDeltaSlice(t, []float64{410, 400, 390}, metricValues(rows, emissions.MetricEmissions), 1e-6)

	assert.Empty(t, res.Forecast(malta))

	assert.Equal(t, 2, res.Rungs[emissions.MetricEmissions][forecast.RungLinearTrend])
	assert.Equal(t, 2, res.Rungs[emissions.MetricPerCapita][forecast.RungLinearTrend])
	assert.Equal(t, 2, rec.rungs["emissions/linear_trend"])
	assert.Equal(t, 1, rec.failures[emissions.ReasonInsufficientHistory])
	assert.Equal(t, 1, rec.batches)

	// failures are appended but the snapshot is untouched
	assert.Equal(t, []string{res.RunID}, s.runs)
	assert.Len(t, s.failures, 1)
	assert.Nil(t, s.snapshot)
}

func metricValues(rows []emissions.ForecastRow, m emissions.Metric) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row.Value(m)
	}
	return out
}

func TestForecastAllHistory(t *testing.T) {
	testData := map[string]struct {
		observations []emissions.Observation
		horizon      int
		years        []int
		total        []float64
		perCapita    []float64
		failures     []emissions.FailureRecord
	}{
		"per capita below minimum skips entity": {
			observations: observations(germany, 2018,
				[]float64{1000, 950, 900},
				[]float64{12, math.NaN(), 11},
			),
			horizon: 2,
			failures: []emissions.FailureRecord{
				{Key: germany, Reason: emissions.ReasonInsufficientHistory},
			},
		},
		"metric ending earlier is aligned to the entity's last year": {
			observations: observations(germany, 2018,
				[]float64{1000, 950, 900, 850},
				[]float64{12, 11.5, 11, math.NaN()},
			),
			horizon:   3,
			years:     []int{2022, 2023, 2024},
			total:     []float64{800, 750, 700},
			perCapita: []float64{10, 9.5, math.NaN()},
		},
		"empty history": {
			observations: nil,
			horizon:      2,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			s := newMemStore(td.observations...)
			if len(td.observations) == 0 {
				s.keys = []emissions.EntityKey{germany}
				td.failures = []emissions.FailureRecord{
					{Key: germany, Reason: emissions.ReasonInsufficientHistory},
				}
			}
			f := newTestForecaster(t, nil, s)

			res, err := f.ForecastAll(context.Background(), td.horizon)
			require.Nil(t, err)
			if td.failures == nil {
				assert.Empty(t, res.Failures)
			} else {
				assert.Equal(t, td.failures, res.Failures)
			}
			require.Len(t, res.Rows, len(td.years))

			for i, row := range res.Rows {
				assert.Equal(t, td.years[i], row.Year)
				assertFloatEqualWithNaN(t, td.total[i], row.Emissions, 1e-6)
				assertFloatEqualWithNaN(t, td.perCapita[i], row.PerCapita, 1e-6)
			}
		})
	}
}

func assertFloatEqualWithNaN(t *testing.T, expected, actual, delta float64) {
	t.Helper()
	if math.IsNaN(expected) {
		assert.True(t, math.IsNaN(actual), "expected absent value, got %v", actual)
		return
	}
	assert.InDelta(t, expected, actual, delta)
}

func TestForecastAllEngineFailures(t *testing.T) {
	failPerCapita := engineFunc(func(ds *timedataset.YearDataset, horizon int) (*forecast.Result, error) {
		if ds.Values[0] < 100 {
			return nil, errors.New("boom")
		}
		points := make([]forecast.Point, horizon)
		for i := range points {
			points[i] = forecast.Point{Year: ds.LastYear() + i + 1, Value: ds.LastValue()}
		}
		return &forecast.Result{Points: points, Rung: forecast.RungLastValue}, nil
	})
	panicking := engineFunc(func(ds *timedataset.YearDataset, horizon int) (*forecast.Result, error) {
		panic("index out of range")
	})

	testData := map[string]struct {
		engine    SeriesForecaster
		total     []float64
		perCapita []float64
		reasons   []string
	}{
		"per capita error keeps emissions": {
			engine:    failPerCapita,
			total:     []float64{900, 900},
			perCapita: []float64{math.NaN(), math.NaN()},
			reasons:   []string{"percapita_error: boom"},
		},
		"panics are isolated per metric": {
			engine:    panicking,
			total:     []float64{math.NaN(), math.NaN()},
			perCapita: []float64{math.NaN(), math.NaN()},
			reasons: []string{
				"emissions_error: panic while forecasting, index out of range",
				"percapita_error: panic while forecasting, index out of range",
			},
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			s := newMemStore(observations(germany, 2018, []float64{1000, 950, 900}, []float64{12, 11.5, 11})...)
			f := newTestForecaster(t, nil, s)
			f.SetEngine(td.engine)
			rec := &countingRecorder{}
			f.SetRecorder(rec)

			res, err := f.ForecastAll(context.Background(), 2)
			require.Nil(t, err)

			require.Len(t, res.Rows, 2)
			assert.Equal(t, 2021, res.Rows[0].Year)
			assert.Equal(t, 2022, res.Rows[1].Year)
			for i, row := range res.Rows {
				assertFloatEqualWithNaN(t, td.total[i], row.Emissions, 1e-9)
				assertFloatEqualWithNaN(t, td.perCapita[i], row.PerCapita, 1e-9)
			}

			reasons := make([]string, len(res.Failures))
			for i, failure := range res.Failures {
				assert.Equal(t, germany, failure.Key)
				reasons[i] = failure.Reason
			}
			assert.Equal(t, td.reasons, reasons)
			assert.Equal(t, 1, rec.failures["percapita_error"])
		})
	}
}

func TestForecastAllErrors(t *testing.T) {
	testData := map[string]struct {
		setup   func(s *memStore)
		horizon int
		err     error
	}{
		"invalid horizon": {
			horizon: 0,
			err:     ErrInvalidHorizon,
		},
		"list entities": {
			setup:   func(s *memStore) { s.listErr = errStore },
			horizon: 3,
			err:     errStore,
		},
		"load history": {
			setup:   func(s *memStore) { s.loadErr = errStore },
			horizon: 3,
			err:     errStore,
		},
		"append failures": {
			setup:   func(s *memStore) { s.appendErr = errStore },
			horizon: 3,
			err:     errStore,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			for _, workers := range []int{1, 3} {
				s := seedStore()
				if td.setup != nil {
					td.setup(s)
				}
				f := newTestForecaster(t, &Options{Workers: workers}, s)
				_, err := f.ForecastAll(context.Background(), td.horizon)
				assert.ErrorIs(t, err, td.err, "workers %d", workers)
			}
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := newTestForecaster(t, nil, seedStore())
		_, err := f.ForecastAll(ctx, 3)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func simulatedStore(entities, years int) *memStore {
	rng := rand.New(rand.NewPCG(17, 29))
	var obs []emissions.Observation
	for i := range entities {
		key := emissions.EntityKey{Country: fmt.Sprintf("Country %02d", i), Sector: "Total (excluding memo items)"}
		total := timedataset.GenerateRandomWalk(years, 5000, -40, 60, rng)
		perCapita := timedataset.GenerateRandomWalk(years, 9, -0.05, 0.2, rng)
		obs = append(obs, observations(key, 1990, total, perCapita)...)
	}
	return newMemStore(obs...)
}

func TestForecastAllParallel(t *testing.T) {
	s := simulatedStore(12, 30)

	sequential, err := newTestForecaster(t, &Options{Workers: 1}, s).ForecastAll(context.Background(), 5)
	require.Nil(t, err)
	parallel, err := newTestForecaster(t, &Options{Workers: 4}, s).ForecastAll(context.Background(), 5)
	require.Nil(t, err)

	require.Len(t, sequential.Rows, 60)
	assert.Equal(t, sequential.Rows, parallel.Rows)
	assert.Equal(t, sequential.Failures, parallel.Failures)
	assert.Equal(t, sequential.Rungs, parallel.Rungs)
	assert.NotEqual(t, sequential.RunID, parallel.RunID)
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces snapshot and notifies", func(t *testing.T) {
		s := seedStore()
		f := newTestForecaster(t, nil, s)

		var notified *Results
		f.SetNotifier(notifierFunc(func(ctx context.Context, res *Results) error {
			notified = res
			return errors.New("redis down")
		}))

		res, err := f.Run(ctx, 3)
		require.Nil(t, err)
		assert.Equal(t, res.Rows, s.snapshot)
		assert.Same(t, res, notified)
	})

	t.Run("snapshot error", func(t *testing.T) {
		s := seedStore()
		s.snapshotErr = errStore
		f := newTestForecaster(t, nil, s)

		_, err := f.Run(ctx, 3)
		assert.ErrorIs(t, err, errStore)
	})

	t.Run("sqlite", func(t *testing.T) {
		db, err := sqlstore.Open(ctx, sqlstore.DialectSQLite, filepath.Join(t.TempDir(), "emissions.db"))
		require.Nil(t, err)
		defer db.Close()

		seeded := seedStore()
		var all []emissions.Observation
		for _, key := range seeded.keys {
			all = append(all, seeded.history[key]...)
		}
		require.Nil(t, db.ReplaceObservations(ctx, all))

		f, err := New(nil, db, db, db, nil)
		require.Nil(t, err)

		for range 2 {
			res, err := f.Run(ctx, 3)
			require.Nil(t, err)
			assert.Len(t, res.Rows, 6)
		}

		rows, err := db.Forecast(ctx, store.Query{Key: germany})
		require.Nil(t, err)
		assert.InDeltaSlice(t, []float64{850, 800, 750}, metricValues(rows, emissions.MetricEmissions), 1e-6)

		failures, err := db.Failures(ctx, 0)
		require.Nil(t, err)
		require.Len(t, failures, 2)
		assert.Equal(t, malta, failures[0].Key)
		assert.NotEqual(t, failures[0].RunID, failures[1].RunID)
	})
}

func TestResultsTablePrint(t *testing.T) {
	f := newTestForecaster(t, nil, seedStore())
	res, err := f.ForecastAll(context.Background(), 3)
	require.Nil(t, err)

	var buf bytes.Buffer
	require.Nil(t, res.TablePrint(&buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Run: "+res.RunID+"\n"))
	assert.Contains(t, out, "Horizon: 3, Entities: 3, Rows: 6, Failures: 1")
	assert.Contains(t, out, "emissions_per_capita")
	assert.Contains(t, out, "linear_trend")

	var nilRes *Results
	assert.Nil(t, nilRes.TablePrint(&buf))
}

func TestRenderEntity(t *testing.T) {
	history := observations(germany, 2018, []float64{1000, 950, 900}, []float64{12, math.NaN(), 11})
	rows := []emissions.ForecastRow{
		{Year: 2021, Key: germany, Emissions: 850, PerCapita: math.NaN()},
	}

	line := LineMetric("total", emissions.MetricEmissions, history, rows)
	require.Len(t, line.MultiSeries, 2)
	assert.Equal(t, "Historical", line.MultiSeries[0].Name)

	var buf bytes.Buffer
	require.Nil(t, RenderEntity(&buf, germany, history, rows))
	assert.Contains(t, buf.String(), "Germany - Total (excluding memo items) total emissions")
}
