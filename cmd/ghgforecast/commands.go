package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aouyang1/ghg-forecaster"
	"github.com/aouyang1/ghg-forecaster/api"
	"github.com/aouyang1/ghg-forecaster/cache"
	"github.com/aouyang1/ghg-forecaster/dashboard"
	"github.com/aouyang1/ghg-forecaster/etl"
	"github.com/aouyang1/ghg-forecaster/eurostat"
	"github.com/aouyang1/ghg-forecaster/export"
	"github.com/aouyang1/ghg-forecaster/metrics"
	"github.com/aouyang1/ghg-forecaster/store/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w, %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected arguments %v, %w", fs.Args(), errUsage)
	}
	return nil
}

func (a *app) openStore(ctx context.Context, wait bool) (*sqlstore.Store, error) {
	db := a.cfg.Database
	dialect := sqlstore.Dialect(db.Dialect)
	if !wait {
		return sqlstore.Open(ctx, dialect, db.DSN)
	}
	return sqlstore.OpenWait(ctx, dialect, db.DSN, db.WaitInterval, db.WaitAttempts, func(err error) {
		a.logger.Warn("database not ready, retrying", "interval", db.WaitInterval.String(), "error", err.Error())
	})
}

// openCache degrades to a disabled cache when redis is unreachable
func (a *app) openCache(ctx context.Context) *cache.Service {
	c, err := cache.New(ctx, a.cfg.Redis.URL, a.cfg.Redis.CacheOptions(), a.logger)
	if err != nil {
		a.logger.Warn("cache unavailable, continuing without it", "error", err.Error())
		return nil
	}
	return c
}

type etlFlags struct {
	start, end int
	geo        string
}

func (f *etlFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.start, "start", 0, "first year to load, 0 uses the config")
	fs.IntVar(&f.end, "end", 0, "last year to load, 0 uses the config")
	fs.StringVar(&f.geo, "geo", "", "comma separated eurostat geo codes, empty loads every country")
}

func (f *etlFlags) options(base etl.Options) *etl.Options {
	opt := base
	if f.start != 0 {
		opt.StartYear = f.start
	}
	if f.end != 0 {
		opt.EndYear = f.end
	}
	if f.geo != "" {
		opt.Geo = nil
		for _, g := range strings.Split(f.geo, ",") {
			if g = strings.TrimSpace(g); g != "" {
				opt.Geo = append(opt.Geo, strings.ToUpper(g))
			}
		}
	}
	return &opt
}

type forecastFlags struct {
	horizon     int
	workers     int
	metricsFile string
}

func (f *forecastFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.horizon, "horizon", 0, "years to forecast, 0 uses the config")
	fs.IntVar(&f.workers, "workers", 0, "entities forecast concurrently, 0 uses the config")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write batch metrics in the prometheus text format to this file")
}

func (a *app) newPipeline(f *etlFlags, st *sqlstore.Store) (*etl.Pipeline, error) {
	client, err := eurostat.New(a.cfg.Eurostat)
	if err != nil {
		return nil, fmt.Errorf("unable to create eurostat client, %w", err)
	}
	p, err := etl.New(f.options(a.cfg.ETL), client, st, etl.DefaultLookups(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w, %w", errUsage, err)
	}
	return p, nil
}

// newForecaster returns the forecaster with its recorder registry and the horizon to run
func (a *app) newForecaster(ctx context.Context, f *forecastFlags, st *sqlstore.Store) (*forecaster.Forecaster, *prometheus.Registry, int, error) {
	opt := a.cfg.Forecast
	if f.workers != 0 {
		opt.Workers = f.workers
	}
	horizon := opt.Horizon
	if f.horizon != 0 {
		horizon = f.horizon
	}
	if horizon < 0 || opt.Workers < 0 {
		return nil, nil, 0, fmt.Errorf("horizon and workers must not be negative, %w", errUsage)
	}

	fc, err := forecaster.New(&opt, st, st, st, a.logger)
	if err != nil {
		return nil, nil, 0, err
	}
	reg := prometheus.NewRegistry()
	fc.SetRecorder(metrics.NewBatch(reg))
	if c := a.openCache(ctx); c.Available() {
		fc.SetNotifier(c)
	}
	return fc, reg, horizon, nil
}

func (a *app) finishForecast(res *forecaster.Results, reg *prometheus.Registry, metricsFile string) error {
	if err := res.TablePrint(a.stdout); err != nil {
		return err
	}
	if metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
		return fmt.Errorf("unable to write metrics file, %w", err)
	}
	return nil
}

func runETL(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("etl")
	var ef etlFlags
	ef.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := a.newPipeline(&ef, st)
	if err != nil {
		return err
	}
	n, err := p.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "loaded %d rows\n", n)
	return nil
}

func runForecast(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("forecast")
	var ff forecastFlags
	ff.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	fc, reg, horizon, err := a.newForecaster(ctx, &ff, st)
	if err != nil {
		return err
	}
	res, err := fc.Run(ctx, horizon)
	if err != nil {
		return err
	}
	return a.finishForecast(res, reg, ff.metricsFile)
}

func runPipeline(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("pipeline")
	var (
		ef etlFlags
		ff forecastFlags
	)
	ef.register(fs)
	ff.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := a.newPipeline(&ef, st)
	if err != nil {
		return err
	}
	fc, reg, horizon, err := a.newForecaster(ctx, &ff, st)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, fc, horizon)
	if err != nil {
		return err
	}
	return a.finishForecast(res, reg, ff.metricsFile)
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("serve")
	wait := fs.Bool("wait", false, "retry until the database accepts connections")
	addr := fs.String("addr", "", "listen address, empty uses the config")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *addr == "" {
		*addr = a.cfg.Server.Addr
	}

	st, err := a.openStore(ctx, *wait)
	if err != nil {
		return err
	}
	defer st.Close()

	c := a.openCache(ctx)
	defer c.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := api.New(st, &api.Options{
		Cache:          c,
		Metrics:        metrics.NewHTTP(reg),
		Gatherer:       reg,
		Dashboard:      dashboard.New(st, a.logger).Routes(),
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}, a.logger)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down, %w", err)
	}
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("export")
	out := fs.String("out", "", "xlsx file to write")
	failures := fs.Int("failures", api.DefaultFailureLimit, "most recent failure records to include")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *out == "" || *failures < 0 {
		fs.Usage()
		return fmt.Errorf("-out is required and -failures must not be negative, %w", errUsage)
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	sum, err := export.WriteFile(ctx, *out, st, *failures)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %d forecast rows and %d failures to %s in %s\n",
		sum.ForecastRows, sum.FailureRows, *out, time.Since(start).Round(time.Millisecond))
	return nil
}
