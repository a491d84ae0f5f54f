// Package etl extracts the inventory and population from eurostat, derives the stored
// observations and loads them, optionally followed by a forecast batch.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aouyang1/ghg-forecaster"
	"github.com/aouyang1/ghg-forecaster/eurostat"
	"github.com/aouyang1/ghg-forecaster/store"
)

var (
	ErrInvalidYears = errors.New("start year must not be after end year")
	ErrNoRows       = errors.New("transform produced no rows")
)

type Options struct {
	StartYear int      `yaml:"start_year" envconfig:"START_YEAR"`
	EndYear   int      `yaml:"end_year" envconfig:"END_YEAR"`
	Geo       []string `yaml:"geo" envconfig:"GEO"`
}

func NewDefaultOptions() *Options {
	return &Options{
		StartYear: 1990,
		EndYear:   2023,
	}
}

func (o *Options) Validate() (*Options, error) {
	if o == nil {
		return NewDefaultOptions(), nil
	}
	out := *o
	def := NewDefaultOptions()
	if out.StartYear == 0 {
		out.StartYear = def.StartYear
	}
	if out.EndYear == 0 {
		out.EndYear = def.EndYear
	}
	if out.StartYear > out.EndYear {
		return nil, fmt.Errorf("%d > %d, %w", out.StartYear, out.EndYear, ErrInvalidYears)
	}
	return &out, nil
}

// Extractor is satisfied by eurostat.Client
type Extractor interface {
	FetchEmissions(ctx context.Context, q eurostat.Query) ([]eurostat.EmissionRecord, error)
	FetchPopulation(ctx context.Context, q eurostat.Query) ([]eurostat.PopulationRecord, error)
}

// Batch is satisfied by forecaster.Forecaster
type Batch interface {
	Run(ctx context.Context, horizon int) (*forecaster.Results, error)
}

type Pipeline struct {
	opt       *Options
	extractor Extractor
	writer    store.ObservationWriter
	lookups   Lookups
	logger    *slog.Logger
}

func New(opt *Options, extractor Extractor, writer store.ObservationWriter, lookups Lookups, logger *slog.Logger) (*Pipeline, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opt:       opt,
		extractor: extractor,
		writer:    writer,
		lookups:   lookups,
		logger:    logger.With("component", "etl"),
	}, nil
}

// Load extracts, transforms and replaces the stored observations. It returns the number of rows
// loaded.
func (p *Pipeline) Load(ctx context.Context) (int, error) {
	q := eurostat.Query{StartYear: p.opt.StartYear, EndYear: p.opt.EndYear, Geo: p.opt.Geo}

	p.logger.Info("extracting emissions", "start_year", q.StartYear, "end_year", q.EndYear, "geo", len(q.Geo))
	records, err := p.extractor.FetchEmissions(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("unable to extract emissions, %w", err)
	}

	q.Geo = geoCodes(records)
	p.logger.Info("extracting population", "records", len(records), "geo", len(q.Geo))
	population, err := p.extractor.FetchPopulation(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("unable to extract population, %w", err)
	}

	observations := Transform(records, population, p.lookups, p.opt.StartYear, p.opt.EndYear)
	if len(observations) == 0 {
		return 0, ErrNoRows
	}

	if err := p.writer.ReplaceObservations(ctx, observations); err != nil {
		return 0, fmt.Errorf("unable to load observations, %w", err)
	}
	p.logger.Info("observations loaded", "rows", len(observations))
	return len(observations), nil
}

// Run loads the observations and forecasts every entity from them
func (p *Pipeline) Run(ctx context.Context, batch Batch, horizon int) (*forecaster.Results, error) {
	if _, err := p.Load(ctx); err != nil {
		return nil, err
	}
	res, err := batch.Run(ctx, horizon)
	if err != nil {
		return nil, fmt.Errorf("unable to forecast, %w", err)
	}
	return res, nil
}
