// Package store defines the persistence boundaries of the forecaster
package store

import (
	"context"

	"github.com/aouyang1/ghg-forecaster/emissions"
)

// ObservationSource provides the historical series to forecast
type ObservationSource interface {
	ListEntities(ctx context.Context) ([]emissions.EntityKey, error)
	LoadHistory(ctx context.Context, key emissions.EntityKey) ([]emissions.Observation, error)
}

// FailureSink appends failure records of a batch run. Appending nothing is a no-op.
type FailureSink interface {
	AppendFailures(ctx context.Context, runID string, records []emissions.FailureRecord) error
}

// SnapshotSink atomically replaces the forecast snapshot
type SnapshotSink interface {
	ReplaceSnapshot(ctx context.Context, rows []emissions.ForecastRow) error
}

// ObservationWriter replaces the stored history, used by the etl load step
type ObservationWriter interface {
	ReplaceObservations(ctx context.Context, observations []emissions.Observation) error
}

// Query selects one entity and an optional inclusive year range, a zero year is unbounded
type Query struct {
	Key       emissions.EntityKey
	StartYear int
	EndYear   int
}

// Reader serves the read only api queries
type Reader interface {
	ListEntities(ctx context.Context) ([]emissions.EntityKey, error)
	Historical(ctx context.Context, q Query) ([]emissions.Observation, error)
	Forecast(ctx context.Context, q Query) ([]emissions.ForecastRow, error)
	Failures(ctx context.Context, limit int) ([]emissions.LoggedFailure, error)
	TopEmitters(ctx context.Context, year, n int, includeAggregates bool) ([]emissions.Emitter, error)
	Changes(ctx context.Context, startYear, endYear int, sectorPrefix string) ([]emissions.Change, error)
	ForecastChanges(ctx context.Context) ([]emissions.Change, error)
	Ping(ctx context.Context) error
}

type Store interface {
	ObservationSource
	FailureSink
	SnapshotSink
	ObservationWriter
	Reader
	Close() error
}

type NopStore struct{}

func (s *NopStore) ListEntities(ctx context.Context) ([]emissions.EntityKey, error) {
	return nil, nil
}

func (s *NopStore) LoadHistory(ctx context.Context, key emissions.EntityKey) ([]emissions.Observation, error) {
	_ = key
	return nil, nil
}

func (s *NopStore) AppendFailures(ctx context.Context, runID string, records []emissions.FailureRecord) error {
	_ = runID
	_ = records
	return nil
}

func (s *NopStore) ReplaceSnapshot(ctx context.Context, rows []emissions.ForecastRow) error {
	_ = rows
	return nil
}

func (s *NopStore) ReplaceObservations(ctx context.Context, observations []emissions.Observation) error {
	_ = observations
	return nil
}

func (s *NopStore) Historical(ctx context.Context, q Query) ([]emissions.Observation, error) {
	_ = q
	return nil, nil
}

func (s *NopStore) Forecast(ctx context.Context, q Query) ([]emissions.ForecastRow, error) {
	_ = q
	return nil, nil
}

func (s *NopStore) Failures(ctx context.Context, limit int) ([]emissions.LoggedFailure, error) {
	_ = limit
	return nil, nil
}

func (s *NopStore) TopEmitters(ctx context.Context, year, n int, includeAggregates bool) ([]emissions.Emitter, error) {
	_ = year
	_ = n
	_ = includeAggregates
	return nil, nil
}

func (s *NopStore) Changes(ctx context.Context, startYear, endYear int, sectorPrefix string) ([]emissions.Change, error) {
	_ = startYear
	_ = endYear
	_ = sectorPrefix
	return nil, nil
}

func (s *NopStore) ForecastChanges(ctx context.Context) ([]emissions.Change, error) {
	return nil, nil
}

func (s *NopStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *NopStore) Close() error {
	return nil
}
