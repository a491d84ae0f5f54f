package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
)

// AppendFailures adds the records of one batch run to forecast_failures
func (s *Store) AppendFailures(ctx context.Context, runID string, records []emissions.FailureRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction, %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO forecast_failures (
			country_name, sector_name, reason, run_id, recorded_at
		) VALUES (?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("unable to prepare insert, %w", err)
	}
	defer stmt.Close()

	recordedAt := s.nowFunc().UTC().Format(time.RFC3339Nano)
	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.Key.Country, r.Key.Sector, r.Reason, runID, recordedAt); err != nil {
			return fmt.Errorf("unable to insert failure for %s, %w", r.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit failures, %w", err)
	}
	return nil
}

// Failures returns the most recent failure records first
func (s *Store) Failures(ctx context.Context, limit int) ([]emissions.LoggedFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT country_name, sector_name, reason, run_id, recorded_at
		FROM forecast_failures
		ORDER BY recorded_at DESC, country_name, sector_name
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("unable to list failures, %w", err)
	}
	defer rows.Close()

	var out []emissions.LoggedFailure
	for rows.Next() {
		var (
			f          emissions.LoggedFailure
			recordedAt string
		)
		if err := rows.Scan(&f.Key.Country, &f.Key.Sector, &f.Reason, &f.RunID, &recordedAt); err != nil {
			return nil, err
		}
		if f.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("unable to parse recorded_at %q, %w", recordedAt, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
