package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/store"
)

// ReplaceObservations swaps the whole history for the given rows in one transaction
func (s *Store) ReplaceObservations(ctx context.Context, observations []emissions.Observation) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction, %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM emissions_data`); err != nil {
		return fmt.Errorf("unable to clear emissions_data, %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO emissions_data (
			year, sector_name, country_name, population, emissions_ktco2, emissions_per_capita
		) VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("unable to prepare insert, %w", err)
	}
	defer stmt.Close()

	for _, o := range observations {
		if _, err = stmt.ExecContext(
			ctx,
			o.Year,
			o.Key.Sector,
			o.Key.Country,
			nullable(o.Population),
			nullable(o.Emissions),
			nullable(o.PerCapita),
		); err != nil {
			return fmt.Errorf("unable to insert %s %d, %w", o.Key, o.Year, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit observations, %w", err)
	}
	return nil
}

func (s *Store) ListEntities(ctx context.Context) ([]emissions.EntityKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT country_name, sector_name
		FROM emissions_data
		ORDER BY country_name, sector_name
	`)
	if err != nil {
		return nil, fmt.Errorf("unable to list entities, %w", err)
	}
	defer rows.Close()

	var keys []emissions.EntityKey
	for rows.Next() {
		var k emissions.EntityKey
		if err := rows.Scan(&k.Country, &k.Sector); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// LoadHistory returns every stored row of the entity ordered by year
func (s *Store) LoadHistory(ctx context.Context, key emissions.EntityKey) ([]emissions.Observation, error) {
	return s.Historical(ctx, store.Query{Key: key})
}

func yearRange(q store.Query) (string, []any) {
	clause := ""
	args := []any{q.Key.Country, q.Key.Sector}
	if q.StartYear != 0 {
		clause += " AND year >= ?"
		args = append(args, q.StartYear)
	}
	if q.EndYear != 0 {
		clause += " AND year <= ?"
		args = append(args, q.EndYear)
	}
	return clause, args
}

func (s *Store) Historical(ctx context.Context, q store.Query) ([]emissions.Observation, error) {
	clause, args := yearRange(q)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT year, population, emissions_ktco2, emissions_per_capita
		FROM emissions_data
		WHERE country_name = ? AND sector_name = ?`+clause+`
		ORDER BY year
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("unable to load history of %s, %w", q.Key, err)
	}
	defer rows.Close()

	var out []emissions.Observation
	for rows.Next() {
		var (
			year                         int
			population, total, perCapita sql.NullFloat64
		)
		if err := rows.Scan(&year, &population, &total, &perCapita); err != nil {
			return nil, err
		}
		out = append(out, emissions.Observation{
			Year:       year,
			Key:        q.Key,
			Population: fromNull(population),
			Emissions:  fromNull(total),
			PerCapita:  fromNull(perCapita),
		})
	}
	return out, rows.Err()
}
