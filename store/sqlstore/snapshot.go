package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/store"
)

// ReplaceSnapshot drops and recreates emissions_forecast with the given rows in one transaction.
// Readers see either the previous snapshot or the new one.
func (s *Store) ReplaceSnapshot(ctx context.Context, rows []emissions.ForecastRow) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction, %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS emissions_forecast`); err != nil {
		return fmt.Errorf("unable to drop emissions_forecast, %w", err)
	}
	if _, err = tx.ExecContext(ctx, s.snapshotDDL()); err != nil {
		return fmt.Errorf("unable to create emissions_forecast, %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO emissions_forecast (
			year, country_name, sector_name, forecast_emissions_ktco2, forecast_emissions_per_capita
		) VALUES (?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("unable to prepare insert, %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err = stmt.ExecContext(
			ctx,
			r.Year,
			r.Key.Country,
			r.Key.Sector,
			nullable(r.Emissions),
			nullable(r.PerCapita),
		); err != nil {
			return fmt.Errorf("unable to insert forecast %s %d, %w", r.Key, r.Year, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit snapshot, %w", err)
	}
	return nil
}

func (s *Store) Forecast(ctx context.Context, q store.Query) ([]emissions.ForecastRow, error) {
	clause, args := yearRange(q)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT year, forecast_emissions_ktco2, forecast_emissions_per_capita
		FROM emissions_forecast
		WHERE country_name = ? AND sector_name = ?`+clause+`
		ORDER BY year
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("unable to load forecast of %s, %w", q.Key, err)
	}
	defer rows.Close()

	var out []emissions.ForecastRow
	for rows.Next() {
		var (
			year             int
			total, perCapita sql.NullFloat64
		)
		if err := rows.Scan(&year, &total, &perCapita); err != nil {
			return nil, err
		}
		out = append(out, emissions.ForecastRow{
			Year:      year,
			Key:       q.Key,
			Emissions: fromNull(total),
			PerCapita: fromNull(perCapita),
		})
	}
	return out, rows.Err()
}
