package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aouyang1/ghg-forecaster/emissions"
)

// TopEmitters ranks the rows of a year by emissions. Aggregates such as the EU totals are left
// out unless includeAggregates is set.
func (s *Store) TopEmitters(ctx context.Context, year, n int, includeAggregates bool) ([]emissions.Emitter, error) {
	query := `
		SELECT country_name, sector_name, emissions_ktco2
		FROM emissions_data
		WHERE year = ? AND emissions_ktco2 IS NOT NULL`
	if !includeAggregates {
		query += ` AND country_name NOT LIKE 'EU %'`
	}
	query += `
		ORDER BY emissions_ktco2 DESC, country_name, sector_name
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), year, n)
	if err != nil {
		return nil, fmt.Errorf("unable to rank emitters for %d, %w", year, err)
	}
	defer rows.Close()

	var out []emissions.Emitter
	for rows.Next() {
		e := emissions.Emitter{Year: year}
		if err := rows.Scan(&e.Key.Country, &e.Key.Sector, &e.Emissions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Changes pairs the emissions of every entity in startYear and endYear. An empty prefix keeps
// every sector.
func (s *Store) Changes(ctx context.Context, startYear, endYear int, sectorPrefix string) ([]emissions.Change, error) {
	query := `
		SELECT e1.country_name, e1.sector_name, e1.emissions_ktco2, e2.emissions_ktco2
		FROM emissions_data e1
		JOIN emissions_data e2
		  ON e1.country_name = e2.country_name
		 AND e1.sector_name = e2.sector_name
		WHERE e1.year = ? AND e2.year = ?`
	args := []any{startYear, endYear}
	if sectorPrefix != "" {
		query += ` AND e1.sector_name LIKE ?`
		args = append(args, sectorPrefix+"%")
	}
	query += ` ORDER BY e1.country_name, e1.sector_name`

	return s.changes(ctx, query, startYear, endYear, args...)
}

// ForecastChanges pairs the last historical year with the last forecast year for every entity
// present in both tables.
func (s *Store) ForecastChanges(ctx context.Context) ([]emissions.Change, error) {
	var histYear, foreYear sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(year) FROM emissions_data`).Scan(&histYear); err != nil {
		return nil, fmt.Errorf("unable to find last historical year, %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(year) FROM emissions_forecast`).Scan(&foreYear); err != nil {
		return nil, fmt.Errorf("unable to find last forecast year, %w", err)
	}
	if !histYear.Valid || !foreYear.Valid {
		return nil, nil
	}

	query := `
		SELECT h.country_name, h.sector_name, h.emissions_ktco2, f.forecast_emissions_ktco2
		FROM emissions_data h
		JOIN emissions_forecast f
		  ON TRIM(h.country_name) = TRIM(f.country_name)
		 AND TRIM(h.sector_name) = TRIM(f.sector_name)
		WHERE h.year = ? AND f.year = ?
		ORDER BY h.country_name, h.sector_name`
	return s.changes(ctx, query, int(histYear.Int64), int(foreYear.Int64), histYear.Int64, foreYear.Int64)
}

func (s *Store) changes(ctx context.Context, query string, startYear, endYear int, args ...any) ([]emissions.Change, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("unable to compare %d with %d, %w", startYear, endYear, err)
	}
	defer rows.Close()

	var out []emissions.Change
	for rows.Next() {
		var start, end sql.NullFloat64
		c := emissions.Change{StartYear: startYear, EndYear: endYear}
		if err := rows.Scan(&c.Key.Country, &c.Key.Sector, &start, &end); err != nil {
			return nil, err
		}
		c.Start = fromNull(start)
		c.End = fromNull(end)
		out = append(out, c)
	}
	return out, rows.Err()
}
