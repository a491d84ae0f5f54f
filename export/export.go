// Package export writes the forecast snapshot and the failure log to an xlsx workbook
package export

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/xuri/excelize/v2"
)

const (
	SheetForecast = "Forecast"
	SheetFailures = "Failures"

	colWidth = 18
)

var (
	forecastHeader = []any{"Country", "Sector", "Year", "Emissions (kt CO2e)", "Per capita (kg)"}
	failureHeader  = []any{"Recorded at", "Run", "Country", "Sector", "Reason"}
)

// Source is the subset of store.Reader read by the export
type Source interface {
	ListEntities(ctx context.Context) ([]emissions.EntityKey, error)
	Forecast(ctx context.Context, q store.Query) ([]emissions.ForecastRow, error)
	Failures(ctx context.Context, limit int) ([]emissions.LoggedFailure, error)
}

// Summary counts the rows written to each sheet
type Summary struct {
	ForecastRows int
	FailureRows  int
}

// Workbook builds the workbook with every snapshot row and up to failureLimit of the most recent
// failure records, a non positive limit leaves the failures sheet with its header only. Absent
// values are left as empty cells.
func Workbook(ctx context.Context, src Source, failureLimit int) (*excelize.File, Summary, error) {
	var sum Summary

	keys, err := src.ListEntities(ctx)
	if err != nil {
		return nil, sum, fmt.Errorf("unable to list entities, %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetForecast); err != nil {
		return nil, sum, err
	}
	if err := writeHeader(f, SheetForecast, forecastHeader); err != nil {
		return nil, sum, err
	}

	row := 2
	for _, key := range keys {
		rows, err := src.Forecast(ctx, store.Query{Key: key})
		if err != nil {
			return nil, sum, fmt.Errorf("unable to load forecast of %s, %w", key, err)
		}
		for _, r := range rows {
			values := []any{r.Key.Country, r.Key.Sector, r.Year, cellValue(r.Emissions), cellValue(r.PerCapita)}
			if err := setRow(f, SheetForecast, row, values); err != nil {
				return nil, sum, err
			}
			row++
			sum.ForecastRows++
		}
	}

	if _, err := f.NewSheet(SheetFailures); err != nil {
		return nil, sum, err
	}
	if err := writeHeader(f, SheetFailures, failureHeader); err != nil {
		return nil, sum, err
	}
	if failureLimit <= 0 {
		return f, sum, nil
	}
	failures, err := src.Failures(ctx, failureLimit)
	if err != nil {
		return nil, sum, fmt.Errorf("unable to load failures, %w", err)
	}
	for i, rec := range failures {
		values := []any{rec.RecordedAt.UTC().Format(time.RFC3339), rec.RunID, rec.Key.Country, rec.Key.Sector, rec.Reason}
		if err := setRow(f, SheetFailures, i+2, values); err != nil {
			return nil, sum, err
		}
		sum.FailureRows++
	}
	return f, sum, nil
}

// Write streams the workbook to w
func Write(ctx context.Context, w io.Writer, src Source, failureLimit int) (Summary, error) {
	f, sum, err := Workbook(ctx, src, failureLimit)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return sum, fmt.Errorf("unable to write workbook, %w", err)
	}
	return sum, nil
}

// WriteFile saves the workbook at path
func WriteFile(ctx context.Context, path string, src Source, failureLimit int) (Summary, error) {
	f, sum, err := Workbook(ctx, src, failureLimit)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return sum, fmt.Errorf("unable to save workbook to %s, %w", path, err)
	}
	return sum, nil
}

func writeHeader(f *excelize.File, sheet string, header []any) error {
	first, err := excelize.ColumnNumberToName(1)
	if err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, first, last, colWidth); err != nil {
		return err
	}
	return setRow(f, sheet, 1, header)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func cellValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
