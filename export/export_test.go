package export

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	germany = emissions.EntityKey{Country: "Germany", Sector: "Energy"}
	malta   = emissions.EntityKey{Country: "Malta", Sector: "Energy"}
)

type stubSource struct {
	rows     map[emissions.EntityKey][]emissions.ForecastRow
	failures []emissions.LoggedFailure
	err      error
}

func (s *stubSource) ListEntities(ctx context.Context) ([]emissions.EntityKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []emissions.EntityKey{germany, malta}, nil
}

func (s *stubSource) Forecast(ctx context.Context, q store.Query) ([]emissions.ForecastRow, error) {
	return s.rows[q.Key], nil
}

func (s *stubSource) Failures(ctx context.Context, limit int) ([]emissions.LoggedFailure, error) {
	return s.failures[:min(limit, len(s.failures))], nil
}

func newSource() *stubSource {
	return &stubSource{
		rows: map[emissions.EntityKey][]emissions.ForecastRow{
			germany: {
				{Year: 2023, Key: germany, Emissions: 900, PerCapita: 10.5},
				{Year: 2024, Key: germany, Emissions: 850, PerCapita: math.NaN()},
			},
		},
		failures: []emissions.LoggedFailure{
			{
				FailureRecord: emissions.FailureRecord{Key: malta, Reason: emissions.ReasonInsufficientHistory},
				RunID:         "run-1",
				RecordedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	sum, err := Write(context.Background(), &buf, newSource(), 100)
	require.Nil(t, err)
	assert.Equal(t, Summary{ForecastRows: 2, FailureRows: 1}, sum)

	f, err := excelize.OpenReader(&buf)
	require.Nil(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetForecast, SheetFailures}, f.GetSheetList())

	rows, err := f.GetRows(SheetForecast)
	require.Nil(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Country", "Sector", "Year", "Emissions (kt CO2e)", "Per capita (kg)"}, rows[0])
	assert.Equal(t, []string{"Germany", "Energy", "2023", "900", "10.5"}, rows[1])
	assert.Equal(t, []string{"Germany", "Energy", "2024", "850"}, rows[2][:4])

	absent, err := f.GetCellValue(SheetForecast, "E3")
	require.Nil(t, err)
	assert.Empty(t, absent)

	rows, err = f.GetRows(SheetFailures)
	require.Nil(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-03-01T12:00:00Z", "run-1", "Malta", "Energy", "insufficient_history"}, rows[1])
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.xlsx")
	sum, err := WriteFile(context.Background(), path, newSource(), 0)
	require.Nil(t, err)
	assert.Equal(t, 0, sum.FailureRows)

	f, err := excelize.OpenFile(path)
	require.Nil(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetFailures)
	require.Nil(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteError(t *testing.T) {
	boom := errors.New("boom")
	src := newSource()
	src.err = boom

	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, src, 10)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, buf.Len())
}
