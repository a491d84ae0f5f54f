package forecaster

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/forecast"
)

// Results is the outcome of one batch run. Rows are grouped by entity in listing order and
// ascending by year within an entity.
type Results struct {
	RunID    string                                     `json:"run_id"`
	Horizon  int                                        `json:"horizon"`
	Entities int                                        `json:"entities"`
	Rows     []emissions.ForecastRow                    `json:"rows"`
	Failures []emissions.FailureRecord                  `json:"failures"`
	Rungs    map[emissions.Metric]map[forecast.Rung]int `json:"rungs"`
	Duration time.Duration                              `json:"duration"`
}

func (r *Results) addRung(m emissions.Metric, rung forecast.Rung) {
	if r.Rungs == nil {
		r.Rungs = make(map[emissions.Metric]map[forecast.Rung]int)
	}
	if r.Rungs[m] == nil {
		r.Rungs[m] = make(map[forecast.Rung]int)
	}
	r.Rungs[m][rung]++
}

// Forecast returns the rows of a single entity
func (r *Results) Forecast(key emissions.EntityKey) []emissions.ForecastRow {
	if r == nil {
		return nil
	}
	var rows []emissions.ForecastRow
	for _, row := range r.Rows {
		if row.Key == key {
			rows = append(rows, row)
		}
	}
	return rows
}

// TablePrint writes a summary of the run with the strategy usage per metric
func (r *Results) TablePrint(w io.Writer) error {
	if r == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "Run: %s\n", r.RunID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  Horizon: %d, Entities: %d, Rows: %d, Failures: %d, Duration: %s\n",
		r.Horizon, r.Entities, len(r.Rows), len(r.Failures), r.Duration.Round(time.Millisecond)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "  Metric\tStrategy\tSeries"); err != nil {
		return err
	}
	for _, m := range emissions.Metrics {
		rungs := make([]forecast.Rung, 0, len(r.Rungs[m]))
		for rung := range r.Rungs[m] {
			rungs = append(rungs, rung)
		}
		slices.Sort(rungs)
		for _, rung := range rungs {
			if _, err := fmt.Fprintf(tw, "  %s\t%s\t%d\n", m, rung, r.Rungs[m][rung]); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
