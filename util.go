package forecaster

import (
	"io"
	"math"
	"strconv"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echarts leaves a gap for this value
const missing = "-"

func lineValue(v float64) opts.LineData {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return opts.LineData{Value: missing}
	}
	return opts.LineData{Value: v}
}

// LineMetric generates an echart line chart of one metric with the historical values followed by
// the forecast. The forecast series starts at the last historical point so both lines connect.
func LineMetric(title string, m emissions.Metric, history []emissions.Observation, rows []emissions.ForecastRow) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
		charts.WithTooltipOpts(
			opts.Tooltip{
				Trigger: "axis",
			},
		),
	)

	n := len(history) + len(rows)
	xAxis := make([]string, 0, n)
	lineDataActual := make([]opts.LineData, 0, n)
	lineDataForecast := make([]opts.LineData, 0, n)

	for i, obs := range history {
		xAxis = append(xAxis, strconv.Itoa(obs.Year))
		lineDataActual = append(lineDataActual, lineValue(obs.Value(m)))
		if i == len(history)-1 && len(rows) > 0 {
			lineDataForecast = append(lineDataForecast, lineValue(obs.Value(m)))
			continue
		}
		lineDataForecast = append(lineDataForecast, opts.LineData{Value: missing})
	}
	for _, row := range rows {
		xAxis = append(xAxis, strconv.Itoa(row.Year))
		lineDataActual = append(lineDataActual, opts.LineData{Value: missing})
		lineDataForecast = append(lineDataForecast, lineValue(row.Value(m)))
	}

	line.SetXAxis(xAxis).
		AddSeries("Historical", lineDataActual).
		AddSeries("Forecast", lineDataForecast,
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}),
		)
	return line
}

// RenderEntity writes an html page with the total and per capita charts of one entity
func RenderEntity(w io.Writer, key emissions.EntityKey, history []emissions.Observation, rows []emissions.ForecastRow) error {
	page := components.NewPage()
	page.AddCharts(
		LineMetric(key.String()+" total emissions (kt CO2e)", emissions.MetricEmissions, history, rows),
		LineMetric(key.String()+" emissions per capita (kg)", emissions.MetricPerCapita, history, rows),
	)
	return page.Render(w)
}
