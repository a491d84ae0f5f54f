// Package emissions holds the domain records shared by the loader, the batch forecaster, the
// stores and the api. Absent values are NaN in memory, NULL in storage and null in JSON.
package emissions

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var ErrUnknownMetric = errors.New("unknown metric")

// EntityKey identifies one (country, sector) series
type EntityKey struct {
	Country string `json:"country_name"`
	Sector  string `json:"sector_name"`
}

func (k EntityKey) String() string {
	return k.Country + " - " + k.Sector
}

// ParseEntityKey reverses String
func ParseEntityKey(s string) (EntityKey, bool) {
	country, sector, ok := strings.Cut(s, " - ")
	if !ok || country == "" || sector == "" {
		return EntityKey{}, false
	}
	return EntityKey{Country: country, Sector: sector}, true
}

type Metric string

const (
	MetricEmissions Metric = "emissions"
	MetricPerCapita Metric = "emissions_per_capita"
)

var Metrics = []Metric{MetricEmissions, MetricPerCapita}

// Column is the historical column holding the metric
func (m Metric) Column() string {
	switch m {
	case MetricEmissions:
		return "emissions_ktco2"
	case MetricPerCapita:
		return "emissions_per_capita"
	}
	return ""
}

// ForecastColumn is the snapshot column holding the metric
func (m Metric) ForecastColumn() string {
	if c := m.Column(); c != "" {
		return "forecast_" + c
	}
	return ""
}

// FailureKind labels engine failures of the metric in failure reasons
func (m Metric) FailureKind() string {
	switch m {
	case MetricEmissions:
		return "emissions_error"
	case MetricPerCapita:
		return "percapita_error"
	}
	return string(m) + "_error"
}

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricEmissions, MetricPerCapita:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%q, %w", s, ErrUnknownMetric)
}

// Observation is one stored historical row
type Observation struct {
	Year       int
	Key        EntityKey
	Population float64
	Emissions  float64
	PerCapita  float64
}

// Value returns the observation value of the metric
func (o Observation) Value(m Metric) float64 {
	switch m {
	case MetricEmissions:
		return o.Emissions
	case MetricPerCapita:
		return o.PerCapita
	}
	return math.NaN()
}

// Nullable maps an absent value to nil
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FromNullable maps nil to an absent value
func FromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

type observationJSON struct {
	Year        int      `json:"year"`
	CountryName string   `json:"country_name"`
	SectorName  string   `json:"sector_name"`
	Population  *float64 `json:"population"`
	Emissions   *float64 `json:"emissions_ktco2"`
	PerCapita   *float64 `json:"emissions_per_capita"`
}

func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(observationJSON{
		Year:        o.Year,
		CountryName: o.Key.Country,
		SectorName:  o.Key.Sector,
		Population:  Nullable(o.Population),
		Emissions:   Nullable(o.Emissions),
		PerCapita:   Nullable(o.PerCapita),
	})
}

func (o *Observation) UnmarshalJSON(b []byte) error {
	var raw observationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Observation{
		Year:       raw.Year,
		Key:        EntityKey{Country: raw.CountryName, Sector: raw.SectorName},
		Population: FromNullable(raw.Population),
		Emissions:  FromNullable(raw.Emissions),
		PerCapita:  FromNullable(raw.PerCapita),
	}
	return nil
}

// ForecastRow is one snapshot row, the two metric forecasts of an entity zipped by year
type ForecastRow struct {
	Year      int
	Key       EntityKey
	Emissions float64
	PerCapita float64
}

func (r ForecastRow) Value(m Metric) float64 {
	switch m {
	case MetricEmissions:
		return r.Emissions
	case MetricPerCapita:
		return r.PerCapita
	}
	return math.NaN()
}

type forecastRowJSON struct {
	Year        int      `json:"year"`
	CountryName string   `json:"country_name"`
	SectorName  string   `json:"sector_name"`
	Emissions   *float64 `json:"forecast_emissions_ktco2"`
	PerCapita   *float64 `json:"forecast_emissions_per_capita"`
}

func (r ForecastRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(forecastRowJSON{
		Year:        r.Year,
		CountryName: r.Key.Country,
		SectorName:  r.Key.Sector,
		Emissions:   Nullable(r.Emissions),
		PerCapita:   Nullable(r.PerCapita),
	})
}

func (r *ForecastRow) UnmarshalJSON(b []byte) error {
	var raw forecastRowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ForecastRow{
		Year:      raw.Year,
		Key:       EntityKey{Country: raw.CountryName, Sector: raw.SectorName},
		Emissions: FromNullable(raw.Emissions),
		PerCapita: FromNullable(raw.PerCapita),
	}
	return nil
}

const ReasonInsufficientHistory = "insufficient_history"

// FailureRecord notes an entity, or one metric of it, that could not be forecast normally
type FailureRecord struct {
	Key    EntityKey `json:"entity"`
	Reason string    `json:"reason"`
}

// MetricFailure builds the reason recorded when the engine errors on one metric
func MetricFailure(key EntityKey, m Metric, err error) FailureRecord {
	return FailureRecord{
		Key:    key,
		Reason: fmt.Sprintf("%s: %v", m.FailureKind(), err),
	}
}

// LoggedFailure is a failure record as persisted by a batch run
type LoggedFailure struct {
	FailureRecord
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
