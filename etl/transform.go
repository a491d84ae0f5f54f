package etl

import (
	"cmp"
	"log/slog"
	"math"
	"slices"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/eurostat"
)

type geoYear struct {
	geo  string
	year int
}

// Transform joins the inventory with the population of the same country and year and derives the
// per capita emissions. Rows outside the year window, without positive emissions, without a
// population or with an unknown country or sector are dropped.
func Transform(records []eurostat.EmissionRecord, population []eurostat.PopulationRecord, lookups Lookups, startYear, endYear int) []emissions.Observation {
	pop := make(map[geoYear]float64, len(population))
	for _, p := range population {
		if math.IsNaN(p.Population) {
			continue
		}
		pop[geoYear{p.Geo, p.Year}] = p.Population
	}

	var dropped int
	out := make([]emissions.Observation, 0, len(records))
	for _, r := range records {
		if r.Year < startYear || r.Year > endYear {
			continue
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) || r.Value <= 0 {
			continue
		}
		heads, ok := pop[geoYear{r.Geo, r.Year}]
		if !ok || heads <= 0 {
			dropped++
			continue
		}
		country, ok := lookups.Country(r.Geo)
		if !ok {
			dropped++
			continue
		}
		sector, ok := lookups.Sector(r.Sector)
		if !ok {
			dropped++
			continue
		}

		heads = math.Trunc(heads)
		out = append(out, emissions.Observation{
			Year:       r.Year,
			Key:        emissions.EntityKey{Country: country, Sector: sector},
			Population: heads,
			Emissions:  r.Value,
			PerCapita:  emissions.PerCapita(r.Value, heads),
		})
	}
	if dropped > 0 {
		slog.Debug("dropped rows without population or names", "rows", dropped)
	}

	slices.SortFunc(out, func(a, b emissions.Observation) int {
		return cmp.Or(
			cmp.Compare(a.Key.Country, b.Key.Country),
			cmp.Compare(a.Key.Sector, b.Key.Sector),
			cmp.Compare(a.Year, b.Year),
		)
	})
	return out
}

// geoCodes returns the distinct countries of the inventory in ascending order
func geoCodes(records []eurostat.EmissionRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, exists := seen[r.Geo]; exists {
			continue
		}
		seen[r.Geo] = struct{}{}
		out = append(out, r.Geo)
	}
	slices.Sort(out)
	return out
}
