package emissions

import (
	"math"
	"sort"
)

// Emitter is one historical row ranked by emissions for a year
type Emitter struct {
	Key       EntityKey `json:"entity"`
	Year      int       `json:"year"`
	Emissions float64   `json:"emissions_ktco2"`
}

// Change compares the emissions of one entity between two years. PctChange is signed, a
// reduction is negative.
type Change struct {
	Key       EntityKey `json:"entity"`
	StartYear int       `json:"start_year"`
	EndYear   int       `json:"end_year"`
	Start     float64   `json:"start_emissions_ktco2"`
	End       float64   `json:"end_emissions_ktco2"`
	PctChange float64   `json:"pct_change"`
}

// PctChange returns the relative change in percent rounded to two decimals, NaN for a zero or
// absent start.
func PctChange(start, end float64) float64 {
	if start == 0 || math.IsNaN(start) || math.IsNaN(end) {
		return math.NaN()
	}
	return roundTo((end-start)/start*100, 2)
}

// RankChanges fills PctChange, drops changes without one and keeps the n largest reductions
// when decreasing is set, otherwise the n largest increases.
func RankChanges(changes []Change, n int, decreasing bool) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		c.PctChange = PctChange(c.Start, c.End)
		if math.IsNaN(c.PctChange) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if decreasing {
			return out[i].PctChange < out[j].PctChange
		}
		return out[i].PctChange > out[j].PctChange
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
