package emissions

import "math"

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// PerCapita converts kilotonnes and a head count into kilograms per person rounded to two
// decimals. It is absent without a positive population.
func PerCapita(kt, population float64) float64 {
	if math.IsNaN(kt) || math.IsNaN(population) || population <= 0 {
		return math.NaN()
	}
	return roundTo(kt*1e6/population, 2)
}
