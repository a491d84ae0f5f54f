package arima

// Difference returns the series differenced d times along with the last value of every
// intermediate level, which Integrate needs to undo the differencing.
func Difference(y []float64, d int) ([]float64, []float64) {
	w := make([]float64, len(y))
	copy(w, y)

	lasts := make([]float64, 0, d)
	for k := 0; k < d; k++ {
		if len(w) == 0 {
			break
		}
		lasts = append(lasts, w[len(w)-1])
		next := make([]float64, len(w)-1)
		for i := 1; i < len(w); i++ {
			next[i-1] = w[i] - w[i-1]
		}
		w = next
	}
	return w, lasts
}

// Integrate reverses Difference for values that continue the differenced series.
func Integrate(w []float64, lasts []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	for k := len(lasts) - 1; k >= 0; k-- {
		level := lasts[k]
		for i := range out {
			level += out[i]
			out[i] = level
		}
	}
	return out
}
