package timedataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

func GenerateYears(start, n int) []int {
	years := make([]int, 0, n)
	for i := 0; i < n; i++ {
		years = append(years, start+i)
	}
	return years
}

type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

// SetConst overwrites values whose year falls within [start, end).
func (s Series) SetConst(years []int, val float64, start, end int) Series {
	for i := range s {
		if years[i] >= start && years[i] < end {
			s[i] = val
		}
	}
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

func GenerateTrendY(n int, intercept, slope float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, intercept+slope*float64(i))
	}
	return Series(y)
}

func GenerateNoise(n int, scale float64, rng *rand.Rand) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, rng.NormFloat64()*scale)
	}
	return Series(y)
}

// GenerateAR1 simulates x_t = c + phi*x_{t-1} + e_t starting from the process mean.
func GenerateAR1(n int, c, phi, noiseScale float64, rng *rand.Rand) Series {
	y := make([]float64, n)
	prev := c / (1 - phi)
	for i := 0; i < n; i++ {
		prev = c + phi*prev + rng.NormFloat64()*noiseScale
		y[i] = prev
	}
	return Series(y)
}

// GenerateRandomWalk simulates a cumulative sum of noise starting at level.
func GenerateRandomWalk(n int, level, drift, noiseScale float64, rng *rand.Rand) Series {
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		level += drift + rng.NormFloat64()*noiseScale
		y[i] = level
	}
	return Series(y)
}
