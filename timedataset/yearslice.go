package timedataset

type YearSlice []int

func (y YearSlice) StartYear() int {
	if len(y) < 1 {
		return 0
	}
	return y[0]
}

func (y YearSlice) EndYear() int {
	if len(y) < 1 {
		return 0
	}
	return y[len(y)-1]
}

// Gaps counts the years missing between the first and last year of an ascending slice.
func (y YearSlice) Gaps() int {
	if len(y) < 2 {
		return 0
	}
	return y.EndYear() - y.StartYear() + 1 - len(y)
}

// Future returns the horizon years following the last year. An empty slice yields 1..horizon.
func (y YearSlice) Future(horizon int) []int {
	if horizon <= 0 {
		return nil
	}
	last := y.EndYear()
	years := make([]int, horizon)
	for i := range horizon {
		years[i] = last + i + 1
	}
	return years
}
