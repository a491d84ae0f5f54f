package timedataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptySeries          = errors.New("no observations left after dropping missing values")
	ErrDuplicateYear        = errors.New("year appears more than once in series")
	ErrDatasetLenMismatch   = errors.New("years have a different length than observations")
	ErrUnrecognizedIndex    = errors.New("index cannot be interpreted as a year")
	ErrUnsupportedIndexType = errors.New("unsupported index type")
)

var (
	yearPattern    = regexp.MustCompile(`^[+-]?\d{1,4}$`)
	quarterPattern = regexp.MustCompile(`^(\d{4})-?[Qq]([1-4])$`)
	monthPattern   = regexp.MustCompile(`^(\d{4})(?:-|M|m)(\d{1,2})$`)

	dateLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.DateTime,
		"2006-01-02T15:04:05",
		time.DateOnly,
		"2006/01/02",
	}
)

// Point is a single raw observation. Index may be a year number, a date or period string,
// or a time.Time. A NaN or infinite Value marks the observation as missing.
type Point struct {
	Index any
	Value float64
}

// YearDataset is a canonical yearly series with strictly ascending unique years.
type YearDataset struct {
	Years  []int
	Values []float64

	// Synthetic is set when at least one index could not be read as a year and the years were
	// replaced by 1..n in input order.
	Synthetic bool
}

// Normalize coerces raw points into an ascending yearly series. Missing values are dropped first,
// ErrEmptySeries is returned if nothing is left.
func Normalize(points []Point) (*YearDataset, error) {
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, ErrEmptySeries
	}

	years := make([]int, len(kept))
	values := make([]float64, len(kept))
	synthetic := false
	for i, p := range kept {
		year, err := ParseYear(p.Index)
		if err != nil {
			slog.Warn("unable to interpret series index as a year, using positional years",
				"index", fmt.Sprintf("%v", p.Index), "position", i, "error", err.Error())
			synthetic = true
			break
		}
		years[i] = year
		values[i] = p.Value
	}

	if synthetic {
		for i, p := range kept {
			years[i] = i + 1
			values[i] = p.Value
		}
		return &YearDataset{Years: years, Values: values, Synthetic: true}, nil
	}

	return newSorted(years, values)
}

// NewYearDataset builds a dataset from already parsed years, dropping missing values and
// sorting by year.
func NewYearDataset(years []int, values []float64) (*YearDataset, error) {
	if len(years) != len(values) {
		return nil, fmt.Errorf(
			"years has length of %d, but values has a length of %d, %w",
			len(years), len(values), ErrDatasetLenMismatch,
		)
	}
	ys := make([]int, 0, len(years))
	vs := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		ys = append(ys, years[i])
		vs = append(vs, v)
	}
	if len(ys) == 0 {
		return nil, ErrEmptySeries
	}
	return newSorted(ys, vs)
}

func newSorted(years []int, values []float64) (*YearDataset, error) {
	idx := make([]int, len(years))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return years[idx[i]] < years[idx[j]]
	})

	ds := &YearDataset{
		Years:  make([]int, len(years)),
		Values: make([]float64, len(values)),
	}
	for i, j := range idx {
		ds.Years[i] = years[j]
		ds.Values[i] = values[j]
		if i > 0 && ds.Years[i] == ds.Years[i-1] {
			return nil, fmt.Errorf("year %d, %w", ds.Years[i], ErrDuplicateYear)
		}
	}
	return ds, nil
}

// Len returns the number of observations
func (ds *YearDataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Years)
}

// LastYear returns the most recent observed year or 0 for an empty dataset.
func (ds *YearDataset) LastYear() int {
	if ds == nil {
		return 0
	}
	return YearSlice(ds.Years).EndYear()
}

// LastValue returns the most recent observed value or NaN for an empty dataset.
func (ds *YearDataset) LastValue() float64 {
	if ds.Len() == 0 {
		return math.NaN()
	}
	return ds.Values[len(ds.Values)-1]
}

func (ds *YearDataset) Copy() *YearDataset {
	if ds == nil {
		return nil
	}
	years := make([]int, len(ds.Years))
	values := make([]float64, len(ds.Values))
	copy(years, ds.Years)
	copy(values, ds.Values)
	return &YearDataset{
		Years:     years,
		Values:    values,
		Synthetic: ds.Synthetic,
	}
}

// ParseYear interprets a raw index as a calendar year.
func ParseYear(index any) (int, error) {
	switch v := index.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return yearFromFloat(float64(v))
	case float64:
		return yearFromFloat(v)
	case time.Time:
		if v.IsZero() {
			return 0, fmt.Errorf("zero time, %w", ErrUnrecognizedIndex)
		}
		return v.Year(), nil
	case *time.Time:
		if v == nil {
			return 0, fmt.Errorf("nil time, %w", ErrUnrecognizedIndex)
		}
		return ParseYear(*v)
	case string:
		return parseYearString(v)
	case fmt.Stringer:
		return parseYearString(v.String())
	case nil:
		return 0, fmt.Errorf("nil index, %w", ErrUnrecognizedIndex)
	default:
		return 0, fmt.Errorf("index of type %T, %w", index, ErrUnsupportedIndexType)
	}
}

func yearFromFloat(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("non integral year %v, %w", v, ErrUnrecognizedIndex)
	}
	return int(v), nil
}

func parseYearString(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty index, %w", ErrUnrecognizedIndex)
	}

	if yearPattern.MatchString(s) {
		return strconv.Atoi(s)
	}
	if m := quarterPattern.FindStringSubmatch(s); m != nil {
		return strconv.Atoi(m[1])
	}
	if m := monthPattern.FindStringSubmatch(s); m != nil {
		month, err := strconv.Atoi(m[2])
		if err != nil || month < 1 || month > 12 {
			return 0, fmt.Errorf("invalid month in %q, %w", s, ErrUnrecognizedIndex)
		}
		return strconv.Atoi(m[1])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return yearFromFloat(f)
	}
	return 0, fmt.Errorf("%q, %w", s, ErrUnrecognizedIndex)
}
