package eurostat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

var (
	ErrMalformedDataset = errors.New("malformed json-stat dataset")
	ErrUnknownDimension = errors.New("dimension not in dataset")
)

// Dataset is a decoded JSON-stat 2.0 dataset. Values are sparse and keyed by their flat index.
type Dataset struct {
	Label     string
	ID        []string
	Size      []int
	Dimension map[string]Dimension
	Values    map[int]float64

	strides []int
}

type Dimension struct {
	Label string

	// Codes are the category codes ordered by their position
	Codes  []string
	Labels map[string]string
}

// Observation is one value with the category code of every dimension
type Observation struct {
	Categories map[string]string
	Value      float64
}

type rawDataset struct {
	Version   string                  `json:"version"`
	Class     string                  `json:"class"`
	Label     string                  `json:"label"`
	ID        []string                `json:"id"`
	Size      []int                   `json:"size"`
	Dimension map[string]rawDimension `json:"dimension"`
	Value     json.RawMessage         `json:"value"`
}

type rawDimension struct {
	Label    string `json:"label"`
	Category struct {
		Index json.RawMessage   `json:"index"`
		Label map[string]string `json:"label"`
	} `json:"category"`
}

// Decode parses a JSON-stat 2.0 dataset response
func Decode(b []byte) (*Dataset, error) {
	var raw rawDataset
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("unable to decode dataset, %w", err)
	}
	if len(raw.ID) == 0 || len(raw.ID) != len(raw.Size) {
		return nil, fmt.Errorf("%d ids for %d sizes, %w", len(raw.ID), len(raw.Size), ErrMalformedDataset)
	}

	ds := &Dataset{
		Label:     raw.Label,
		ID:        raw.ID,
		Size:      raw.Size,
		Dimension: make(map[string]Dimension, len(raw.ID)),
	}
	for i, id := range raw.ID {
		rd, exists := raw.Dimension[id]
		if !exists {
			return nil, fmt.Errorf("dimension %s, %w", id, ErrMalformedDataset)
		}
		codes, err := decodeIndex(rd.Category.Index, rd.Category.Label)
		if err != nil {
			return nil, fmt.Errorf("dimension %s, %w", id, err)
		}
		if len(codes) != raw.Size[i] {
			return nil, fmt.Errorf("dimension %s has %d categories for size %d, %w",
				id, len(codes), raw.Size[i], ErrMalformedDataset)
		}
		ds.Dimension[id] = Dimension{
			Label:  rd.Label,
			Codes:  codes,
			Labels: rd.Category.Label,
		}
	}

	values, err := decodeValues(raw.Value)
	if err != nil {
		return nil, err
	}
	ds.Values = values

	ds.strides = make([]int, len(ds.Size))
	stride := 1
	for i := len(ds.Size) - 1; i >= 0; i-- {
		ds.strides[i] = stride
		stride *= ds.Size[i]
	}
	for idx := range ds.Values {
		if idx < 0 || idx >= stride {
			return nil, fmt.Errorf("value index %d outside %d cells, %w", idx, stride, ErrMalformedDataset)
		}
	}
	return ds, nil
}

// decodeIndex accepts the object form {"code": position} and the array form ["code", ...]. A
// single category may omit the index and only carry a label.
func decodeIndex(b json.RawMessage, labels map[string]string) ([]string, error) {
	if len(b) == 0 || string(b) == "null" {
		if len(labels) != 1 {
			return nil, fmt.Errorf("no category index, %w", ErrMalformedDataset)
		}
		for code := range labels {
			return []string{code}, nil
		}
	}

	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		return list, nil
	}

	var positions map[string]int
	if err := json.Unmarshal(b, &positions); err != nil {
		return nil, fmt.Errorf("unable to decode category index, %w", ErrMalformedDataset)
	}
	codes := make([]string, len(positions))
	for code, pos := range positions {
		if pos < 0 || pos >= len(codes) || codes[pos] != "" {
			return nil, fmt.Errorf("category %s at position %d, %w", code, pos, ErrMalformedDataset)
		}
		codes[pos] = code
	}
	return codes, nil
}

// decodeValues accepts the sparse object form and the dense array form where null is missing
func decodeValues(b json.RawMessage) (map[int]float64, error) {
	values := make(map[int]float64)
	if len(b) == 0 || string(b) == "null" {
		return values, nil
	}

	var dense []*float64
	if err := json.Unmarshal(b, &dense); err == nil {
		for i, v := range dense {
			if v != nil {
				values[i] = *v
			}
		}
		return values, nil
	}

	var sparse map[string]*float64
	if err := json.Unmarshal(b, &sparse); err != nil {
		return nil, fmt.Errorf("unable to decode values, %w", ErrMalformedDataset)
	}
	for key, v := range sparse {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("value key %q, %w", key, ErrMalformedDataset)
		}
		if v != nil {
			values[idx] = *v
		}
	}
	return values, nil
}

// Categories returns the category code of every dimension at a flat index
func (d *Dataset) Categories(idx int) map[string]string {
	out := make(map[string]string, len(d.ID))
	for i, id := range d.ID {
		pos := (idx / d.strides[i]) % d.Size[i]
		out[id] = d.Dimension[id].Codes[pos]
	}
	return out
}

// Observations lists every present value ordered by flat index
func (d *Dataset) Observations() []Observation {
	idxs := make([]int, 0, len(d.Values))
	for idx := range d.Values {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	out := make([]Observation, len(idxs))
	for i, idx := range idxs {
		out[i] = Observation{
			Categories: d.Categories(idx),
			Value:      d.Values[idx],
		}
	}
	return out
}

// CategoryLabel returns the label of a category, or the code itself when the dataset has none
func (d *Dataset) CategoryLabel(dim, code string) (string, error) {
	dimension, exists := d.Dimension[dim]
	if !exists {
		return "", fmt.Errorf("%s, %w", dim, ErrUnknownDimension)
	}
	if label, ok := dimension.Labels[code]; ok {
		return label, nil
	}
	return code, nil
}
