package eurostat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emissionsDataset = `{
	"version": "2.0",
	"class": "dataset",
	"label": "Greenhouse gas emissions by source sector",
	"id": ["freq", "unit", "airpol", "src_crf", "geo", "time"],
	"size": [1, 1, 1, 2, 2, 2],
	"dimension": {
		"freq": {"category": {"index": {"A": 0}, "label": {"A": "Annual"}}},
		"unit": {"category": {"index": {"THS_T": 0}}},
		"airpol": {"category": {"label": {"GHG": "Greenhouse gases"}}},
		"src_crf": {"category": {"index": {"TOTXMEMO": 0, "CRF1": 1}, "label": {"CRF1": "Energy"}}},
		"geo": {"category": {"index": {"DE": 0, "FR": 1}, "label": {"DE": "Germany", "FR": "France"}}},
		"time": {"category": {"index": {"2019": 0, "2020": 1}}}
	},
	"value": {"0": 810.5, "1": 739.2, "3": 400.1, "4": 250.0, "7": 99.9}
}`

const populationDataset = `{
	"version": "2.0",
	"class": "dataset",
	"id": ["freq", "unit", "age", "sex", "geo", "time"],
	"size": [1, 1, 1, 1, 2, 2],
	"dimension": {
		"freq": {"category": {"index": ["A"]}},
		"unit": {"category": {"index": ["NR"]}},
		"age": {"category": {"index": ["TOTAL"]}},
		"sex": {"category": {"index": ["T"]}},
		"geo": {"category": {"index": ["DE", "FR"]}},
		"time": {"category": {"index": ["2019", "2020"]}}
	},
	"value": [83019213, 83166711, null, 67320216]
}`

func TestDecode(t *testing.T) {
	ds, err := Decode([]byte(emissionsDataset))
	require.Nil(t, err)

	assert.Equal(t, "Greenhouse gas emissions by source sector", ds.Label)
	assert.Equal(t, []string{"TOTXMEMO", "CRF1"}, ds.Dimension["src_crf"].Codes)
	assert.Equal(t, []string{"GHG"}, ds.Dimension["airpol"].Codes)
	assert.Len(t, ds.Values, 5)

	obs := ds.Observations()
	require.Len(t, obs, 5)
	assert.Equal(t, map[string]string{
		"freq": "A", "unit": "THS_T", "airpol": "GHG", "src_crf": "CRF1", "geo": "FR", "time": "2020",
	}, obs[4].Categories)
	assert.Equal(t, 99.9, obs[4].Value)
	assert.Equal(t, "FR", obs[2].Categories["geo"])
	assert.Equal(t, "TOTXMEMO", obs[2].Categories["src_crf"])

	label, err := ds.CategoryLabel("geo", "DE")
	require.Nil(t, err)
	assert.Equal(t, "Germany", label)
	label, err = ds.CategoryLabel("src_crf", "TOTXMEMO")
	require.Nil(t, err)
	assert.Equal(t, "TOTXMEMO", label)
	_, err = ds.CategoryLabel("nace_r2", "A")
	assert.ErrorIs(t, err, ErrUnknownDimension)

	ds, err = Decode([]byte(populationDataset))
	require.Nil(t, err)
	assert.Equal(t, map[int]float64{0: 83019213, 1: 83166711, 3: 67320216}, ds.Values)
}

func TestDecodeErrors(t *testing.T) {
	testData := map[string]string{
		"not json":          `{`,
		"size mismatch":     `{"id": ["geo"], "size": [1, 2], "dimension": {}}`,
		"missing dimension": `{"id": ["geo"], "size": [1], "dimension": {}}`,
		"category count": `{"id": ["geo"], "size": [2],
			"dimension": {"geo": {"category": {"index": ["DE"]}}}}`,
		"duplicate position": `{"id": ["geo"], "size": [2],
			"dimension": {"geo": {"category": {"index": {"DE": 0, "FR": 0}}}}}`,
		"value out of range": `{"id": ["geo"], "size": [1],
			"dimension": {"geo": {"category": {"index": ["DE"]}}}, "value": {"3": 1.0}}`,
		"bad value key": `{"id": ["geo"], "size": [1],
			"dimension": {"geo": {"category": {"index": ["DE"]}}}, "value": {"x": 1.0}}`,
	}

	for name, body := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.NotNil(t, err)
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, RateLimitPerSec: 100, Retries: -1})
	require.Nil(t, err)
	return c
}

func TestFetchEmissions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+EmissionsDataset, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "JSON", q.Get("format"))
		assert.Equal(t, "en", q.Get("lang"))
		assert.Equal(t, "GHG", q.Get("airpol"))
		assert.Equal(t, EmissionSectors, q["src_crf"])
		assert.Equal(t, []string{"DE", "FR"}, q["geo"])
		assert.Equal(t, "2020", q.Get("sinceTimePeriod"))
		_, _ = w.Write([]byte(emissionsDataset))
	})

	res, err := c.FetchEmissions(context.Background(), Query{StartYear: 2020, EndYear: 2020, Geo: []string{"DE", "FR"}})
	require.Nil(t, err)
	assert.Equal(t, []EmissionRecord{
		{Geo: "DE", Sector: "TOTXMEMO", Year: 2020, Value: 739.2},
		{Geo: "FR", Sector: "TOTXMEMO", Year: 2020, Value: 400.1},
		{Geo: "FR", Sector: "CRF1", Year: 2020, Value: 99.9},
	}, res)
}

func TestFetchPopulation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+PopulationDataset, r.URL.Path)
		assert.Equal(t, "TOTAL", r.URL.Query().Get("age"))
		_, _ = w.Write([]byte(populationDataset))
	})

	res, err := c.FetchPopulation(context.Background(), Query{})
	require.Nil(t, err)
	assert.Equal(t, []PopulationRecord{
		{Geo: "DE", Year: 2019, Population: 83019213},
		{Geo: "DE", Year: 2020, Population: 83166711},
		{Geo: "FR", Year: 2020, Population: 67320216},
	}, res)
}

func TestFetchErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "dataset not found"}`, http.StatusNotFound)
	})

	_, err := c.FetchEmissions(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrStatus)

	_, err = c.FetchPopulation(context.Background(), Query{StartYear: 2021, EndYear: 2020})
	assert.ErrorIs(t, err, ErrInvalidYears)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchEmissions(ctx, Query{})
	assert.NotNil(t, err)

	noTime := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": ["geo"], "size": [1], "dimension": {"geo": {"category": {"index": ["DE"]}}}, "value": [1]}`))
	})
	_, err = noTime.FetchEmissions(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrNoTime)
}
