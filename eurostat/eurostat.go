// Package eurostat fetches the greenhouse gas inventory and the population of european countries
// from the Eurostat dissemination api.
package eurostat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL         = "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data/"
	defaultLanguage        = "en"
	defaultRateLimitPerSec = 2
	defaultRateLimitBurst  = 2
	defaultTimeout         = 60 * time.Second
	defaultRetries         = 3
	defaultUserAgent       = "ghg-forecaster/1.0"

	EmissionsDataset  = "env_air_gge"
	PopulationDataset = "demo_pjan"
)

// EmissionSectors are the src_crf codes of the total and the major sectors
var EmissionSectors = []string{"TOTXMEMO", "CRF1", "CRF2", "CRF3", "CRF4", "CRF5", "CRF6"}

var (
	ErrInvalidYears = errors.New("start year is after end year")
	ErrStatus       = errors.New("eurostat returned an error status")
	ErrNoTime       = errors.New("dataset has no time dimension")
)

type Config struct {
	BaseURL         string        `yaml:"base_url" envconfig:"BASE_URL"`
	Language        string        `yaml:"language" envconfig:"LANGUAGE"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" envconfig:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Retries         int           `yaml:"retries" envconfig:"RETRIES"`
	UserAgent       string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

func NewDefaultConfig() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		Language:        defaultLanguage,
		RateLimitPerSec: defaultRateLimitPerSec,
		RateLimitBurst:  defaultRateLimitBurst,
		Timeout:         defaultTimeout,
		Retries:         defaultRetries,
		UserAgent:       defaultUserAgent,
	}
}

// Query selects the year window and optionally a subset of geo codes
type Query struct {
	StartYear int
	EndYear   int
	Geo       []string
}

func (q Query) validate() error {
	if q.StartYear > 0 && q.EndYear > 0 && q.StartYear > q.EndYear {
		return fmt.Errorf("%d > %d, %w", q.StartYear, q.EndYear, ErrInvalidYears)
	}
	return nil
}

func (q Query) contains(year int) bool {
	return (q.StartYear == 0 || year >= q.StartYear) && (q.EndYear == 0 || year <= q.EndYear)
}

// EmissionRecord is one yearly inventory value in thousand tonnes of CO2 equivalent
type EmissionRecord struct {
	Geo    string
	Sector string
	Year   int
	Value  float64
}

type PopulationRecord struct {
	Geo        string
	Year       int
	Population float64
}

type Client struct {
	config  Config
	client  *resty.Client
	limiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	def := NewDefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("unable to parse eurostat base url, %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = def.RateLimitPerSec
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = def.RateLimitBurst
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &Client{
		config:  cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}, nil
}

// Dataset fetches and decodes one dataset filtered by the given dimension values
func (c *Client) Dataset(ctx context.Context, code string, params url.Values) (*Dataset, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Set("format", "JSON")
	q.Set("lang", c.config.Language)

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q).
		Get(code)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %s, %w", code, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s returned %d, %w", code, resp.StatusCode(), ErrStatus)
	}

	ds, err := Decode(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s, %w", code, err)
	}
	return ds, nil
}

func yearParams(params url.Values, q Query) {
	if q.StartYear > 0 {
		params.Set("sinceTimePeriod", strconv.Itoa(q.StartYear))
	}
	if q.EndYear > 0 {
		params.Set("untilTimePeriod", strconv.Itoa(q.EndYear))
	}
	for _, geo := range q.Geo {
		params.Add("geo", geo)
	}
}

// FetchEmissions returns the total greenhouse gas emissions of the major sectors
func (c *Client) FetchEmissions(ctx context.Context, q Query) ([]EmissionRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	params := url.Values{
		"unit":    {"THS_T"},
		"airpol":  {"GHG"},
		"src_crf": EmissionSectors,
	}
	yearParams(params, q)

	ds, err := c.Dataset(ctx, EmissionsDataset, params)
	if err != nil {
		return nil, err
	}
	if _, exists := ds.Dimension["time"]; !exists {
		return nil, ErrNoTime
	}

	var out []EmissionRecord
	for _, obs := range ds.Observations() {
		year, err := strconv.Atoi(obs.Categories["time"])
		if err != nil || !q.contains(year) {
			continue
		}
		out = append(out, EmissionRecord{
			Geo:    obs.Categories["geo"],
			Sector: obs.Categories["src_crf"],
			Year:   year,
			Value:  obs.Value,
		})
	}
	return out, nil
}

// FetchPopulation returns the population on the first of january of each year
func (c *Client) FetchPopulation(ctx context.Context, q Query) ([]PopulationRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	params := url.Values{
		"age":  {"TOTAL"},
		"sex":  {"T"},
		"unit": {"NR"},
	}
	yearParams(params, q)

	ds, err := c.Dataset(ctx, PopulationDataset, params)
	if err != nil {
		return nil, err
	}
	if _, exists := ds.Dimension["time"]; !exists {
		return nil, ErrNoTime
	}

	var out []PopulationRecord
	for _, obs := range ds.Observations() {
		year, err := strconv.Atoi(obs.Categories["time"])
		if err != nil || !q.contains(year) {
			continue
		}
		out = append(out, PopulationRecord{
			Geo:        obs.Categories["geo"],
			Year:       year,
			Population: obs.Value,
		})
	}
	return out, nil
}
