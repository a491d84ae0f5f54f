package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/go-chi/render"
)

type emitterResponse struct {
	CountryName string   `json:"country_name"`
	SectorName  string   `json:"sector_name"`
	Year        int      `json:"year"`
	Emissions   *float64 `json:"emissions_ktco2"`
}

type changeResponse struct {
	CountryName    string   `json:"country_name"`
	SectorName     string   `json:"sector_name"`
	StartYear      int      `json:"start_year"`
	EndYear        int      `json:"end_year"`
	StartEmissions *float64 `json:"start_emissions"`
	EndEmissions   *float64 `json:"end_emissions"`
	PctChange      *float64 `json:"pct_change"`
}

func newChangeResponses(changes []emissions.Change) []changeResponse {
	out := make([]changeResponse, len(changes))
	for i, c := range changes {
		out[i] = changeResponse{
			CountryName:    c.Key.Country,
			SectorName:     c.Key.Sector,
			StartYear:      c.StartYear,
			EndYear:        c.EndYear,
			StartEmissions: emissions.Nullable(c.Start),
			EndEmissions:   emissions.Nullable(c.End),
			PctChange:      emissions.Nullable(c.PctChange),
		}
	}
	return out
}

type failureResponse struct {
	CountryName string    `json:"country_name"`
	SectorName  string    `json:"sector_name"`
	Reason      string    `json:"reason"`
	RunID       string    `json:"run_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type healthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health handles GET /health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.reader.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "database unavailable", "error", err.Error())
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, healthResponse{Status: "unavailable", Detail: "database unavailable"})
		return
	}
	if err := s.cache.Ping(ctx); err != nil {
		// the api still answers from the database
		s.logger.WarnContext(ctx, "cache unavailable", "error", err.Error())
		render.JSON(w, r, healthResponse{Status: "degraded", Detail: "cache unavailable"})
		return
	}
	render.JSON(w, r, healthResponse{Status: "ok"})
}

// Entities handles GET /entities
func (s *Server) Entities(w http.ResponseWriter, r *http.Request) {
	keys, err := cached(s, r, s.cacheKey(r), s.reader.ListEntities)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []emissions.EntityKey{}
	}
	render.JSON(w, r, keys)
}

// Historical handles GET /historical?country=&sector=&start_year=&end_year=
func (s *Server) Historical(w http.ResponseWriter, r *http.Request) {
	q, err := entityQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := cached(s, r, s.cacheKey(r), func(ctx context.Context) ([]emissions.Observation, error) {
		return s.reader.Historical(ctx, q)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res) == 0 {
		s.fail(w, r, notFound("No historical data found"))
		return
	}
	render.JSON(w, r, res)
}

// Forecast handles GET /forecast?country=&sector=&start_year=&end_year=
func (s *Server) Forecast(w http.ResponseWriter, r *http.Request) {
	q, err := entityQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := cached(s, r, s.cacheKey(r), func(ctx context.Context) ([]emissions.ForecastRow, error) {
		return s.reader.Forecast(ctx, q)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res) == 0 {
		s.fail(w, r, notFound("No forecast data found"))
		return
	}
	render.JSON(w, r, res)
}

// TopEmitters handles GET /trends/top_emitters?year=&top_n=&include_aggregates=
func (s *Server) TopEmitters(w http.ResponseWriter, r *http.Request) {
	year, err := requiredInt(r, "year")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := topN(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	includeAggregates, err := optionalBool(r, "include_aggregates")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := cached(s, r, s.cacheKey(r), func(ctx context.Context) ([]emitterResponse, error) {
		emitters, err := s.reader.TopEmitters(ctx, year, n, includeAggregates)
		if err != nil {
			return nil, err
		}
		out := make([]emitterResponse, len(emitters))
		for i, e := range emitters {
			out[i] = emitterResponse{
				CountryName: e.Key.Country,
				SectorName:  e.Key.Sector,
				Year:        e.Year,
				Emissions:   emissions.Nullable(e.Emissions),
			}
		}
		return out, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res) == 0 {
		s.fail(w, r, notFound("No data for given year"))
		return
	}
	render.JSON(w, r, res)
}

// Decreases handles GET /trends/decreases?start_year=&end_year=&top_n=&sector_prefix=
func (s *Server) Decreases(w http.ResponseWriter, r *http.Request) {
	startYear, err := requiredInt(r, "start_year")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	endYear, err := requiredInt(r, "end_year")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := topN(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	prefix := r.URL.Query().Get("sector_prefix")

	res, err := cached(s, r, s.cacheKey(r), func(ctx context.Context) ([]changeResponse, error) {
		changes, err := s.reader.Changes(ctx, startYear, endYear, prefix)
		if err != nil {
			return nil, err
		}
		return newChangeResponses(emissions.RankChanges(changes, n, true)), nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res) == 0 {
		s.fail(w, r, notFound("No data for given years"))
		return
	}
	render.JSON(w, r, res)
}

// ForecastIncreases handles GET /trends/forecast_increases?top_n=
func (s *Server) ForecastIncreases(w http.ResponseWriter, r *http.Request) {
	n, err := topN(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := cached(s, r, s.cacheKey(r), func(ctx context.Context) ([]changeResponse, error) {
		changes, err := s.reader.ForecastChanges(ctx)
		if err != nil {
			return nil, err
		}
		return newChangeResponses(emissions.RankChanges(changes, n, false)), nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res) == 0 {
		s.fail(w, r, notFound("No forecast data available"))
		return
	}
	render.JSON(w, r, res)
}

// Failures handles GET /failures?limit=. The failure log is never cached.
func (s *Server) Failures(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r, "limit", DefaultFailureLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit < 1 {
		s.fail(w, r, fmt.Errorf("limit must be positive, %w", ErrInvalidParam))
		return
	}

	failures, err := s.reader.Failures(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]failureResponse, len(failures))
	for i, f := range failures {
		out[i] = failureResponse{
			CountryName: f.Key.Country,
			SectorName:  f.Key.Sector,
			Reason:      f.Reason,
			RunID:       f.RunID,
			RecordedAt:  f.RecordedAt,
		}
	}
	render.JSON(w, r, out)
}
