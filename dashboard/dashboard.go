// Package dashboard renders an entity picker and the historical and forecast charts of one
// entity as html pages.
package dashboard

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aouyang1/ghg-forecaster"
	"github.com/aouyang1/ghg-forecaster/emissions"
	"github.com/aouyang1/ghg-forecaster/store"
	"github.com/go-chi/chi/v5"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>EU Emissions Dashboard</title></head>
<body>
<h1>EU Emissions Dashboard</h1>
<p>Select a country and sector to view total emissions and emissions per capita.</p>
<ul>
{{- range .}}
<li><a href="{{.Link}}">{{.Label}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type entityLink struct {
	Label string
	Link  string
}

type Handler struct {
	reader store.Reader
	logger *slog.Logger
}

func New(reader store.Reader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reader: reader,
		logger: logger.With("component", "dashboard"),
	}
}

// Routes is mounted by the api under /dashboard
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Index)
	r.Get("/chart", h.Chart)
	return r
}

// Index handles GET /dashboard
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	keys, err := h.reader.ListEntities(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "unable to list entities", "error", err.Error())
		http.Error(w, "unable to list entities", http.StatusInternalServerError)
		return
	}

	links := make([]entityLink, len(keys))
	for i, key := range keys {
		q := url.Values{"country": {key.Country}, "sector": {key.Sector}}
		links[i] = entityLink{
			Label: key.String(),
			Link:  "chart?" + q.Encode(),
		}
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, links); err != nil {
		h.logger.ErrorContext(r.Context(), "unable to render index", "error", err.Error())
		http.Error(w, "unable to render index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Chart handles GET /dashboard/chart?country=&sector=
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	key := emissions.EntityKey{
		Country: r.URL.Query().Get("country"),
		Sector:  r.URL.Query().Get("sector"),
	}
	if key.Country == "" || key.Sector == "" {
		http.Error(w, "country and sector are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	history, err := h.reader.Historical(ctx, store.Query{Key: key})
	if err != nil {
		h.logger.ErrorContext(ctx, "unable to load history", "entity", key.String(), "error", err.Error())
		http.Error(w, "unable to load history", http.StatusInternalServerError)
		return
	}
	if len(history) == 0 {
		http.Error(w, "No data found for "+key.String(), http.StatusNotFound)
		return
	}
	rows, err := h.reader.Forecast(ctx, store.Query{Key: key})
	if err != nil {
		h.logger.ErrorContext(ctx, "unable to load forecast", "entity", key.String(), "error", err.Error())
		http.Error(w, "unable to load forecast", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := forecaster.RenderEntity(&buf, key, history, rows); err != nil {
		h.logger.ErrorContext(ctx, "unable to render charts", "entity", key.String(), "error", err.Error())
		http.Error(w, "unable to render charts", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
