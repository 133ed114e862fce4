package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"noise-concert-map/pkg/filter"
	"noise-concert-map/pkg/layers"
	"noise-concert-map/pkg/noiselevel"
)

// =======================
// Public API entry points
// =======================

// Handler turns query strings into selections and selections into layer
// documents. Source is swapped by nobody: reloads replace the data behind
// it, then call Purge.
type Handler struct {
	Source  layers.Source
	Cache   Cache
	Limiter *RateLimiter
	Now     func() time.Time
	Logf    func(string, ...any)
}

// NewHandler constructs a Handler. cache, limiter and logf may be nil.
func NewHandler(src layers.Source, cache Cache, limiter *RateLimiter, now func() time.Time, logf func(string, ...any)) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{Source: src, Cache: cache, Limiter: limiter, Now: now, Logf: logf}
}

// Register attaches API routes to the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/layers", h.handleLayers)
	mux.HandleFunc("/api/sources", h.handleSources)
	mux.HandleFunc("/api/levels", h.handleLevels)
}

// Purge drops cached layer documents after a reload.
func (h *Handler) Purge(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Purge(ctx); err != nil {
		h.logf("cache purge: %v", err)
	}
}

// Selection parses the sidebar state from r. The available source types
// narrow the default source choice to what the data contains.
func (h *Handler) Selection(r *http.Request) (filter.Selection, error) {
	available, err := h.Source.SourceTypes(r.Context())
	if err != nil {
		return filter.Selection{}, fmt.Errorf("source types: %w", err)
	}
	return filter.FromQuery(r.URL.Query(), h.Now(), available)
}

// handleOverview publishes machine-readable docs of the endpoints.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	selectionQuery := []string{"period", "level", "source", "date", "concerts", "constructions"}
	overview := struct {
		Endpoints map[string]any `json:"endpoints"`
	}{
		Endpoints: map[string]any{
			"layers": map[string]any{
				"method":      "GET",
				"path":        "/api/layers",
				"query":       selectionQuery,
				"description": "Styled GeoJSON for noise zones, concerts and constructions matching the selection. 'level' and 'source' repeat; an empty value selects none.",
			},
			"sources": map[string]any{
				"method":      "GET",
				"path":        "/api/sources",
				"description": "Distinct noise source types in the loaded data, sorted alphabetically.",
			},
			"levels": map[string]any{
				"method":      "GET",
				"path":        "/api/levels",
				"query":       []string{"period"},
				"description": "Noise band codes with labels, fill colours and default selection for a period.",
			},
		},
	}
	h.respondJSON(w, overview)
}

// handleLayers builds the overlays for the requested selection.
func (h *Handler) handleLayers(w http.ResponseWriter, r *http.Request) {
	permit, err := h.Limiter.Acquire(r.Context(), ClientIP(r), RequestGeneral)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	sel, err := h.Selection(r)
	if err != nil {
		h.selectionError(w, err)
		return
	}

	body, err := h.cached(r.Context(), sel.Key(), func(ctx context.Context) ([]byte, error) {
		l, err := layers.Build(ctx, h.Source, sel)
		if err != nil {
			return nil, err
		}
		return json.Marshal(l)
	})
	if err != nil {
		http.Error(w, "layers error", http.StatusInternalServerError)
		h.logf("layers error: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

// cached routes the load through the cache and falls back to a direct load
// when the cache is disabled or stopped.
func (h *Handler) cached(ctx context.Context, key string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if h.Cache == nil {
		return load(ctx)
	}
	body, err := h.Cache.Get(ctx, key, load)
	if errors.Is(err, errCacheDisabled) || errors.Is(err, errCacheStopped) {
		return load(ctx)
	}
	return body, err
}

// selectionError maps a bad query to 400 and anything else to 500.
func (h *Handler) selectionError(w http.ResponseWriter, err error) {
	var qe *filter.QueryError
	if errors.As(err, &qe) {
		http.Error(w, qe.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "selection error", http.StatusInternalServerError)
	h.logf("selection error: %v", err)
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.Source.SourceTypes(r.Context())
	if err != nil {
		http.Error(w, "sources error", http.StatusInternalServerError)
		h.logf("sources error: %v", err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	h.respondJSON(w, struct {
		Sources  []string `json:"sources"`
		Defaults []string `json:"defaults"`
	}{sources, filter.Default(h.Now(), sources).Sources})
}

// LevelInfo describes one noise band for the sidebar legend.
type LevelInfo struct {
	Code  noiselevel.Level `json:"code"`
	Label string           `json:"label"`
	Color string           `json:"color"`
}

// PeriodLevels is the /api/levels document for one period.
type PeriodLevels struct {
	Period   noiselevel.Period  `json:"period"`
	Border   string             `json:"border"`
	Levels   []LevelInfo        `json:"levels"`
	Defaults []noiselevel.Level `json:"defaults"`
}

// LevelsFor assembles the band catalogue of p.
func LevelsFor(p noiselevel.Period) PeriodLevels {
	_, border := noiselevel.Palette(p)
	out := PeriodLevels{Period: p, Border: border, Defaults: noiselevel.DefaultLevels(p)}
	for _, l := range noiselevel.Levels(p) {
		color, _ := noiselevel.FillColor(p, l)
		out.Levels = append(out.Levels, LevelInfo{Code: l, Label: noiselevel.Label(l), Color: color})
	}
	return out
}

// handleLevels returns one period when ?period= is given, both otherwise.
func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("period"); v != "" {
		p, err := noiselevel.ParsePeriod(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.respondJSON(w, LevelsFor(p))
		return
	}
	h.respondJSON(w, []PeriodLevels{LevelsFor(noiselevel.Day), LevelsFor(noiselevel.Night)})
}

// =====================
// Utility helpers
// =====================

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}
