package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/tracing"
)

const maxQueryBody = 1 << 20

type queryRequest struct {
	Text string `json:"text"`
}

type queryResponse struct {
	Results any `json:"results"`
	Count   int `json:"count"`

	sentences int
}

type Handler struct {
	service   *Service
	cache     *QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandler wires the query endpoints. cache, collector and m may be nil.
func NewHandler(service *Service, cache *QueryCache, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		service:   service,
		cache:     cache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search/citation", h.Citation)
	mux.HandleFunc("POST /api/v1/search/theme", h.Theme)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Citation(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, ModeCitation, indexstore.Granular, func(ctx context.Context, q string) (queryResponse, error) {
		sentences, err := h.service.sentences(q)
		if err != nil {
			return queryResponse{}, err
		}
		results, err := h.service.citation(ctx, sentences)
		return queryResponse{Results: results, Count: len(results), sentences: len(sentences)}, err
	})
}

func (h *Handler) Theme(w http.ResponseWriter, r *http.Request) {
	h.query(w, r, ModeTheme, indexstore.Context, func(ctx context.Context, q string) (queryResponse, error) {
		sentences, err := h.service.sentences(q)
		if err != nil {
			return queryResponse{}, err
		}
		results, err := h.service.theme(ctx, sentences)
		return queryResponse{Results: results, Count: len(results), sentences: len(sentences)}, err
	})
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request, mode, flavor string, run func(context.Context, string) (queryResponse, error)) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), mode, middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(log)
	}()

	var req queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.finish(ctx, mode, req.Text, 0, 0, false, analytics.OutcomeInvalid, start)
		h.writeError(w, http.StatusBadRequest, "request body must be JSON with a \"text\" field")
		return
	}

	// sentences stays zero when the body comes from the cache.
	var sentences int
	compute := func() ([]byte, error) {
		resp, err := run(ctx, req.Text)
		if err != nil {
			return nil, err
		}
		sentences = resp.sentences
		return json.Marshal(resp)
	}

	var (
		body     []byte
		cacheHit bool
		err      error
	)
	if h.cache != nil && h.service.Current(flavor) != nil {
		body, cacheHit, err = h.cache.GetOrCompute(ctx, mode, h.service.Generation(flavor), req.Text, compute)
	} else {
		body, err = compute()
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		outcome := outcomeFor(status)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "mode", mode, "status", status, "error", err)
		}
		h.finish(ctx, mode, req.Text, 0, 0, false, outcome, start)
		h.writeError(w, status, apperrors.Message(err))
		return
	}

	var counted struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &counted); err != nil {
		log.Error("decoding search response", "error", err)
	}
	outcome := analytics.OutcomeOK
	if counted.Count == 0 {
		outcome = analytics.OutcomeZeroResult
	}
	h.finish(ctx, mode, req.Text, sentences, counted.Count, cacheHit, outcome, start)

	log.Info("search completed",
		"mode", mode,
		"returned", counted.Count,
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	w.Header().Set("Content-Type", "application/json")
	if timing := span.ServerTiming(); timing != "" {
		w.Header().Set("Server-Timing", timing)
	}
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func outcomeFor(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return analytics.OutcomeUnavailable
	case status >= 400 && status < 500:
		return analytics.OutcomeInvalid
	default:
		return analytics.OutcomeError
	}
}

func (h *Handler) finish(ctx context.Context, mode, query string, sentences, returned int, cacheHit bool, outcome string, start time.Time) {
	elapsed := time.Since(start)
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(mode, outcome).Inc()
		h.metrics.SearchLatency.WithLabelValues(mode, cacheStatus).Observe(elapsed.Seconds())
		if outcome == analytics.OutcomeOK || outcome == analytics.OutcomeZeroResult {
			h.metrics.SearchResultsCount.WithLabelValues(mode).Observe(float64(returned))
		}
	}
	h.collector.Track(analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Mode:      mode,
		Query:     query,
		Sentences: sentences,
		Returned:  returned,
		Outcome:   outcome,
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": h.service.Stats()})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

