package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves the aggregated search statistics.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats answers GET /api/v1/analytics. The optional "top" parameter sizes the
// query leaderboards; "section" narrows the body to searches or indexing.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := defaultTopQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopQueries {
			h.respond(w, http.StatusBadRequest, map[string]string{
				"error": "top must be an integer between 1 and " + strconv.Itoa(maxTopQueries),
			})
			return
		}
		top = n
	}

	stats := h.aggregator.StatsTop(top)
	switch section := r.URL.Query().Get("section"); section {
	case "":
		h.respond(w, http.StatusOK, stats)
	case "search":
		h.respond(w, http.StatusOK, map[string]any{
			"total_searches":      stats.TotalSearches,
			"searches_by_mode":    stats.SearchesByMode,
			"outcome_counts":      stats.OutcomeCounts,
			"p95_latency_ms":      stats.P95LatencyMs,
			"top_queries":         stats.TopQueries,
			"zero_result_queries": stats.ZeroResultQueries,
		})
	case "index":
		h.respond(w, http.StatusOK, map[string]any{
			"works_by_status": stats.WorksByStatus,
			"rows_indexed":    stats.RowsIndexed,
		})
	default:
		h.respond(w, http.StatusBadRequest, map[string]string{"error": "unknown section " + strconv.Quote(section)})
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
