package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	aggregator *Aggregator
	collector  *Collector
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, collector *Collector) *Handler {
	return &Handler{
		aggregator: aggregator,
		collector:  collector,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	body := struct {
		AggregatedStats
		DroppedEvents int64 `json:"dropped_events"`
	}{AggregatedStats: h.aggregator.Stats()}
	if h.collector != nil {
		body.DroppedEvents = h.collector.Dropped()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
