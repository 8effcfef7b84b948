// Package analytics records what users search for: every request, including
// malformed ones, becomes a SearchEvent that is aggregated in process and
// published to Kafka for offline analysis.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventMalformed  EventType = "malformed"
	EventZeroResult EventType = "zero_result"
	EventFailed     EventType = "failed"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Compiled  string    `json:"compiled,omitempty"`
	Error     string    `json:"error,omitempty"`
	Position  int       `json:"position,omitempty"`
	MatchNone int       `json:"match_none,omitempty"`
	TotalHits uint64    `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
