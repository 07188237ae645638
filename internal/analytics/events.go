// Package analytics collects search and indexing events, ships them over
// Kafka (or straight into a local aggregator) and serves rolled-up stats.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventIndex  EventType = "index"
)

// Search outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeZeroResult  = "zero_result"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Mode      string    `json:"mode"`
	Query     string    `json:"query"`
	Sentences int       `json:"sentences"`
	Returned  int       `json:"returned"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type      EventType `json:"type"`
	WorkID    int64     `json:"work_id"`
	Title     string    `json:"title,omitempty"`
	Flavor    string    `json:"flavor"`
	Status    string    `json:"status"`
	Rows      int       `json:"rows"`
	Rejected  int       `json:"rejected"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
