package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	maxQueryKeyRunes  = 80
	defaultTopQueries = 10
	maxTopQueries     = 100
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesByMode    map[string]int64 `json:"searches_by_mode"`
	OutcomeCounts     map[string]int64 `json:"outcome_counts"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	WorksByStatus     map[string]int64 `json:"works_by_status"`
	RowsIndexed       map[string]int64 `json:"rows_indexed"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals in memory. Latency percentiles cover the
// most recent samples only.
type Aggregator struct {
	mu                sync.RWMutex
	base              AggregatedStats
	totalSearches     int64
	byMode            map[string]int64
	outcomes          map[string]int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	worksByStatus     map[string]int64
	rowsIndexed       map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byMode:            make(map[string]int64),
		outcomes:          make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		worksByStatus:     make(map[string]int64),
		rowsIndexed:       make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Restore adds the totals of a previous run's snapshot to future Stats.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = prev
}

// HandleMessage decodes an analytics-events message for a kafka.Consumer.
func (a *Aggregator) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return fmt.Errorf("%w: analytics event: %v", kafka.ErrMalformed, err)
	}
	switch head.Type {
	case EventSearch:
		ev, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(ev)
	case EventIndex:
		ev, err := kafka.DecodeJSON[IndexEvent](value)
		if err != nil {
			return err
		}
		a.RecordIndex(ev)
	default:
		a.logger.Warn("unknown analytics event type", "type", head.Type)
	}
	return nil
}

func queryKey(q string) string {
	q = strings.Join(strings.Fields(strings.ToLower(q)), " ")
	if utf8.RuneCountInString(q) > maxQueryKeyRunes {
		q = string([]rune(q)[:maxQueryKeyRunes])
	}
	return q
}

func (a *Aggregator) RecordSearch(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	a.byMode[ev.Mode]++
	a.outcomes[ev.Outcome]++
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	key := queryKey(ev.Query)
	if key == "" {
		return
	}
	a.queryCounts[key]++
	if ev.Outcome == OutcomeZeroResult {
		a.zeroResults++
		a.zeroResultQueries[key]++
	}
}

func (a *Aggregator) RecordIndex(ev IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.worksByStatus[ev.Status]++
	a.rowsIndexed[ev.Flavor] += int64(ev.Rows)
}

func addCounts(dst, src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(dst)+len(src))
	for k, v := range dst {
		out[k] += v
	}
	for k, v := range src {
		out[k] += v
	}
	return out
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopQueries)
}

// StatsTop is Stats with the query leaderboards cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	if n <= 0 || n > maxTopQueries {
		n = defaultTopQueries
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.base.TotalSearches + a.totalSearches,
		SearchesByMode:  addCounts(a.base.SearchesByMode, a.byMode),
		OutcomeCounts:   addCounts(a.base.OutcomeCounts, a.outcomes),
		CacheHits:       a.base.CacheHits + a.cacheHits,
		CacheMisses:     a.base.CacheMisses + a.cacheMisses,
		ZeroResultCount: a.base.ZeroResultCount + a.zeroResults,
		WorksByStatus:   addCounts(a.base.WorksByStatus, a.worksByStatus),
		RowsIndexed:     addCounts(a.base.RowsIndexed, a.rowsIndexed),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(a.totalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
