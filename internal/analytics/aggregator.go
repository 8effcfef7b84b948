package analytics

import (
	"sort"
	"sync"
	"time"
)

const (
	maxLatencySamples = 10000
	topQueryCount     = 10
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	MalformedCount    int64        `json:"malformed_count"`
	FailedCount       int64        `json:"failed_count"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	MatchNoneCount    int64        `json:"match_none_count"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	MalformedQueries  []QueryCount `json:"malformed_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running search statistics in memory. Latency percentiles
// cover the most recent samples only.
type Aggregator struct {
	mu sync.RWMutex

	base AggregatedStats

	totalSearches int64
	malformed     int64
	failed        int64
	zeroResults   int64
	matchNone     int64
	cacheHits     int64
	cacheMisses   int64

	latencies  []int64
	latencyPos int

	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	malformedQueries  map[string]int64
	startTime         time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, maxLatencySamples),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		malformedQueries:  make(map[string]int64),
		startTime:         time.Now(),
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Query tables and latencies start fresh.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = s
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	switch event.Type {
	case EventMalformed:
		a.malformed++
		a.malformedQueries[event.Query]++
		return
	case EventFailed:
		a.failed++
		return
	}

	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.MatchNone > 0 {
		a.matchNone++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
	a.queryCounts[event.Query]++

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyPos] = event.LatencyMs
		a.latencyPos = (a.latencyPos + 1) % maxLatencySamples
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.base.TotalSearches + a.totalSearches,
		MalformedCount:  a.base.MalformedCount + a.malformed,
		FailedCount:     a.base.FailedCount + a.failed,
		ZeroResultCount: a.base.ZeroResultCount + a.zeroResults,
		MatchNoneCount:  a.base.MatchNoneCount + a.matchNone,
		CacheHits:       a.base.CacheHits + a.cacheHits,
		CacheMisses:     a.base.CacheMisses + a.cacheMisses,
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
	stats.TopQueries = topN(a.queryCounts, topQueryCount)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueryCount)
	stats.MalformedQueries = topN(a.malformedQueries, topQueryCount)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
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

// topN orders by count, then query, so ties are stable.
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
