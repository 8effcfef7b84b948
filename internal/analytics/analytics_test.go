package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/kafka"
)

type recorder struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (r *recorder) Publish(ctx context.Context, e kafka.Event) error {
	return r.PublishBatch(ctx, []kafka.Event{e})
}

func (r *recorder) PublishBatch(_ context.Context, events []kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	events := []SearchEvent{
		{Type: EventSearch, Query: "firefox", TotalHits: 3, LatencyMs: 10},
		{Type: EventSearch, Query: "firefox", TotalHits: 3, LatencyMs: 20, CacheHit: true},
		{Type: EventZeroResult, Query: "range:title:gt:a", MatchNone: 1, LatencyMs: 5},
		{Type: EventMalformed, Query: "(a", Position: 0},
		{Type: EventMalformed, Query: "(a", Position: 0},
		{Type: EventFailed, Query: "range:votes:eq:1"},
	}
	for _, e := range events {
		agg.Record(e)
	}
	s := agg.Stats()

	if s.TotalSearches != 6 || s.MalformedCount != 2 || s.FailedCount != 1 {
		t.Errorf("totals = %d/%d/%d", s.TotalSearches, s.MalformedCount, s.FailedCount)
	}
	if s.CacheHits != 1 || s.CacheMisses != 2 {
		t.Errorf("cache = %d hits, %d misses", s.CacheHits, s.CacheMisses)
	}
	if s.ZeroResultCount != 1 || s.MatchNoneCount != 1 {
		t.Errorf("zero=%d matchNone=%d", s.ZeroResultCount, s.MatchNoneCount)
	}
	wantTop := []QueryCount{{"firefox", 2}, {"range:title:gt:a", 1}}
	if diff := cmp.Diff(wantTop, s.TopQueries); diff != "" {
		t.Errorf("TopQueries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]QueryCount{{"(a", 2}}, s.MalformedQueries); diff != "" {
		t.Errorf("MalformedQueries mismatch (-want +got):\n%s", diff)
	}
	if s.P50LatencyMs != 10 || s.P99LatencyMs != 20 {
		t.Errorf("p50=%d p99=%d", s.P50LatencyMs, s.P99LatencyMs)
	}
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{TotalSearches: 100, MalformedCount: 4})
	agg.Record(SearchEvent{Type: EventMalformed, Query: "("})
	s := agg.Stats()
	if s.TotalSearches != 101 || s.MalformedCount != 5 {
		t.Errorf("restored totals = %d/%d, want 101/5", s.TotalSearches, s.MalformedCount)
	}
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		agg.Record(SearchEvent{Type: EventSearch, Query: "q", TotalHits: 1, LatencyMs: int64(i)})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	if n != maxLatencySamples {
		t.Errorf("kept %d latency samples, want %d", n, maxLatencySamples)
	}
}

func TestCollectorPublishesOnClose(t *testing.T) {
	rec := &recorder{}
	agg := NewAggregator()
	c := NewCollector(rec, agg, 16)
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		if !c.Track(SearchEvent{Type: EventSearch, Query: "firefox", TotalHits: 1}) {
			t.Fatal("event rejected")
		}
	}
	c.Close()

	if rec.len() != 5 {
		t.Errorf("published %d events, want 5", rec.len())
	}
	if got := agg.Stats().TotalSearches; got != 5 {
		t.Errorf("aggregated %d searches, want 5", got)
	}
	if c.Track(SearchEvent{Type: EventSearch}) {
		t.Error("Track accepted an event after Close")
	}
	c.Close()
}

func TestCollectorFlushesOnContextCancel(t *testing.T) {
	rec := &recorder{}
	c := NewCollector(rec, nil, 16)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(SearchEvent{Type: EventMalformed, Query: "("})

	deadline := time.Now().Add(time.Second)
	for len(c.eventCh) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-c.done
	if rec.len() != 1 {
		t.Errorf("published %d events, want 1", rec.len())
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(nil, nil, 2)
	// Not started, so nothing drains the buffer.
	accepted := 0
	for i := 0; i < 5; i++ {
		if c.Track(SearchEvent{Type: EventSearch}) {
			accepted++
		}
	}
	if accepted != 2 || c.Dropped() != 3 {
		t.Errorf("accepted=%d dropped=%d, want 2/3", accepted, c.Dropped())
	}
	c.Close()
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "firefox", TotalHits: 1})
	h := NewHandler(agg, NewCollector(nil, agg, 1))

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["total_searches"] != 1.0 {
		t.Errorf("total_searches = %v", body["total_searches"])
	}
	if _, ok := body["dropped_events"]; !ok {
		t.Error("dropped_events missing")
	}
}
