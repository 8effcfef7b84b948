// Command loadtest drives the search endpoint with a mix of query shapes,
// including a share of malformed input, and reports latency percentiles,
// status codes, cache hit rate and zero-result rate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// defaultQueries exercises every construct of the query language.
var defaultQueries = []string{
	"firefox crashes",
	`"private browsing"`,
	"field:title:sync",
	"field:body:bookmarks AND NOT field:title:import",
	"exact:product:firefox",
	"exact:locale:de",
	"range:votes:gt:10",
	"range:created:gte:2024-01-01",
	"(crash OR hang) AND exact:product:firefox",
	"addons NOT update",
	"sync OR (field:title:password AND NOT field:body:reset)",
	"range:title:gt:a",
}

var malformedQueries = []string{
	"crash AND",
	"(firefox",
	"NOT",
	"field:title:",
}

type config struct {
	baseURL       string
	concurrency   int
	duration      time.Duration
	limit         int
	malformedRate float64
}

type stats struct {
	total     atomic.Int64
	transport atomic.Int64
	cacheHits atomic.Int64
	zeroHits  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

type searchReply struct {
	TotalHits uint64 `json:"total_hits"`
	CacheHit  bool   `json:"cache_hit"`
}

func (s *stats) record(d time.Duration, code int, reply *searchReply) {
	s.total.Add(1)
	if reply != nil {
		if reply.CacheHit {
			s.cacheHits.Add(1)
		}
		if reply.TotalHits == 0 {
			s.zeroHits.Add(1)
		}
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	var cfg config
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "Base URL of the search service")
	fs.IntVar(&cfg.concurrency, "concurrency", 10, "Number of concurrent workers")
	fs.DurationVar(&cfg.duration, "duration", 30*time.Second, "Test duration")
	fs.IntVar(&cfg.limit, "limit", 10, "Results per query")
	fs.Float64Var(&cfg.malformedRate, "malformed-rate", 0.05, "Fraction of requests sent with malformed queries")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("LOADTEST")); err != nil {
		fmt.Fprintf(out, "Flag error: %v\n", err)
		return 1
	}
	if cfg.concurrency < 1 {
		fmt.Fprintln(out, "concurrency must be at least 1")
		return 1
	}

	fmt.Fprintln(out, "=== Search Load Test ===")
	fmt.Fprintf(out, "Target:         %s\n", cfg.baseURL)
	fmt.Fprintf(out, "Concurrency:    %d\n", cfg.concurrency)
	fmt.Fprintf(out, "Duration:       %s\n", cfg.duration)
	fmt.Fprintf(out, "Malformed rate: %.2f\n\n", cfg.malformedRate)

	st := runLoad(cfg)
	return report(out, st, cfg.duration)
}

// pickQuery spreads malformed queries evenly through the request sequence
// so the observed rate is close to the requested one.
func pickQuery(seq int64, rate float64) string {
	if rate > 0 {
		every := int64(math.Round(1 / rate))
		if every < 1 {
			every = 1
		}
		if seq%every == 0 {
			return malformedQueries[(seq/every)%int64(len(malformedQueries))]
		}
	}
	return defaultQueries[seq%int64(len(defaultQueries))]
}

func runLoad(cfg config) *stats {
	st := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	var seq atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				q := pickQuery(seq.Add(1), cfg.malformedRate)
				searchOnce(ctx, client, cfg, q, st)
			}
		}()
	}
	wg.Wait()
	return st
}

func searchOnce(ctx context.Context, client *http.Client, cfg config, q string, st *stats) {
	u := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.baseURL, url.QueryEscape(q), cfg.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		st.transport.Add(1)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			st.transport.Add(1)
		}
		return
	}
	defer resp.Body.Close()

	var reply *searchReply
	if resp.StatusCode == http.StatusOK {
		var r searchReply
		if json.NewDecoder(resp.Body).Decode(&r) == nil {
			reply = &r
		}
	}
	io.Copy(io.Discard, resp.Body)
	st.record(time.Since(start), resp.StatusCode, reply)
}

func report(out io.Writer, st *stats, duration time.Duration) int {
	st.mu.Lock()
	latencies := append([]time.Duration(nil), st.latencies...)
	codes := make(map[int]int64, len(st.codes))
	for c, n := range st.codes {
		codes[c] = n
	}
	st.mu.Unlock()

	total := st.total.Load()
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Responses:        %d\n", total)
	fmt.Fprintf(out, "Transport errors: %d\n", st.transport.Load())
	if total == 0 {
		fmt.Fprintln(out, "\nWARNING: No requests completed. Is the service running?")
		return 1
	}
	fmt.Fprintf(out, "Requests/sec:     %.2f\n", float64(total)/duration.Seconds())
	if ok := codes[http.StatusOK]; ok > 0 {
		fmt.Fprintf(out, "Cache hit rate:   %.2f%%\n", float64(st.cacheHits.Load())/float64(ok)*100)
		fmt.Fprintf(out, "Zero-result rate: %.2f%%\n", float64(st.zeroHits.Load())/float64(ok)*100)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Fprintln(out, "\n=== Latency ===")
	fmt.Fprintf(out, "Min: %s\n", latencies[0])
	fmt.Fprintf(out, "P50: %s\n", percentile(latencies, 50))
	fmt.Fprintf(out, "P90: %s\n", percentile(latencies, 90))
	fmt.Fprintf(out, "P99: %s\n", percentile(latencies, 99))
	fmt.Fprintf(out, "Max: %s\n", latencies[len(latencies)-1])

	fmt.Fprintln(out, "\n=== Status Codes ===")
	keys := make([]int, 0, len(codes))
	for c := range codes {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	for _, c := range keys {
		fmt.Fprintf(out, "  %d: %d\n", c, codes[c])
	}
	return 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
