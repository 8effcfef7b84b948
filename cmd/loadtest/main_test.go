package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/parser"
)

func TestQueryMix(t *testing.T) {
	for _, q := range defaultQueries {
		if _, err := parser.Parse(q); err != nil {
			t.Errorf("default query %q does not parse: %v", q, err)
		}
	}
	for _, q := range malformedQueries {
		if _, err := parser.Parse(q); err == nil {
			t.Errorf("malformed query %q parses", q)
		}
	}
}

func TestPickQuery(t *testing.T) {
	malformed := 0
	for seq := int64(1); seq <= 100; seq++ {
		q := pickQuery(seq, 0.1)
		for _, m := range malformedQueries {
			if q == m {
				malformed++
			}
		}
	}
	if malformed != 10 {
		t.Errorf("malformed picks = %d of 100, want 10", malformed)
	}
	for seq := int64(0); seq < 20; seq++ {
		if q := pickQuery(seq, 0); q == "field:title:" || q == "NOT" {
			t.Errorf("rate 0 picked malformed query %q", q)
		}
	}
}

func TestPercentile(t *testing.T) {
	var d []time.Duration
	for i := 1; i <= 100; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}
	if got := percentile(d, 50); got != 50*time.Millisecond {
		t.Errorf("p50 = %s", got)
	}
	if got := percentile(d, 99); got != 99*time.Millisecond {
		t.Errorf("p99 = %s", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %s", got)
	}
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := parser.Parse(r.URL.Query().Get("q")); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_hits":0,"cache_hit":true,"results":[]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	code := run([]string{"-url", srv.URL, "-concurrency", "2", "-duration", "100ms", "-malformed-rate", "0.5"}, &out)
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, out.String())
	}
	for _, want := range []string{"200:", "400:", "Cache hit rate:   100.00%", "Zero-result rate: 100.00%"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunNoService(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"-url", "http://127.0.0.1:1", "-concurrency", "1", "-duration", "50ms"}, &out)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
