// Package handler serves the search API: it parses and compiles the q
// parameter against the current settings, runs the compiled query through the
// result cache and executor, and reports malformed input with its position.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, node query.Node, limit, offset int) (*executor.SearchResult, error)
}

// ContextSource yields the compilation context for each request.
type ContextSource interface {
	Current() compiler.Context
}

type Handler struct {
	executor  SearchExecutor
	settings  ContextSource
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	tracer    *tracing.Tracer
	cfg       config.SearchConfig
	logger    *slog.Logger
}

// New creates a Handler. queryCache, collector, m and tracer may be nil.
func New(
	exec SearchExecutor,
	settings ContextSource,
	queryCache *cache.QueryCache,
	collector *analytics.Collector,
	m *metrics.Metrics,
	tracer *tracing.Tracer,
	cfg config.SearchConfig,
) *Handler {
	return &Handler{
		executor:  exec,
		settings:  settings,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		tracer:    tracer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	*executor.SearchResult
	CacheHit bool `json:"cache_hit"`
}

type malformedResponse struct {
	Error    string `json:"error"`
	Position int    `json:"position"`
}

type explainResponse struct {
	Query     string     `json:"query"`
	AST       string     `json:"ast"`
	Compiled  query.Node `json:"compiled"`
	Canonical string     `json:"canonical"`
	MatchNone int        `json:"match_none"`
}

// Search serves GET /api/v1/search?q=&limit=&offset=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	requestID := middleware.GetRequestID(r)

	raw := r.URL.Query().Get("q")
	limit, offset, ok := h.paging(w, r)
	if !ok {
		return
	}
	if h.tooLong(w, raw) {
		return
	}

	ctx, span := h.tracer.StartSpan(ctx, "search", requestID)
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("query", raw)

	node, err := h.compile(ctx, raw)
	if err != nil {
		var malformed *parser.MalformedQueryError
		if errors.As(err, &malformed) {
			log.Info("malformed query", "query", raw, "position", malformed.Position, "reason", malformed.Message)
			h.track(analytics.SearchEvent{
				Type:      analytics.EventMalformed,
				Query:     raw,
				Error:     malformed.Message,
				Position:  malformed.Position,
				LatencyMs: time.Since(start).Milliseconds(),
				RequestID: requestID,
			})
			h.writeJSON(w, http.StatusBadRequest, malformedResponse{Error: malformed.Message, Position: malformed.Position})
			return
		}
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	matchNone := query.CountMatchNone(node)
	span.SetAttr("compiled", node.String())

	var result *executor.SearchResult
	cacheHit := false
	execCtx, execSpan := tracing.StartChildSpan(ctx, "execute")
	// An execution that overruns the timeout keeps running after WithTimeout
	// returns, so it hands back its result on a channel instead of writing to
	// variables read here.
	outcome := make(chan execOutcome, 1)
	err = resilience.WithTimeout(execCtx, h.cfg.Timeout, "search", func(ctx context.Context) error {
		out, err := h.execute(ctx, node, limit, offset)
		if err != nil {
			return err
		}
		outcome <- out
		return nil
	})
	if err == nil {
		out := <-outcome
		result, cacheHit = out.result, out.cacheHit
	}
	execSpan.SetAttr("cache_hit", cacheHit)
	execSpan.End()

	latency := time.Since(start)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search execution failed", "query", raw, "compiled", node.String(), "error", err, "status", status)
		h.track(analytics.SearchEvent{
			Type:      analytics.EventFailed,
			Query:     raw,
			Compiled:  node.String(),
			Error:     err.Error(),
			MatchNone: matchNone,
			LatencyMs: latency.Milliseconds(),
			RequestID: requestID,
		})
		message := "search failed"
		if status == http.StatusBadRequest {
			message = err.Error()
		}
		h.writeError(w, status, message)
		return
	}

	h.observeSearch(latency, cacheHit, result)
	log.Info("search completed",
		"query", raw,
		"compiled", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"match_none", matchNone,
		"latency_ms", latency.Milliseconds(),
	)
	eventType := analytics.EventSearch
	if result.TotalHits == 0 {
		eventType = analytics.EventZeroResult
	}
	h.track(analytics.SearchEvent{
		Type:      eventType,
		Query:     raw,
		Compiled:  result.Query,
		MatchNone: matchNone,
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	})
	h.writeJSON(w, http.StatusOK, searchResponse{SearchResult: result, CacheHit: cacheHit})
}

// Explain serves GET /api/v1/query/explain?q= and shows how a query parses
// and compiles without running it.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if h.tooLong(w, raw) {
		return
	}
	ast, err := parser.Parse(raw)
	if err != nil {
		h.countCompile("malformed")
		var malformed *parser.MalformedQueryError
		if errors.As(err, &malformed) {
			h.writeJSON(w, http.StatusBadRequest, malformedResponse{Error: malformed.Message, Position: malformed.Position})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	node := compiler.Compile(ast, h.settings.Current())
	h.countCompile("ok")
	h.writeJSON(w, http.StatusOK, explainResponse{
		Query:     raw,
		AST:       ast.String(),
		Compiled:  node,
		Canonical: node.String(),
		MatchNone: query.CountMatchNone(node),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
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

type execOutcome struct {
	result   *executor.SearchResult
	cacheHit bool
}

func (h *Handler) execute(ctx context.Context, node query.Node, limit, offset int) (execOutcome, error) {
	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, node, limit, offset)
	}
	if h.cache == nil {
		result, err := compute()
		return execOutcome{result: result}, err
	}
	result, hit, err := h.cache.GetOrCompute(ctx, node, limit, offset, compute)
	return execOutcome{result: result, cacheHit: hit}, err
}

// compile parses and compiles raw under a child span, recording the outcome.
func (h *Handler) compile(ctx context.Context, raw string) (query.Node, error) {
	_, span := tracing.StartChildSpan(ctx, "compile")
	defer span.End()

	start := time.Now()
	ast, err := parser.Parse(raw)
	if err != nil {
		h.countCompile("malformed")
		span.SetAttr("error", err.Error())
		return nil, err
	}
	node := compiler.Compile(ast, h.settings.Current())
	if h.metrics != nil {
		h.metrics.CompileDuration.Observe(time.Since(start).Seconds())
		if n := query.CountMatchNone(node); n > 0 {
			h.metrics.MatchNoneTotal.Add(float64(n))
		}
	}
	h.countCompile("ok")
	return node, nil
}

func (h *Handler) tooLong(w http.ResponseWriter, raw string) bool {
	if h.cfg.MaxQueryLength <= 0 || len(raw) <= h.cfg.MaxQueryLength {
		return false
	}
	h.countCompile("too_long")
	err := apperrors.Newf(apperrors.ErrQueryTooLong, http.StatusRequestEntityTooLarge,
		"query is %d bytes, limit is %d", len(raw), h.cfg.MaxQueryLength)
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
	return true
}

func (h *Handler) paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = h.cfg.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = parsed
	}
	if h.cfg.MaxResults > 0 && limit > h.cfg.MaxResults {
		limit = h.cfg.MaxResults
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

func (h *Handler) countCompile(outcome string) {
	if h.metrics != nil {
		h.metrics.QueriesCompiledTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) observeSearch(latency time.Duration, cacheHit bool, result *executor.SearchResult) {
	if h.metrics == nil {
		return
	}
	status := "disabled"
	if h.cache != nil {
		status = "miss"
		if cacheHit {
			status = "hit"
		}
	}
	h.metrics.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(result.TotalHits))
}

func (h *Handler) track(event analytics.SearchEvent) {
	if h.collector == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.collector.Track(event)
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
