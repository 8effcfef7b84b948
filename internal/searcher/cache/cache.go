// Package cache stores search results in Redis keyed by the compiled query,
// so differently written queries that compile to the same tree share an
// entry. Concurrent misses for one key are collapsed with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend; *pkgredis.Client satisfies it. Get must
// report a missing key with an error for which pkgredis.IsNilError is true.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats is the payload of the cache stats endpoint.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"circuit_breaker"`
}

// New returns a cache over store. m may be nil.
func New(store Store, ttl time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives the cache key for one page of node's results.
func Key(node query.Node, limit, offset int) string {
	raw := fmt.Sprintf("%s|limit=%d|offset=%d", node.String(), limit, offset)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	miss := false
	err := c.breaker.Execute(func() error {
		d, err := c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = true
			return nil
		}
		data = d
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if miss {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached page for node or computes and stores it.
// The boolean reports a cache hit. Cache failures degrade to computing.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	node query.Node,
	limit, offset int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := Key(node, limit, offset)
	if result, ok := c.get(ctx, key); ok {
		c.recordHit()
		return result, true, nil
	}
	c.recordMiss()
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached page, e.g. after documents change.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		n, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
		deleted = n
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Breaker: c.breaker.GetState().String()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
