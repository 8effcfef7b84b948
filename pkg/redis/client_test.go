package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
)

// newTestClient connects to SP_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SP_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr, PoolSize: 2}, "sqc-test-"+t.Name())
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !IsNilError(err) {
		t.Fatalf("Get(missing) error = %v, want redis nil", err)
	}
	if err := c.Set(ctx, "search:a", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "search:b", []byte("2"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "search:a")
	if err != nil || string(got) != "1" {
		t.Fatalf("Get(search:a) = %q, %v", got, err)
	}

	n, err := c.FlushByPattern(ctx, "search:*")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("FlushByPattern removed %d keys, want 2", n)
	}
	if _, err := c.Get(ctx, "search:b"); !IsNilError(err) {
		t.Errorf("key survived flush: %v", err)
	}
}
