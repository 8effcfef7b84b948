package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/kafka"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

// Collector buffers search events without blocking the request path. Events
// go to the aggregator immediately and to Kafka in batches. When the buffer is
// full new events are dropped.
type Collector struct {
	producer      kafka.Publisher
	aggregator    *Aggregator
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	dropped atomic.Int64

	logger *slog.Logger
	done   chan struct{}
}

// NewCollector creates a Collector. producer and agg may each be nil.
func NewCollector(producer kafka.Publisher, agg *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		producer:      producer,
		aggregator:    agg,
		eventCh:       make(chan SearchEvent, bufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "kafka", c.producer != nil)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 || c.producer == nil {
			batch = batch[:0]
			return
		}
		if err := c.producer.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	add := func(event SearchEvent) {
		if c.aggregator != nil {
			c.aggregator.Record(event)
		}
		if c.producer != nil {
			batch = append(batch, kafka.Event{Key: string(event.Type), Value: event})
		}
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(flush)
				return
			}
			add(event)
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(add)
			c.finalFlush(flush)
			return
		}
	}
}

func (c *Collector) drain(add func(SearchEvent)) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			add(event)
		default:
			return
		}
	}
}

func (c *Collector) finalFlush(flush func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flush(ctx)
}

// Track queues event and reports whether it was accepted.
func (c *Collector) Track(event SearchEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.eventCh <- event:
		return true
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
		return false
	}
}

// Dropped reports how many events Track has rejected for lack of space.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be flushed.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}
