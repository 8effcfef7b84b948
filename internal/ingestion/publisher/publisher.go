// Package publisher hands validated documents to the index. With a Kafka
// producer configured it publishes ingest events for the index consumer;
// without one it writes to the local engine directly.
package publisher

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/metrics"
)

// Index is the write side of the indexer engine.
type Index interface {
	IndexDocument(id string, fields map[string]any) error
	DeleteDocument(id string) error
}

type Publisher struct {
	index    Index
	producer kafka.Publisher
	metrics  *metrics.Metrics
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

// New creates a Publisher. producer and m may be nil.
func New(index Index, producer kafka.Publisher, m *metrics.Metrics) *Publisher {
	return &Publisher{
		index:    index,
		producer: producer,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// OnChange registers fn to run after a direct write changes the index.
func (p *Publisher) OnChange(fn func(ctx context.Context)) {
	p.onChange = fn
}

// Ingest stores fields under id, generating an id when it is empty.
func (p *Publisher) Ingest(ctx context.Context, id string, fields map[string]any) (*ingestion.IngestResponse, error) {
	if id == "" {
		id = newDocumentID()
	}
	if p.producer != nil {
		if err := p.publish(ctx, ingestion.IngestEvent{
			Op:         ingestion.OpIndex,
			DocumentID: id,
			Fields:     fields,
			IngestedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		return &ingestion.IngestResponse{DocumentID: id, Status: ingestion.StatusPending}, nil
	}

	if err := p.index.IndexDocument(id, fields); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInternal, err)
	}
	if p.metrics != nil {
		p.metrics.DocsIndexedTotal.WithLabelValues("api").Inc()
	}
	p.changed(ctx)
	return &ingestion.IngestResponse{DocumentID: id, Status: ingestion.StatusIndexed}, nil
}

// Delete removes id from the index, or publishes its deletion.
func (p *Publisher) Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error) {
	if p.producer != nil {
		if err := p.publish(ctx, ingestion.IngestEvent{
			Op:         ingestion.OpDelete,
			DocumentID: id,
			IngestedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		return &ingestion.IngestResponse{DocumentID: id, Status: ingestion.StatusPending}, nil
	}

	if err := p.index.DeleteDocument(id); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInternal, err)
	}
	p.changed(ctx)
	return &ingestion.IngestResponse{DocumentID: id, Status: ingestion.StatusDeleted}, nil
}

func (p *Publisher) publish(ctx context.Context, event ingestion.IngestEvent) error {
	err := p.producer.Publish(ctx, kafka.Event{Key: event.DocumentID, Value: event})
	if err != nil {
		p.logger.Error("failed to publish ingest event",
			"doc_id", event.DocumentID,
			"op", event.Op,
			"error", err,
		)
		return fmt.Errorf("%w: publishing ingest event: %w", apperrors.ErrUnavailable, err)
	}
	return nil
}

func (p *Publisher) changed(ctx context.Context) {
	if p.onChange != nil {
		p.onChange(ctx)
	}
}

func newDocumentID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("doc-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
