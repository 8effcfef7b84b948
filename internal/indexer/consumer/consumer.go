// Package consumer reads ingest events from Kafka and applies them to the
// indexer engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/metrics"
)

// Index is the write side of the indexer engine.
type Index interface {
	IndexDocument(id string, fields map[string]any) error
	DeleteDocument(id string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler applying each event to index. m and
// onChange may be nil; onChange runs after every applied event.
func HandleMessage(index Index, m *metrics.Metrics, onChange func(ctx context.Context)) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		if event.DocumentID == "" {
			return fmt.Errorf("%w: ingest event without document id", kafka.ErrPermanent)
		}

		switch event.Op {
		case ingestion.OpIndex, "":
			if err := index.IndexDocument(event.DocumentID, event.Fields); err != nil {
				return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
			}
			if m != nil {
				m.DocsIndexedTotal.WithLabelValues("kafka").Inc()
			}
			logger.Info("document indexed", "doc_id", event.DocumentID)
		case ingestion.OpDelete:
			if err := index.DeleteDocument(event.DocumentID); err != nil {
				return fmt.Errorf("deleting document %s: %w", event.DocumentID, err)
			}
			logger.Info("document deleted", "doc_id", event.DocumentID)
		default:
			return fmt.Errorf("%w: unknown ingest op %q for %s", kafka.ErrPermanent, event.Op, event.DocumentID)
		}

		if onChange != nil {
			onChange(ctx)
		}
		return nil
	}
}
