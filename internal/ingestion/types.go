// Package ingestion defines the request/response types and Kafka event schema
// used to feed documents into the search index.
package ingestion

import "time"

// Document statuses reported to callers.
const (
	StatusIndexed = "INDEXED"
	StatusPending = "PENDING"
	StatusDeleted = "DELETED"
)

// Event operations.
const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty ID is replaced by a generated one.
type IngestRequest struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// IngestResponse is returned to the caller after a document is accepted.
// Status is INDEXED when the document is searchable on return and PENDING
// when it was handed to Kafka.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent is the Kafka message payload on the document ingest topic.
// Fields are already validated and normalised.
type IngestEvent struct {
	Op         string         `json:"op"`
	DocumentID string         `json:"document_id"`
	Fields     map[string]any `json:"fields,omitempty"`
	IngestedAt time.Time      `json:"ingested_at"`
}
