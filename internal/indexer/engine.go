// Package indexer owns the bleve index that compiled queries run against:
// it builds the field mapping from configuration and serialises writes.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
)

// textAnalyzer splits on Unicode word boundaries and lowercases, without
// stop words, so every word of a query term stays searchable.
const textAnalyzer = "query_text"

type Engine struct {
	index  bleve.Index
	fields map[string]string
	cfg    config.IndexerConfig
	logger *slog.Logger
}

// NewEngine opens the index in cfg.DataDir, creating it if needed. An empty
// DataDir gives an in-memory index.
func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	logger := slog.Default().With("component", "indexer")
	m, err := buildMapping(cfg.Fields)
	if err != nil {
		return nil, fmt.Errorf("building index mapping: %w", err)
	}

	var idx bleve.Index
	switch {
	case cfg.DataDir == "":
		idx, err = bleve.NewMemOnly(m)
	default:
		idx, err = bleve.Open(cfg.DataDir)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			logger.Info("creating new index", "data_dir", cfg.DataDir)
			if mkErr := os.MkdirAll(filepath.Dir(cfg.DataDir), 0o755); mkErr != nil {
				return nil, fmt.Errorf("creating index parent directory: %w", mkErr)
			}
			idx, err = bleve.New(cfg.DataDir, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %q: %w", cfg.DataDir, err)
	}

	fields := make(map[string]string, len(cfg.Fields))
	for name, typ := range cfg.Fields {
		fields[name] = typ
	}
	count, _ := idx.DocCount()
	logger.Info("index opened",
		"data_dir", cfg.DataDir,
		"fields", len(fields),
		"documents", count,
	)
	return &Engine{index: idx, fields: fields, cfg: cfg, logger: logger}, nil
}

func buildMapping(fields map[string]string) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = textAnalyzer

	doc := bleve.NewDocumentStaticMapping()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var fm *mapping.FieldMapping
		switch fields[name] {
		case config.FieldText:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = textAnalyzer
			fm.IncludeTermVectors = true
		case config.FieldKeyword:
			fm = bleve.NewKeywordFieldMapping()
		case config.FieldNumeric:
			fm = bleve.NewNumericFieldMapping()
		case config.FieldDatetime:
			fm = bleve.NewDateTimeFieldMapping()
		default:
			return nil, fmt.Errorf("field %s: unknown type %q", name, fields[name])
		}
		fm.Store = false
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(name, fm)
	}
	im.DefaultMapping = doc
	return im, nil
}

// FieldType returns the configured type of field.
func (e *Engine) FieldType(field string) (string, bool) {
	typ, ok := e.fields[field]
	return typ, ok
}

// Fields returns a copy of the field schema.
func (e *Engine) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// IndexDocument adds or replaces the document with id. Fields outside the
// schema are ignored by the mapping.
func (e *Engine) IndexDocument(id string, fields map[string]any) error {
	if err := e.index.Index(id, fields); err != nil {
		return fmt.Errorf("indexing document %s: %w", id, err)
	}
	e.logger.Debug("document indexed", "doc_id", id, "fields", len(fields))
	return nil
}

// IndexBatch indexes several documents in one write.
func (e *Engine) IndexBatch(docs map[string]map[string]any) error {
	batch := e.index.NewBatch()
	for id, fields := range docs {
		if err := batch.Index(id, fields); err != nil {
			return fmt.Errorf("batching document %s: %w", id, err)
		}
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("indexing batch of %d: %w", len(docs), err)
	}
	return nil
}

// DeleteDocument removes id. Deleting an unknown id is not an error.
func (e *Engine) DeleteDocument(id string) error {
	if err := e.index.Delete(id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

func (e *Engine) DocCount() (uint64, error) {
	return e.index.DocCount()
}

// Run executes a prepared bleve request.
func (e *Engine) Run(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return e.index.SearchInContext(ctx, req)
}

// Ping reports whether the index can serve reads.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.index.DocCount()
	return err
}

func (e *Engine) Close() error {
	e.logger.Info("closing index")
	return e.index.Close()
}
