// Package executor runs compiled queries against the bleve index. Translate
// maps the engine-agnostic query tree onto bleve queries; Execute runs them.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
)

// Index is the part of the indexer engine the executor needs.
type Index interface {
	FieldType(field string) (string, bool)
	Run(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

type SearchResult struct {
	Query     string  `json:"query"`
	TotalHits uint64  `json:"total_hits"`
	Results   []Hit   `json:"results"`
	TookMs    float64 `json:"took_ms"`
}

type Executor struct {
	index  Index
	logger *slog.Logger
}

func New(index Index) *Executor {
	return &Executor{
		index:  index,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute translates node and returns one page of hits ordered by score,
// then document ID.
func (e *Executor) Execute(ctx context.Context, node query.Node, limit, offset int) (*SearchResult, error) {
	q, err := e.Translate(node)
	if err != nil {
		return nil, err
	}
	req := bleve.NewSearchRequestOptions(q, limit, offset, false)
	req.SortBy([]string{"-_score", "_id"})

	start := time.Now()
	res, err := e.index.Run(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("executing query: %w: %w", apperrors.ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("executing query: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{DocID: h.ID, Score: h.Score})
	}
	result := &SearchResult{
		Query:     node.String(),
		TotalHits: res.Total,
		Results:   hits,
		TookMs:    float64(time.Since(start).Microseconds()) / 1000,
	}
	e.logger.Debug("query executed",
		"query", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(hits),
	)
	return result, nil
}

// Translate maps node onto a bleve query. It fails only for range clauses the
// index cannot evaluate: an unknown operator, a field outside the schema, or a
// value that does not parse as the field's type.
func (e *Executor) Translate(node query.Node) (bq.Query, error) {
	switch n := node.(type) {
	case *query.BoolAnd:
		children, err := e.translateAll(n.Children)
		if err != nil {
			return nil, err
		}
		return bleve.NewConjunctionQuery(children...), nil
	case *query.BoolOr:
		children, err := e.translateAll(n.Children)
		if err != nil {
			return nil, err
		}
		q := bleve.NewDisjunctionQuery(children...)
		q.SetMin(float64(n.MinimumShouldMatch))
		return q, nil
	case *query.BoolNot:
		child, err := e.Translate(n.Child)
		if err != nil {
			return nil, err
		}
		q := bleve.NewBooleanQuery()
		q.AddMust(bleve.NewMatchAllQuery())
		q.AddMustNot(child)
		return q, nil
	case *query.TermQuery:
		return translateTerm(n), nil
	case *query.RangeQuery:
		return e.translateRange(n)
	case *query.TermsQuery:
		return translateTerms(n), nil
	case *query.MatchNone:
		return bleve.NewMatchNoneQuery(), nil
	default:
		return nil, fmt.Errorf("%w: unhandled query node %T", apperrors.ErrInternal, node)
	}
}

func (e *Executor) translateAll(nodes []query.Node) ([]bq.Query, error) {
	out := make([]bq.Query, 0, len(nodes))
	for _, n := range nodes {
		q, err := e.Translate(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// translateTerm requires all analysed words of the text within one field and
// accepts a match in any field.
func translateTerm(n *query.TermQuery) bq.Query {
	perField := make([]bq.Query, 0, len(n.Fields))
	for _, field := range n.Fields {
		if n.Phrase {
			q := bleve.NewMatchPhraseQuery(n.Text)
			q.SetField(field)
			perField = append(perField, q)
			continue
		}
		q := bleve.NewMatchQuery(n.Text)
		q.SetField(field)
		q.SetOperator(bq.MatchQueryOperatorAnd)
		perField = append(perField, q)
	}
	switch len(perField) {
	case 0:
		return bleve.NewMatchNoneQuery()
	case 1:
		return perField[0]
	default:
		return bleve.NewDisjunctionQuery(perField...)
	}
}

func translateTerms(n *query.TermsQuery) bq.Query {
	perValue := make([]bq.Query, 0, len(n.Values))
	for _, v := range n.Values {
		q := bleve.NewTermQuery(v)
		q.SetField(n.Field)
		perValue = append(perValue, q)
	}
	switch len(perValue) {
	case 0:
		return bleve.NewMatchNoneQuery()
	case 1:
		return perValue[0]
	default:
		return bleve.NewDisjunctionQuery(perValue...)
	}
}

// bounds reports which side of the range value sits on and whether it is
// inclusive.
func bounds(operator string) (lower bool, inclusive bool, err error) {
	switch operator {
	case "gt":
		return true, false, nil
	case "gte":
		return true, true, nil
	case "lt":
		return false, false, nil
	case "lte":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("%w: range operator %q (want gt, gte, lt or lte)", apperrors.ErrUnsupportedOperator, operator)
	}
}

func (e *Executor) translateRange(n *query.RangeQuery) (bq.Query, error) {
	lower, inclusive, err := bounds(n.Operator)
	if err != nil {
		return nil, err
	}
	if n.Value == "" {
		return nil, fmt.Errorf("%w: empty range value for field %q", apperrors.ErrInvalidInput, n.Field)
	}
	typ, ok := e.index.FieldType(n.Field)
	if !ok {
		return nil, fmt.Errorf("%w: range on unindexed field %q", apperrors.ErrInvalidInput, n.Field)
	}

	switch typ {
	case config.FieldNumeric:
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: range value %q for numeric field %q", apperrors.ErrInvalidInput, n.Value, n.Field)
		}
		var q *bq.NumericRangeQuery
		if lower {
			q = bleve.NewNumericRangeInclusiveQuery(&v, nil, &inclusive, nil)
		} else {
			q = bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, &inclusive)
		}
		q.SetField(n.Field)
		return q, nil
	case config.FieldDatetime:
		t, err := config.ParseDate(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: range value %q for date field %q", apperrors.ErrInvalidInput, n.Value, n.Field)
		}
		var q *bq.DateRangeQuery
		if lower {
			q = bleve.NewDateRangeInclusiveQuery(t, time.Time{}, &inclusive, nil)
		} else {
			q = bleve.NewDateRangeInclusiveQuery(time.Time{}, t, nil, &inclusive)
		}
		q.SetField(n.Field)
		return q, nil
	default:
		var q *bq.TermRangeQuery
		if lower {
			q = bleve.NewTermRangeInclusiveQuery(n.Value, "", &inclusive, nil)
		} else {
			q = bleve.NewTermRangeInclusiveQuery("", n.Value, nil, &inclusive)
		}
		q.SetField(n.Field)
		return q, nil
	}
}
