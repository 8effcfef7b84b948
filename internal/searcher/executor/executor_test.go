package executor

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
)

func newTestExecutor(t *testing.T) (*Executor, compiler.Context) {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexerConfig{Fields: map[string]string{
		"title":   config.FieldText,
		"content": config.FieldText,
		"product": config.FieldKeyword,
		"votes":   config.FieldNumeric,
		"created": config.FieldDatetime,
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	docs := map[string]map[string]any{
		"d1": {"title": "Firefox crashes on startup", "content": "the browser crashes", "product": "firefox", "votes": 12.0, "created": "2024-03-01T00:00:00Z"},
		"d2": {"title": "Thunderbird hangs", "content": "mail client hangs when firefox opens", "product": "thunderbird", "votes": 3.0, "created": "2023-06-01T00:00:00Z"},
		"d3": {"title": "Firefox slow", "content": "pages load slowly", "product": "firefox", "votes": 7.0, "created": "2024-01-15T00:00:00Z"},
		"d4": {"title": "Crash report", "content": "thunderbird crash on startup", "product": "thunderbird", "votes": 20.0, "created": "2022-12-01T00:00:00Z"},
	}
	if err := engine.IndexBatch(docs); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}

	ctx := compiler.NewContext(
		[]string{"title", "content"},
		map[string]string{"body": "content"},
		[]string{"votes", "created", "product"},
		map[string]compiler.ExactField{"product": {Field: "product", ValueAliases: map[string]string{"fx": "firefox"}}},
	)
	return New(engine), ctx
}

func ids(res *SearchResult) []string {
	out := make([]string, 0, len(res.Results))
	for _, h := range res.Results {
		out = append(out, h.DocID)
	}
	sort.Strings(out)
	return out
}

func TestExecute(t *testing.T) {
	exec, qctx := newTestExecutor(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"firefox", []string{"d1", "d2", "d3"}},
		{"FireFox", []string{"d1", "d2", "d3"}},
		{"firefox crashes", []string{"d1"}},
		{`"crash report"`, []string{"d4"}},
		{`"report crash"`, []string{}},
		{"firefox NOT thunderbird", []string{"d1", "d3"}},
		{"firefox OR crash", []string{"d1", "d2", "d3", "d4"}},
		{"startup AND thunderbird", []string{"d4"}},
		{"field:title:firefox", []string{"d1", "d3"}},
		{"field:body:firefox", []string{"d2"}},
		{"range:votes:gte:7", []string{"d1", "d3", "d4"}},
		{"range:votes:gt:7", []string{"d1", "d4"}},
		{"range:votes:lte:3", []string{"d2"}},
		{"range:created:lt:2024-01-01", []string{"d2", "d4"}},
		{"range:created:gte:2024-01-15T00:00:00Z", []string{"d1", "d3"}},
		{"range:product:gt:g", []string{"d2", "d4"}},
		{"range:title:gt:a", []string{}},
		{"exact:product:thunderbird", []string{"d2", "d4"}},
		{"exact:product:fx", []string{"d1", "d3"}},
		{"exact:product:fx range:votes:gt:10", []string{"d1"}},
		{"NOT NOT crash", []string{"d4"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := compiler.CompileQuery(tt.query, qctx)
			if err != nil {
				t.Fatalf("CompileQuery: %v", err)
			}
			res, err := exec.Execute(context.Background(), node, 10, 0)
			if err != nil {
				t.Fatalf("Execute(%s): %v", node, err)
			}
			if diff := cmp.Diff(tt.want, ids(res)); diff != "" {
				t.Errorf("Execute(%s) mismatch (-want +got):\n%s", node, diff)
			}
			if res.TotalHits != uint64(len(tt.want)) {
				t.Errorf("TotalHits = %d, want %d", res.TotalHits, len(tt.want))
			}
			if res.Query != node.String() {
				t.Errorf("Query = %q, want %q", res.Query, node.String())
			}
		})
	}
}

func TestExecutePaging(t *testing.T) {
	exec, qctx := newTestExecutor(t)
	node, err := compiler.CompileQuery("firefox", qctx)
	if err != nil {
		t.Fatal(err)
	}
	first, err := exec.Execute(context.Background(), node, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := exec.Execute(context.Background(), node, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Results) != 2 || len(second.Results) != 1 {
		t.Fatalf("pages of %d and %d, want 2 and 1", len(first.Results), len(second.Results))
	}
	if first.TotalHits != 3 || second.TotalHits != 3 {
		t.Errorf("TotalHits = %d/%d, want 3", first.TotalHits, second.TotalHits)
	}
	seen := map[string]bool{}
	for _, h := range append(first.Results, second.Results...) {
		if seen[h.DocID] {
			t.Errorf("document %s returned on both pages", h.DocID)
		}
		seen[h.DocID] = true
	}
}

func TestTranslateErrors(t *testing.T) {
	exec, _ := newTestExecutor(t)
	tests := []struct {
		name string
		node query.Node
		want error
	}{
		{"unknown operator", &query.RangeQuery{Field: "votes", Operator: "eq", Value: "3"}, apperrors.ErrUnsupportedOperator},
		{"bad number", &query.RangeQuery{Field: "votes", Operator: "gt", Value: "many"}, apperrors.ErrInvalidInput},
		{"bad date", &query.RangeQuery{Field: "created", Operator: "gt", Value: "yesterday"}, apperrors.ErrInvalidInput},
		{"unindexed field", &query.RangeQuery{Field: "rank", Operator: "gt", Value: "1"}, apperrors.ErrInvalidInput},
		{"empty value", &query.RangeQuery{Field: "product", Operator: "gt", Value: ""}, apperrors.ErrInvalidInput},
		{"nested", &query.BoolOr{MinimumShouldMatch: 1, Children: []query.Node{
			&query.TermQuery{Fields: []string{"title"}, Text: "a"},
			&query.BoolNot{Child: &query.RangeQuery{Field: "votes", Operator: "ne", Value: "1"}},
		}}, apperrors.ErrUnsupportedOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Translate(tt.node)
			if !errors.Is(err, tt.want) {
				t.Errorf("Translate = %v, want %v", err, tt.want)
			}
			if got := apperrors.HTTPStatusCode(err); got != 400 {
				t.Errorf("HTTPStatusCode = %d, want 400", got)
			}
		})
	}
}
