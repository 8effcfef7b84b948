package compiler

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
)

var defaultFields = []string{"title", "content"}

func testContext(rangeFields ...string) Context {
	return NewContext(
		defaultFields,
		map[string]string{"a": "mapped_a", "body": "content"},
		rangeFields,
		map[string]ExactField{
			"product": {Field: "product_slug", ValueAliases: map[string]string{"fx": "firefox"}},
			"locale":  {Field: "locale"},
		},
	)
}

func term(fields []string, text string) *query.TermQuery {
	return &query.TermQuery{Fields: fields, Text: text}
}

func TestCompileQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ctx   Context
		want  query.Node
	}{
		{
			name:  "adjacent words require every word",
			input: "firefox crashes",
			ctx:   testContext(),
			want: &query.BoolAnd{Children: []query.Node{
				term(defaultFields, "firefox"),
				term(defaultFields, "crashes"),
			}},
		},
		{
			name:  "single word",
			input: "firefox",
			ctx:   testContext(),
			want:  term(defaultFields, "firefox"),
		},
		{
			name:  "field alias narrows fields",
			input: "field:a:b",
			ctx:   testContext(),
			want:  term([]string{"mapped_a"}, "b"),
		},
		{
			name:  "field without alias passes through",
			input: "field:summary:b",
			ctx:   testContext(),
			want:  term([]string{"summary"}, "b"),
		},
		{
			name:  "allowed range",
			input: "range:a:b:c d",
			ctx:   testContext("a"),
			want: &query.BoolAnd{Children: []query.Node{
				&query.RangeQuery{Field: "mapped_a", Operator: "b", Value: "c"},
				term(defaultFields, "d"),
			}},
		},
		{
			name:  "disallowed range matches nothing",
			input: "range:a:b:c d",
			ctx:   testContext(),
			want: &query.BoolAnd{Children: []query.Node{
				&query.MatchNone{},
				term(defaultFields, "d"),
			}},
		},
		{
			name:  "quoted range value",
			input: `range:votes:gte:"10"`,
			ctx:   testContext("votes"),
			want:  &query.RangeQuery{Field: "votes", Operator: "gte", Value: "10"},
		},
		{
			name:  "negated phrase",
			input: `NOT "a b"`,
			ctx:   testContext(),
			want: &query.BoolNot{Child: &query.TermQuery{
				Fields: defaultFields, Text: "a b", Phrase: true,
			}},
		},
		{
			name:  "or sets minimum should match",
			input: "a OR b AND c",
			ctx:   testContext(),
			want: &query.BoolOr{MinimumShouldMatch: 1, Children: []query.Node{
				term(defaultFields, "a"),
				&query.BoolAnd{Children: []query.Node{
					term(defaultFields, "b"),
					term(defaultFields, "c"),
				}},
			}},
		},
		{
			name:  "double negation is kept",
			input: "NOT NOT a",
			ctx:   testContext(),
			want:  &query.BoolNot{Child: &query.BoolNot{Child: term(defaultFields, "a")}},
		},
		{
			name:  "exact with value alias",
			input: "exact:product:fx",
			ctx:   testContext(),
			want:  &query.TermsQuery{Field: "product_slug", Values: []string{"firefox"}},
		},
		{
			name:  "exact without value alias",
			input: `exact:product:"thunder bird"`,
			ctx:   testContext(),
			want:  &query.TermsQuery{Field: "product_slug", Values: []string{"thunder bird"}},
		},
		{
			name:  "exact on unknown field passes through",
			input: "exact:os:fx",
			ctx:   testContext(),
			want:  &query.TermsQuery{Field: "os", Values: []string{"fx"}},
		},
		{
			name:  "field scope does not leak to siblings",
			input: "field:body:(crash OR hang) startup",
			ctx:   testContext(),
			want: &query.BoolAnd{Children: []query.Node{
				&query.BoolOr{MinimumShouldMatch: 1, Children: []query.Node{
					term([]string{"content"}, "crash"),
					term([]string{"content"}, "hang"),
				}},
				term(defaultFields, "startup"),
			}},
		},
		{
			name:  "phrase next to words",
			input: `"start up" slow boot`,
			ctx:   testContext(),
			want: &query.BoolAnd{Children: []query.Node{
				&query.TermQuery{Fields: defaultFields, Text: "start up", Phrase: true},
				&query.BoolAnd{Children: []query.Node{
					term(defaultFields, "slow"),
					term(defaultFields, "boot"),
				}},
			}},
		},
		{
			name:  "non-breaking space stays inside the word",
			input: "wi\u00a0fi",
			ctx:   testContext(),
			want:  term(defaultFields, "wi\u00a0fi"),
		},
		{
			name:  "vertical tab stays inside the word",
			input: "wi\vfi drops",
			ctx:   testContext(),
			want: &query.BoolAnd{Children: []query.Node{
				term(defaultFields, "wi\vfi"),
				term(defaultFields, "drops"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompileQuery(tt.input, tt.ctx)
			if err != nil {
				t.Fatalf("CompileQuery(%q): %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CompileQuery(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestCompileQueryMalformed(t *testing.T) {
	got, err := CompileQuery("(a b", testContext())
	if got != nil {
		t.Errorf("CompileQuery returned %s alongside an error", got)
	}
	var mq *parser.MalformedQueryError
	if !errors.As(err, &mq) {
		t.Fatalf("CompileQuery error %T, want *parser.MalformedQueryError", err)
	}
	if !errors.Is(err, apperrors.ErrMalformedQuery) {
		t.Errorf("error does not wrap ErrMalformedQuery")
	}
}

func TestCompileDegenerateTrees(t *testing.T) {
	tests := []struct {
		name string
		node parser.Node
		want query.Node
	}{
		{"nil node", nil, &query.MatchNone{}},
		{"field without child", &parser.FieldNode{Field: "title"}, &query.MatchNone{}},
		{"not without child", &parser.NotNode{}, &query.BoolNot{Child: &query.MatchNone{}}},
		{"empty space", &parser.SpaceNode{}, &query.MatchNone{}},
		{"blank term", &parser.TermNode{Text: " "}, &query.MatchNone{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Compile(tt.node, testContext())); diff != "" {
				t.Errorf("Compile mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileIsPure(t *testing.T) {
	ast, err := parser.Parse("field:a:(x OR y) range:votes:gt:3 exact:product:fx NOT z")
	if err != nil {
		t.Fatal(err)
	}
	before := ast.String()
	ctx := testContext("votes")

	first := Compile(ast, ctx)
	second := Compile(ast, ctx)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("compiling twice differs (-first +second):\n%s", diff)
	}
	if ast.String() != before {
		t.Errorf("Compile modified the AST: %s", ast)
	}
	if diff := cmp.Diff(defaultFields, ctx.Fields()); diff != "" {
		t.Errorf("Compile modified the context fields (-want +got):\n%s", diff)
	}

	other := Compile(ast, testContext("votes").WithFields("summary"))
	if first.String() == other.String() {
		t.Errorf("different default fields produced the same query %s", other)
	}
}

func TestNewContextCopiesInputs(t *testing.T) {
	fields := []string{"title"}
	aliases := map[string]string{"a": "mapped_a"}
	ranges := []string{"votes"}
	exact := map[string]ExactField{"product": {Field: "product", ValueAliases: map[string]string{"fx": "firefox"}}}
	ctx := NewContext(fields, aliases, ranges, exact)

	fields[0] = "changed"
	aliases["a"] = "changed"
	ranges[0] = "changed"
	exact["product"].ValueAliases["fx"] = "changed"

	if got := ctx.Fields(); got[0] != "title" {
		t.Errorf("Fields()[0] = %q, want title", got[0])
	}
	if got := ctx.ResolveField("a"); got != "mapped_a" {
		t.Errorf("ResolveField(a) = %q, want mapped_a", got)
	}
	if !ctx.RangeAllowed("votes") || ctx.RangeAllowed("changed") {
		t.Errorf("range whitelist changed with caller slice")
	}
	if _, v := ctx.ResolveExact("product", "fx"); v != "firefox" {
		t.Errorf("ResolveExact value = %q, want firefox", v)
	}

	got := ctx.Fields()
	got[0] = "mutated"
	if ctx.Fields()[0] != "title" {
		t.Errorf("Fields() exposes internal slice")
	}
}

func TestCompileConcurrent(t *testing.T) {
	ctx := testContext("votes")
	want, err := CompileQuery("field:body:crash OR range:votes:gte:10 firefox", ctx)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := CompileQuery("field:body:crash OR range:votes:gte:10 firefox", ctx)
			if err != nil {
				errs <- err.Error()
				return
			}
			if got.String() != want.String() {
				errs <- got.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent compile: %s", e)
	}
}

func BenchmarkCompileQuery(b *testing.B) {
	ctx := testContext("votes")
	raw := `field:body:(crash OR "private browsing") AND NOT exact:product:fx range:votes:gt:10`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := CompileQuery(raw, ctx); err != nil {
			b.Fatal(err)
		}
	}
}
