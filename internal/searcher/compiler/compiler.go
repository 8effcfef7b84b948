// Package compiler turns a parsed query into an engine-agnostic query tree.
// Compilation is total: every AST compiles, and the only failures of
// CompileQuery come from parsing.
package compiler

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/searcher/query"
)

// CompileQuery parses raw and compiles it against ctx. Parse failures are
// returned as *parser.MalformedQueryError.
func CompileQuery(raw string, ctx Context) (query.Node, error) {
	ast, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Compile(ast, ctx), nil
}

// Compile translates node under ctx. It does not modify node or ctx. A nil
// or unrecognised node compiles to MatchNone.
func Compile(node parser.Node, ctx Context) query.Node {
	switch n := node.(type) {
	case *parser.TermNode:
		return compileTerm(n, ctx)
	case *parser.FieldNode:
		return Compile(n.Child, ctx.WithFields(ctx.ResolveField(n.Field)))
	case *parser.NotNode:
		return &query.BoolNot{Child: Compile(n.Child, ctx)}
	case *parser.AndNode:
		return &query.BoolAnd{Children: compileAll(n.Children, ctx)}
	case *parser.OrNode:
		return &query.BoolOr{Children: compileAll(n.Children, ctx), MinimumShouldMatch: 1}
	case *parser.SpaceNode:
		switch len(n.Children) {
		case 0:
			return &query.MatchNone{}
		case 1:
			return Compile(n.Children[0], ctx)
		}
		return &query.BoolAnd{Children: compileAll(n.Children, ctx)}
	case *parser.RangeNode:
		// Ranges on fields outside the whitelist match nothing instead of
		// reaching the backend.
		if !ctx.RangeAllowed(n.Field) {
			return &query.MatchNone{}
		}
		return &query.RangeQuery{
			Field:    ctx.ResolveField(n.Field),
			Operator: n.Operator,
			Value:    parser.Unquote(n.Value),
		}
	case *parser.ExactNode:
		field, value := ctx.ResolveExact(n.Field, parser.Unquote(n.Value))
		return &query.TermsQuery{Field: field, Values: []string{value}}
	default:
		return &query.MatchNone{}
	}
}

func compileAll(nodes []parser.Node, ctx Context) []query.Node {
	out := make([]query.Node, len(nodes))
	for i, n := range nodes {
		out[i] = Compile(n, ctx)
	}
	return out
}

// compileTerm requires every word of an unquoted term on its own, each in any
// of the scoped fields. A phrase compiles to a single phrase query.
func compileTerm(n *parser.TermNode, ctx Context) query.Node {
	if n.Quoted() {
		return &query.TermQuery{Fields: ctx.Fields(), Text: parser.Unquote(n.Text), Phrase: true}
	}
	words := strings.FieldsFunc(n.Text, isQuerySpace)
	switch len(words) {
	case 0:
		return &query.MatchNone{}
	case 1:
		return &query.TermQuery{Fields: ctx.Fields(), Text: words[0]}
	}
	children := make([]query.Node, len(words))
	for i, w := range words {
		children[i] = &query.TermQuery{Fields: ctx.Fields(), Text: w}
	}
	return &query.BoolAnd{Children: children}
}

// isQuerySpace matches the separators the tokenizer splits on (RE2 \s), so
// other Unicode spaces stay inside a word.
func isQuerySpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}
