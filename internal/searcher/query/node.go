// Package query defines the engine-agnostic query tree produced by the
// compiler and consumed by the search executor.
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Node is a compiled query. The set of implementations is closed.
type Node interface {
	String() string
	queryNode()
}

// BoolAnd matches documents matching every child.
type BoolAnd struct {
	Children []Node
}

// BoolOr matches documents matching at least MinimumShouldMatch children.
type BoolOr struct {
	Children           []Node
	MinimumShouldMatch int
}

type BoolNot struct {
	Child Node
}

// TermQuery matches Text in any of Fields. A phrase must occur contiguously
// and in order; otherwise every word of Text must occur.
type TermQuery struct {
	Fields []string
	Text   string
	Phrase bool
}

// RangeQuery compares Field against Value using Operator (gt, gte, lt, lte).
type RangeQuery struct {
	Field    string
	Operator string
	Value    string
}

// TermsQuery matches documents whose Field holds exactly one of Values.
type TermsQuery struct {
	Field  string
	Values []string
}

// MatchNone matches no documents.
type MatchNone struct{}

func (*BoolAnd) queryNode()    {}
func (*BoolOr) queryNode()     {}
func (*BoolNot) queryNode()    {}
func (*TermQuery) queryNode()  {}
func (*RangeQuery) queryNode() {}
func (*TermsQuery) queryNode() {}
func (*MatchNone) queryNode()  {}

// String renders a canonical form: equal trees render equally.
func (n *BoolAnd) String() string {
	return "and(" + joinNodes(n.Children) + ")"
}

func (n *BoolOr) String() string {
	return fmt.Sprintf("or[min=%d](%s)", n.MinimumShouldMatch, joinNodes(n.Children))
}

func (n *BoolNot) String() string {
	return "not(" + n.Child.String() + ")"
}

func (n *TermQuery) String() string {
	kind := "term"
	if n.Phrase {
		kind = "phrase"
	}
	return fmt.Sprintf("%s(%s, %s)", kind, quoteAll(n.Fields), strconv.Quote(n.Text))
}

func (n *RangeQuery) String() string {
	return fmt.Sprintf("range(%s %s %s)", strconv.Quote(n.Field), n.Operator, strconv.Quote(n.Value))
}

func (n *TermsQuery) String() string {
	return fmt.Sprintf("terms(%s, %s)", strconv.Quote(n.Field), quoteAll(n.Values))
}

func (n *MatchNone) String() string {
	return "match_none()"
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, " ") + "]"
}

// Walk calls fn for n and every node below it, parents first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	switch n := n.(type) {
	case *BoolAnd:
		for _, c := range n.Children {
			Walk(c, fn)
		}
	case *BoolOr:
		for _, c := range n.Children {
			Walk(c, fn)
		}
	case *BoolNot:
		Walk(n.Child, fn)
	}
}

// CountMatchNone returns the number of MatchNone leaves in n.
func CountMatchNone(n Node) int {
	count := 0
	Walk(n, func(n Node) {
		if _, ok := n.(*MatchNone); ok {
			count++
		}
	})
	return count
}

func (n *BoolAnd) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"bool_and": n.Children})
}

func (n *BoolOr) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"bool_or": map[string]any{
		"children":             n.Children,
		"minimum_should_match": n.MinimumShouldMatch,
	}})
}

func (n *BoolNot) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"bool_not": n.Child})
}

func (n *TermQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"term": map[string]any{
		"fields": n.Fields,
		"text":   n.Text,
		"phrase": n.Phrase,
	}})
}

func (n *RangeQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"range": map[string]any{
		"field":    n.Field,
		"operator": n.Operator,
		"value":    n.Value,
	}})
}

func (n *TermsQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"terms": map[string]any{
		"field":  n.Field,
		"values": n.Values,
	}})
}

func (n *MatchNone) MarshalJSON() ([]byte, error) {
	return []byte(`{"match_none":{}}`), nil
}
