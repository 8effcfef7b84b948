package parser

import (
	"fmt"
	"strings"
)

// Node is a parsed query expression. The set of implementations is closed;
// consumers switch over the concrete types.
type Node interface {
	String() string
	astNode()
}

// TermNode is a bare word, a merged run of bare words, or a quoted phrase
// (quotes included).
type TermNode struct {
	Text string
}

// RangeNode is range:<field>:<operator>:<value>.
type RangeNode struct {
	Field    string
	Operator string
	Value    string
}

// ExactNode is exact:<field>:<value>.
type ExactNode struct {
	Field string
	Value string
}

// FieldNode restricts the fields searched by Child to Field.
type FieldNode struct {
	Field string
	Child Node
}

type NotNode struct {
	Child Node
}

// AndNode always has at least two children.
type AndNode struct {
	Children []Node
}

// OrNode always has at least two children.
type OrNode struct {
	Children []Node
}

// SpaceNode joins whitespace-adjacent operands. Merging adjacent terms can
// leave it with a single child.
type SpaceNode struct {
	Children []Node
}

func (*TermNode) astNode()  {}
func (*RangeNode) astNode() {}
func (*ExactNode) astNode() {}
func (*FieldNode) astNode() {}
func (*NotNode) astNode()   {}
func (*AndNode) astNode()   {}
func (*OrNode) astNode()    {}
func (*SpaceNode) astNode() {}

// Quoted reports whether the term is a phrase.
func (n *TermNode) Quoted() bool {
	return IsQuoted(n.Text)
}

func (n *TermNode) String() string {
	return fmt.Sprintf("Term(%q)", n.Text)
}

func (n *RangeNode) String() string {
	return fmt.Sprintf("Range(%q, %q, %q)", n.Field, n.Operator, n.Value)
}

func (n *ExactNode) String() string {
	return fmt.Sprintf("Exact(%q, %q)", n.Field, n.Value)
}

func (n *FieldNode) String() string {
	return fmt.Sprintf("Field(%q, %s)", n.Field, n.Child)
}

func (n *NotNode) String() string {
	return fmt.Sprintf("Not(%s)", n.Child)
}

func (n *AndNode) String() string {
	return "And(" + joinNodes(n.Children) + ")"
}

func (n *OrNode) String() string {
	return "Or(" + joinNodes(n.Children) + ")"
}

func (n *SpaceNode) String() string {
	return "Space(" + joinNodes(n.Children) + ")"
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}

// newSpaceNode merges each unquoted term into a directly preceding unquoted
// term. Phrases and operator results are kept as separate children.
func newSpaceNode(operands []Node) *SpaceNode {
	children := make([]Node, 0, len(operands))
	for _, op := range operands {
		if term, ok := op.(*TermNode); ok && !term.Quoted() && len(children) > 0 {
			if prev, ok := children[len(children)-1].(*TermNode); ok && !prev.Quoted() {
				children[len(children)-1] = &TermNode{Text: prev.Text + " " + term.Text}
				continue
			}
		}
		children = append(children, op)
	}
	return &SpaceNode{Children: children}
}
