// Package parser turns a raw search query into an AST.
//
// The query language, from tightest to loosest binding:
//
//	field:<name>:<expr>   restrict <expr> to one field (prefix, right-assoc)
//	NOT <expr>            negation (prefix, right-assoc, stacks)
//	<a> AND <b> AND ...   conjunction
//	<a> OR <b> OR ...     disjunction
//	<a> <b> ...           whitespace adjacency
//
// Leaves are bare words, "quoted phrases", range:<field>:<op>:<value> and
// exact:<field>:<value>. Parentheses group.
package parser

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
)

// MaxDepth bounds the nesting of groups and prefix operators.
const MaxDepth = 128

// MalformedQueryError reports input the grammar cannot reduce to one AST.
// Position is a byte offset into the query.
type MalformedQueryError struct {
	Message  string
	Position int
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query at position %d: %s", e.Position, e.Message)
}

func (e *MalformedQueryError) Unwrap() error {
	return apperrors.ErrMalformedQuery
}

type Parser struct {
	tokens []Token
	pos    int
	end    int
	depth  int
}

// NewParser returns a parser over tokens taken from a query of inputLen bytes.
func NewParser(tokens []Token, inputLen int) *Parser {
	return &Parser{tokens: tokens, end: inputLen}
}

// Parse tokenizes and parses input. It either returns a complete AST or a
// *MalformedQueryError, never a partial tree.
func Parse(input string) (Node, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, len(input)).Parse()
}

func (p *Parser) Parse() (Node, error) {
	if len(p.tokens) == 0 {
		return nil, &MalformedQueryError{Message: "empty query", Position: 0}
	}
	node, err := p.parseSpace()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != TokenEOF {
		return nil, p.unexpected(tok)
	}
	return node, nil
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF, Pos: p.end}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) enter(tok Token) error {
	p.depth++
	if p.depth > MaxDepth {
		return &MalformedQueryError{Message: "query nested too deeply", Position: tok.Pos}
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

func (p *Parser) unexpected(tok Token) error {
	if tok.Kind == TokenEOF {
		return &MalformedQueryError{Message: "unexpected end of query", Position: tok.Pos}
	}
	return &MalformedQueryError{Message: fmt.Sprintf("unexpected %s", tok.Kind), Position: tok.Pos}
}

// startsOperand reports whether kind can begin an operand of the adjacency
// operator.
func startsOperand(kind TokenKind) bool {
	switch kind {
	case TokenTerm, TokenRange, TokenExact, TokenField, TokenNot, TokenLParen:
		return true
	default:
		return false
	}
}

func (p *Parser) parseSpace() (Node, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	for startsOperand(p.peek().Kind) {
		next, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return newSpaceNode(operands), nil
}

func (p *Parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().Kind == TokenOr {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &OrNode{Children: children}, nil
}

func (p *Parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek().Kind == TokenAnd {
		p.advance()
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &AndNode{Children: children}, nil
}

func (p *Parser) parseUnary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenField, TokenNot:
		p.advance()
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenField {
			return &FieldNode{Field: tok.Field, Child: child}, nil
		}
		return &NotNode{Child: child}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenTerm:
		p.advance()
		return &TermNode{Text: tok.Text}, nil
	case TokenRange:
		p.advance()
		return &RangeNode{Field: tok.Field, Operator: tok.Operator, Value: tok.Value}, nil
	case TokenExact:
		p.advance()
		return &ExactNode{Field: tok.Field, Value: tok.Value}, nil
	case TokenLParen:
		p.advance()
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		if p.peek().Kind == TokenRParen {
			return nil, &MalformedQueryError{Message: "empty group", Position: tok.Pos}
		}
		inner, err := p.parseSpace()
		if err != nil {
			return nil, err
		}
		if p.peek().Kind != TokenRParen {
			return nil, &MalformedQueryError{Message: "unbalanced parenthesis", Position: tok.Pos}
		}
		p.advance()
		return inner, nil
	default:
		return nil, p.unexpected(tok)
	}
}
