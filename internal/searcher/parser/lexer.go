package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenTerm
	TokenRange
	TokenExact
	TokenField
	TokenNot
	TokenAnd
	TokenOr
	TokenLParen
	TokenRParen
)

var tokenNames = map[TokenKind]string{
	TokenEOF:    "end of query",
	TokenTerm:   "term",
	TokenRange:  "range",
	TokenExact:  "exact",
	TokenField:  "field",
	TokenNot:    "NOT",
	TokenAnd:    "AND",
	TokenOr:     "OR",
	TokenLParen: "'('",
	TokenRParen: "')'",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one lexical unit of a query. Field, Operator and Value are only
// set for the prefix kinds that carry them.
type Token struct {
	Kind     TokenKind
	Text     string
	Field    string
	Operator string
	Value    string
	Pos      int
}

// Rules are tried in order and the first match wins, so the prefix forms
// must precede Word. A prefix whose grammar does not match in full falls
// through to Word and stays a plain term. Range operators are free-form up to
// the next colon.
var queryLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Range", Pattern: `range:[A-Za-z_]+:[^\s():]+:(?:"(?:[^"\\]|\\.)*"|[^\s()]+)`},
	{Name: "Exact", Pattern: `exact:[A-Za-z_]+:(?:"(?:[^"\\]|\\.)*"|[^\s()]+)`},
	{Name: "Field", Pattern: `field:[A-Za-z_]+:`},
	{Name: "Phrase", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Word", Pattern: `[^\s()]+`},
})

var symbolKinds = func() map[lexer.TokenType]TokenKind {
	symbols := queryLexer.Symbols()
	return map[lexer.TokenType]TokenKind{
		symbols["LParen"]: TokenLParen,
		symbols["RParen"]: TokenRParen,
		symbols["Range"]:  TokenRange,
		symbols["Exact"]:  TokenExact,
		symbols["Field"]:  TokenField,
		symbols["Phrase"]: TokenTerm,
		symbols["Word"]:   TokenTerm,
	}
}()

var whitespaceType = queryLexer.Symbols()["Whitespace"]

// Tokenize splits a raw query into tokens. Whitespace is dropped; the
// returned slice never contains a TokenEOF.
func Tokenize(input string) ([]Token, error) {
	lex, err := queryLexer.LexString("", input)
	if err != nil {
		return nil, lexError(err)
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, lexError(err)
	}
	tokens := make([]Token, 0, len(raw))
	for _, rt := range raw {
		if rt.Type == lexer.EOF || rt.Type == whitespaceType {
			continue
		}
		kind, ok := symbolKinds[rt.Type]
		if !ok {
			return nil, &MalformedQueryError{
				Message:  fmt.Sprintf("unrecognised input %q", rt.Value),
				Position: rt.Pos.Offset,
			}
		}
		tokens = append(tokens, newToken(kind, rt.Value, rt.Pos.Offset))
	}
	return tokens, nil
}

func newToken(kind TokenKind, text string, pos int) Token {
	tok := Token{Kind: kind, Text: text, Pos: pos}
	switch kind {
	case TokenTerm:
		switch text {
		case "AND":
			tok.Kind = TokenAnd
		case "OR":
			tok.Kind = TokenOr
		case "NOT":
			tok.Kind = TokenNot
		}
	case TokenRange:
		// Neither field nor operator can contain a colon, so the value keeps
		// any further ones. The operator is checked when the query runs.
		parts := strings.SplitN(strings.TrimPrefix(text, "range:"), ":", 3)
		tok.Field, tok.Operator, tok.Value = parts[0], parts[1], parts[2]
	case TokenExact:
		parts := strings.SplitN(strings.TrimPrefix(text, "exact:"), ":", 2)
		tok.Field, tok.Value = parts[0], parts[1]
	case TokenField:
		tok.Field = strings.TrimSuffix(strings.TrimPrefix(text, "field:"), ":")
	}
	return tok
}

func lexError(err error) error {
	var positioned interface{ Position() lexer.Position }
	if errors.As(err, &positioned) {
		return &MalformedQueryError{Message: err.Error(), Position: positioned.Position().Offset}
	}
	return &MalformedQueryError{Message: err.Error()}
}

var phrasePattern = regexp.MustCompile(`^"(?:[^"\\]|\\.)*"$`)

// IsQuoted reports whether text is a complete double-quoted phrase.
func IsQuoted(text string) bool {
	return phrasePattern.MatchString(text)
}

// Unquote strips the surrounding quotes of a phrase and resolves \" and \\
// escapes. Text that is not a complete phrase is returned unchanged.
func Unquote(text string) string {
	if !IsQuoted(text) {
		return text
	}
	inner := text[1 : len(text)-1]
	if !strings.Contains(inner, `\`) {
		return inner
	}
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
