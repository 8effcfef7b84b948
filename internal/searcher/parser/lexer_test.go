package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Token
	}{
		{
			name:  "bare words",
			input: "firefox crashes",
			want: []Token{
				{Kind: TokenTerm, Text: "firefox", Pos: 0},
				{Kind: TokenTerm, Text: "crashes", Pos: 8},
			},
		},
		{
			name:  "phrase keeps quotes",
			input: `"crash report"`,
			want:  []Token{{Kind: TokenTerm, Text: `"crash report"`, Pos: 0}},
		},
		{
			name:  "keywords",
			input: "a AND b OR NOT c",
			want: []Token{
				{Kind: TokenTerm, Text: "a", Pos: 0},
				{Kind: TokenAnd, Text: "AND", Pos: 2},
				{Kind: TokenTerm, Text: "b", Pos: 6},
				{Kind: TokenOr, Text: "OR", Pos: 8},
				{Kind: TokenNot, Text: "NOT", Pos: 11},
				{Kind: TokenTerm, Text: "c", Pos: 15},
			},
		},
		{
			name:  "keyword prefix is a term",
			input: "ANDROID or",
			want: []Token{
				{Kind: TokenTerm, Text: "ANDROID", Pos: 0},
				{Kind: TokenTerm, Text: "or", Pos: 8},
			},
		},
		{
			name:  "range",
			input: "range:votes:gte:10",
			want: []Token{{
				Kind: TokenRange, Text: "range:votes:gte:10",
				Field: "votes", Operator: "gte", Value: "10", Pos: 0,
			}},
		},
		{
			name:  "range value keeps colons",
			input: "range:created:lt:2024-01-01T00:00:00Z",
			want: []Token{{
				Kind: TokenRange, Text: "range:created:lt:2024-01-01T00:00:00Z",
				Field: "created", Operator: "lt", Value: "2024-01-01T00:00:00Z", Pos: 0,
			}},
		},
		{
			name:  "range operator is not restricted to letters",
			input: "range:votes:>=:10",
			want: []Token{{
				Kind: TokenRange, Text: "range:votes:>=:10",
				Field: "votes", Operator: ">=", Value: "10", Pos: 0,
			}},
		},
		{
			name:  "range with missing value falls back to term",
			input: "range:a:b",
			want:  []Token{{Kind: TokenTerm, Text: "range:a:b", Pos: 0}},
		},
		{
			name:  "exact with quoted value",
			input: `exact:product:"firefox os"`,
			want: []Token{{
				Kind: TokenExact, Text: `exact:product:"firefox os"`,
				Field: "product", Value: `"firefox os"`, Pos: 0,
			}},
		},
		{
			name:  "exact with bad field name falls back to term",
			input: "exact:pro-duct:firefox",
			want:  []Token{{Kind: TokenTerm, Text: "exact:pro-duct:firefox", Pos: 0}},
		},
		{
			name:  "field prefix",
			input: "field:title:(a b)",
			want: []Token{
				{Kind: TokenField, Text: "field:title:", Field: "title", Pos: 0},
				{Kind: TokenLParen, Text: "(", Pos: 12},
				{Kind: TokenTerm, Text: "a", Pos: 13},
				{Kind: TokenTerm, Text: "b", Pos: 15},
				{Kind: TokenRParen, Text: ")", Pos: 16},
			},
		},
		{
			name:  "field without trailing colon is a term",
			input: "field:title",
			want:  []Token{{Kind: TokenTerm, Text: "field:title", Pos: 0}},
		},
		{
			name:  "unterminated quote is a literal word",
			input: `"crash report`,
			want: []Token{
				{Kind: TokenTerm, Text: `"crash`, Pos: 0},
				{Kind: TokenTerm, Text: "report", Pos: 7},
			},
		},
		{
			name:  "escaped quote inside phrase",
			input: `"say \"hi\""`,
			want:  []Token{{Kind: TokenTerm, Text: `"say \"hi\""`, Pos: 0}},
		},
		{
			name:  "whitespace only",
			input: " \t\n",
			want:  []Token{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize(%q): %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"a b"`, "a b"},
		{`"say \"hi\""`, `say "hi"`},
		{`"back\\slash"`, `back\slash`},
		{`""`, ""},
		{`"open`, `"open`},
		{"plain", "plain"},
		{`"a\\"`, `a\`},
	}
	for _, tt := range tests {
		if got := Unquote(tt.in); got != tt.want {
			t.Errorf("Unquote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`"a b"`, true},
		{`""`, true},
		{`"a\"`, false},
		{`"a\\"`, true},
		{`"a`, false},
		{`a"`, false},
		{`"`, false},
	}
	for _, tt := range tests {
		if got := IsQuoted(tt.in); got != tt.want {
			t.Errorf("IsQuoted(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTokenKindString(t *testing.T) {
	if got := TokenRParen.String(); got != "')'" {
		t.Errorf("TokenRParen.String() = %q", got)
	}
	if got := TokenKind(99).String(); got != "TokenKind(99)" {
		t.Errorf("TokenKind(99).String() = %q", got)
	}
}

func TestLexErrorIsMalformed(t *testing.T) {
	err := lexError(errors.New("boom"))
	var mq *MalformedQueryError
	if !errors.As(err, &mq) {
		t.Fatalf("lexError returned %T, want *MalformedQueryError", err)
	}
	if mq.Message != "boom" {
		t.Errorf("Message = %q, want %q", mq.Message, "boom")
	}
}
