package lexer

import (
	"strings"

	"github.com/stackables/bridge/pkg/ast"
)

// Kind tags a lexical token produced by the Bridge DSL lexer.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	Number
	Bool
	Null
	String
	HTTPMethod
	BarePath // a bare "/foo/bar" atom, lexed as a string-typed value
	Dot
	Comma
	Colon
	Equals
	LBrace
	RBrace
	LBracket
	RBracket
	Arrow        // <-
	ForceArrow   // <-!
	NullCoalesce // ||
	ErrCoalesce  // ??
	Separator    // --- (legacy file-level separator)
	Newline
)

// Keywords recognized case-insensitively; "on error" is lexed as two
// keyword tokens ("on", "error") since it only appears as a two-word
// phrase in tool fallback declarations.
var keywords = map[string]bool{
	"version": true, "bridge": true, "tool": true, "const": true,
	"define": true, "with": true, "as": true, "from": true,
	"extends": true, "on": true, "error": true,
	"input": true, "output": true, "context": true,
}

// IsKeyword reports whether text lexes as a Keyword token (matched
// case-insensitively), rather than a plain Ident.
func IsKeyword(text string) bool {
	return keywords[strings.ToLower(text)]
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	"HEAD": true, "OPTIONS": true,
}

// Token is one lexical unit with its source position.
type Token struct {
	Kind Kind
	Text string
	Pos  ast.Position
}

func (t Token) String() string {
	return t.Text
}
