package parser

import (
	"fmt"

	"github.com/stackables/bridge/pkg/ast"
)

// Error is a parse-time error carrying the source position the grammar
// violation was detected at, per spec.md §4.2 "Errors".
type Error struct {
	Pos     ast.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

func errAt(pos ast.Position, format string, args ...any) *Error {
	return &Error{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
