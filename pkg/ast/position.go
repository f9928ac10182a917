// Package ast defines the instruction model produced by the parser and
// consumed by the resolver, the execution tree, and the serializer.
//
// Values in this package are built once at load time and are immutable
// afterwards; nothing here performs validation or mutation beyond simple
// accessors.
package ast

import "fmt"

// Position identifies a token's location in Bridge source text, used for
// parse error reporting.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
