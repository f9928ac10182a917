// Package serializer is the inverse of pkg/parser: it renders an
// instruction list back into Bridge DSL source text, brace-delimited
// only (the legacy indentation form is accepted by the parser but never
// re-emitted here, per spec.md §9 "Open Questions").
package serializer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/lexer"
)

// Serialize renders instrs back to Bridge DSL source: a "version 1.0"
// line, then one top-level block per instruction in input order, each
// preceded by a blank line.
func Serialize(instrs []ast.Instruction) (string, error) {
	var b strings.Builder
	b.WriteString("version 1.0\n")
	for _, instr := range instrs {
		b.WriteString("\n")
		switch v := instr.(type) {
		case *ast.Bridge:
			writeBridge(&b, v)
		case *ast.ToolDef:
			writeToolDef(&b, v)
		case *ast.ConstDef:
			writeConstDef(&b, v)
		case *ast.DefineDef:
			writeDefineDef(&b, v)
		default:
			return "", fmt.Errorf("serializer: unknown instruction type %T", instr)
		}
	}
	return b.String(), nil
}

func writeBridge(b *strings.Builder, br *ast.Bridge) {
	fmt.Fprintf(b, "bridge %s.%s {\n", br.Type, br.Field)
	if br.Passthrough != nil {
		fmt.Fprintf(b, "  with %s\n", *br.Passthrough)
		b.WriteString("}\n")
		return
	}
	writeBody(b, 1, "", br.Handles, br.Wires, br.ArrayIterators, br.HandleScope)
	b.WriteString("}\n")
}

func writeDefineDef(b *strings.Builder, d *ast.DefineDef) {
	fmt.Fprintf(b, "define %s {\n", d.Ident)
	writeBody(b, 1, "", d.Handles, d.Wires, d.ArrayIterators, d.HandleScope)
	b.WriteString("}\n")
}

func writeToolDef(b *strings.Builder, t *ast.ToolDef) {
	fmt.Fprintf(b, "tool %s", t.Ident)
	if t.Extends != "" {
		fmt.Fprintf(b, " extends %s", t.Extends)
	}
	b.WriteString(" {\n")
	if t.Fn != "" {
		fmt.Fprintf(b, "  fn %s\n", t.Fn)
	}
	writeBody(b, 1, "", t.Deps, t.Wires, t.ArrayIterators, t.HandleScope)
	b.WriteString("}\n")
}

func writeConstDef(b *strings.Builder, c *ast.ConstDef) {
	fmt.Fprintf(b, "const %s = %s\n", c.Ident, literalText(c.Value))
}

// writeBody emits every handle declared in this scope, then every wire
// declared in this scope, recursing into nested array-mapping blocks by
// reconstructing them from the flat Wires/ArrayIterators/ScopeParent
// representation the parser stamps onto each element.
func writeBody(b *strings.Builder, depth int, scope string, handles []ast.HandleBinding, wires []ast.Wire, arrayIterators map[string]string, handleScope map[string]string) {
	indent := strings.Repeat("  ", depth)

	for _, hb := range handles {
		if handleScope[hb.Alias] != scope {
			continue
		}
		writeHandle(b, indent, hb)
	}

	for _, w := range wires {
		if w.Scope != scope || w.Pipe {
			// Pipe-hop wires are synthetic (one per ":" hop) and never
			// emitted as standalone statements; they're threaded back
			// into the wire that references their "out" through refText.
			continue
		}
		writeWire(b, indent, depth, w, wires, arrayIterators, handleScope, handles)
	}
}

func writeHandle(b *strings.Builder, indent string, hb ast.HandleBinding) {
	switch hb.Source {
	case ast.SourceInput:
		fmt.Fprintf(b, "%swith input\n", indent)
	case ast.SourceOutput:
		fmt.Fprintf(b, "%swith output\n", indent)
	case ast.SourceContext:
		fmt.Fprintf(b, "%swith context\n", indent)
	case ast.SourceConst:
		fmt.Fprintf(b, "%swith const\n", indent)
	case ast.SourceTool, ast.SourceDefine:
		if hb.Alias == hb.ToolName {
			fmt.Fprintf(b, "%swith %s\n", indent, hb.ToolName)
		} else {
			fmt.Fprintf(b, "%swith %s as %s\n", indent, hb.ToolName, hb.Alias)
		}
	}
}

func writeWire(b *strings.Builder, indent string, depth int, w ast.Wire, allWires []ast.Wire, arrayIterators map[string]string, handleScope map[string]string, handles []ast.HandleBinding) {
	target := w.Target()

	if w.Kind == ast.WireConstant {
		fmt.Fprintf(b, "%s%s = %s\n", indent, target, literalText(w.Value))
		return
	}

	if iterAlias, ok := arrayIterators[target]; ok {
		arrow := "<-"
		if w.Force {
			arrow = "<-!"
		}
		fmt.Fprintf(b, "%s%s %s %s[] as %s {\n", indent, target, arrow, refText(w.From, allWires), iterAlias)
		writeBody(b, depth+1, iterAlias, handles, allWires, arrayIterators, handleScope)
		fmt.Fprintf(b, "%s}\n", indent)
		return
	}

	arrow := "<-"
	if w.Force {
		arrow = "<-!"
	}
	fmt.Fprintf(b, "%s%s %s %s%s\n", indent, target, arrow, refText(w.From, allWires), fallbackText(w.Fallbacks, allWires))
}

func fallbackText(ops []ast.FallbackOp, allWires []ast.Wire) string {
	var b strings.Builder
	for _, op := range ops {
		switch op.Kind {
		case ast.FallbackNull:
			fmt.Fprintf(&b, " || %s", literalText(op.Literal))
		case ast.FallbackError:
			if op.Ref != nil {
				fmt.Fprintf(&b, " ?? %s", refText(op.Ref, allWires))
			} else {
				fmt.Fprintf(&b, " ?? %s", literalText(op.Literal))
			}
		}
	}
	return b.String()
}

// refText renders a NodeRef back to source syntax. A ref addressing a
// pipe-forked tool's "out" is reconstructed as the "a:b:source" chain
// syntax by walking back through the synthetic Pipe "in" wires the
// parser recorded for each hop; everything else is a plain
// alias.path reference. Pipe hops are rendered through their tool name
// rather than the original hop alias (the NodeRef doesn't carry the
// alias spelling, only the resolved tool name/instance) — structurally
// equivalent, which is what spec.md §8's round-trip property requires.
func refText(ref *ast.NodeRef, allWires []ast.Wire) string {
	if ref == nil {
		return ""
	}
	if ref.IsTool() && len(ref.Path) == 1 && !ref.Path[0].IsIndex && ref.Path[0].Name == "out" {
		if inWire, ok := findPipeInWire(allWires, ref.Field, ref.Instance); ok {
			return ref.Field + ":" + refText(inWire.From, allWires)
		}
	}
	return dotted(ref.Field, ref.Path)
}

func findPipeInWire(wires []ast.Wire, toolName string, instance int) (ast.Wire, bool) {
	for _, w := range wires {
		if w.Pipe && w.To.Field == toolName && w.To.Instance == instance &&
			len(w.To.Path) == 1 && w.To.Path[0].Name == "in" {
			return w, true
		}
	}
	return ast.Wire{}, false
}

func dotted(head string, path []ast.PathSegment) string {
	var b strings.Builder
	b.WriteString(head)
	for _, seg := range path {
		if seg.IsIndex {
			fmt.Fprintf(&b, "[%d]", seg.Index)
		} else {
			b.WriteString(".")
			b.WriteString(seg.Name)
		}
	}
	return b.String()
}

func literalText(l *ast.Literal) string {
	if l == nil {
		return "null"
	}
	switch l.Kind {
	case ast.LiteralString:
		return quoteIfNeeded(l.Str)
	case ast.LiteralNumber:
		return strconv.FormatFloat(l.Num, 'g', -1, 64)
	case ast.LiteralBool:
		return strconv.FormatBool(l.Bool)
	case ast.LiteralNull:
		return "null"
	case ast.LiteralObject:
		keys := make([]string, 0, len(l.Object))
		for k := range l.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, literalText(l.Object[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ast.LiteralArray:
		parts := make([]string, 0, len(l.Array))
		for _, v := range l.Array {
			parts = append(parts, literalText(v))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "null"
	}
}

// quoteIfNeeded quotes a string literal unless it would lex back as the
// same bare atom (number/boolean/null/identifier/"/path" all unquoted
// per spec.md §6 "Literal-syntax rules").
func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if s == "true" || s == "false" || s == "null" || s == "nil" || s == "undefined" {
		return strconv.Quote(s)
	}
	if lexer.IsKeyword(s) {
		// A bare keyword-shaped value (e.g. "input", "with") would re-lex
		// as a Keyword token, not the Ident/BarePath parseLiteral accepts
		// here, breaking the round trip back through parser.Parse.
		return strconv.Quote(s)
	}
	if isBareIdent(s) || isBarePath(s) {
		return s
	}
	return strconv.Quote(s)
}

func isBareIdent(s string) bool {
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

func isBarePath(s string) bool {
	if len(s) == 0 || s[0] != '/' {
		return false
	}
	for _, r := range s[1:] {
		if r == ' ' || r == '\t' || r == '\n' {
			return false
		}
	}
	return true
}
