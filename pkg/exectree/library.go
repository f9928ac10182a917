// Package exectree is the stateful half of the engine: it compiles a
// parsed program into a Library, attaches a Frame to one Bridge per
// request, and walks its wires pull-on-demand, memoizing each distinct
// tool/define instance exactly once per owning scope (spec.md §4.4-4.6
// "Execution tree").
package exectree

import (
	"fmt"
	"strconv"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/resolver"
)

// Library indexes every instruction of a parsed program by the name the
// engine looks it up by at runtime.
type Library struct {
	Bridges map[string]*ast.Bridge
	Tools   resolver.MapLibrary
	Defines map[string]*ast.DefineDef
	Consts  map[string]*ast.Literal
}

// NewLibrary indexes a program's top-level instructions, one map per
// kind. Duplicate names are not rejected here or by the parser; a later
// instruction of the same kind and name replaces the earlier one.
func NewLibrary(instrs []ast.Instruction) *Library {
	lib := &Library{
		Bridges: map[string]*ast.Bridge{},
		Tools:   resolver.MapLibrary{},
		Defines: map[string]*ast.DefineDef{},
		Consts:  map[string]*ast.Literal{},
	}
	for _, instr := range instrs {
		switch v := instr.(type) {
		case *ast.Bridge:
			lib.Bridges[v.Name()] = v
		case *ast.ToolDef:
			lib.Tools[v.Ident] = v
		case *ast.DefineDef:
			lib.Defines[v.Ident] = v
		case *ast.ConstDef:
			lib.Consts[v.Ident] = v.Value
		}
	}
	return lib
}

// Owner is the compiled, self-contained shape a Frame needs to
// materialize one Bridge/ToolDef/DefineDef invocation: its flat wire
// list, the scope-nesting maps carried over from the parser, and (for a
// tool) the host function name to invoke.
type Owner struct {
	Name           string
	Wires          []ast.Wire
	ArrayIterators map[string]string // target dotted path -> iterator alias
	ScopeParent    map[string]string // iterator alias -> enclosing scope
	HandleScope    map[string]string // handle alias -> declaring scope

	// InstanceScope maps "<toolName>#<instance>" to the scope tag whose
	// frame owns that instance's memoization, derived from HandleScope
	// (for `with`-declared handles) and each pipe-hop wire's own Scope
	// (pipe-forked instances have no `with` declaration).
	InstanceScope map[string]string

	// Fn is the host function name to invoke; empty for a define (which
	// has no Fn call — its materialized object *is* its result).
	Fn       string
	IsDefine bool

	// Passthrough is set when this owner is a bridge using the
	// `with <tool>` shorthand: the named tool's raw result becomes the
	// bridge's entire output.
	Passthrough string
}

func instanceKey(name string, instance int) string {
	return name + "#" + strconv.Itoa(instance)
}

// buildInstanceScope folds a body's declared handles/deps and pipe-hop
// wires into the instance->scope map a Frame needs to find the node
// that owns a given tool/define instance's memoization.
func buildInstanceScope(handles []ast.HandleBinding, handleScope map[string]string, wires []ast.Wire) map[string]string {
	m := map[string]string{}
	for _, hb := range handles {
		if hb.Source == ast.SourceTool || hb.Source == ast.SourceDefine {
			m[instanceKey(hb.ToolName, hb.Instance)] = handleScope[hb.Alias]
		}
	}
	for _, w := range wires {
		if w.Pipe {
			m[instanceKey(w.To.Field, w.To.Instance)] = w.Scope
		}
	}
	return m
}

// CompileBridge builds the Owner for a bridge's own root invocation.
func CompileBridge(b *ast.Bridge) *Owner {
	o := &Owner{
		Name:           b.Name(),
		Wires:          b.Wires,
		ArrayIterators: b.ArrayIterators,
		ScopeParent:    b.ScopeParent,
		HandleScope:    b.HandleScope,
		InstanceScope:  buildInstanceScope(b.Handles, b.HandleScope, b.Wires),
	}
	if b.Passthrough != nil {
		o.Passthrough = *b.Passthrough
	}
	return o
}

// CompileDefine builds the Owner used whenever a define is invoked.
func CompileDefine(d *ast.DefineDef) *Owner {
	return &Owner{
		Name:           d.Ident,
		Wires:          d.Wires,
		ArrayIterators: d.ArrayIterators,
		ScopeParent:    d.ScopeParent,
		HandleScope:    d.HandleScope,
		InstanceScope:  buildInstanceScope(d.Handles, d.HandleScope, d.Wires),
		IsDefine:       true,
	}
}

// CompileTool resolves name's extends chain and builds the Owner used
// whenever that tool is invoked.
func CompileTool(lib *Library, name string) (*Owner, error) {
	eff, err := resolver.Resolve(lib.Tools, name)
	if err != nil {
		return nil, err
	}
	if eff.Fn == "" {
		return nil, fmt.Errorf("exectree: tool %q has no fn in its extends chain", name)
	}
	return &Owner{
		Name:           name,
		Wires:          eff.Wires,
		ArrayIterators: arrayIteratorsFromChain(lib, name),
		ScopeParent:    eff.ScopeParent,
		HandleScope:    eff.HandleScope,
		InstanceScope:  buildInstanceScope(eff.Deps, eff.HandleScope, eff.Wires),
		Fn:             eff.Fn,
	}, nil
}

// arrayIteratorsFromChain folds ArrayIterators up a tool's extends chain
// the same way resolver.Resolve folds wires, since ToolDef carries the
// map directly rather than through EffectiveTool.
func arrayIteratorsFromChain(lib *Library, name string) map[string]string {
	out := map[string]string{}
	seen := map[string]bool{}
	var walk func(n string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		def, ok := lib.Tools[n]
		if !ok {
			return
		}
		if def.Extends != "" {
			walk(def.Extends)
		}
		for k, v := range def.ArrayIterators {
			out[k] = v
		}
	}
	walk(name)
	return out
}

func (o *Owner) wiresAt(scope string) []ast.Wire {
	var out []ast.Wire
	for _, w := range o.Wires {
		if w.Scope == scope {
			out = append(out, w)
		}
	}
	return out
}

func (o *Owner) findWire(scope, targetDotted string) (ast.Wire, bool) {
	for _, w := range o.Wires {
		if w.Scope == scope && w.Target() == targetDotted {
			return w, true
		}
	}
	return ast.Wire{}, false
}
