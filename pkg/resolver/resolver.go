// Package resolver merges a ToolDef's `extends` inheritance chain into an
// effective, flattened wire set (spec.md §4.3).
package resolver

import (
	"fmt"

	"github.com/stackables/bridge/pkg/ast"
)

// EffectiveTool is the flattened result of walking a ToolDef's extends
// chain: wires and deps with target-path overrides already applied.
type EffectiveTool struct {
	Name  string
	Fn    string
	Deps  []ast.HandleBinding
	Wires []ast.Wire

	// ScopeParent and HandleScope fold the same way as Deps: a union
	// across the chain, later (more-derived) declarations overriding a
	// key shared with an ancestor.
	ScopeParent map[string]string
	HandleScope map[string]string
}

// Library looks up ToolDef instructions by name, used to walk `extends`
// chains.
type Library interface {
	Tool(name string) (*ast.ToolDef, bool)
}

// MapLibrary is the trivial Library backed by a name->ToolDef map.
type MapLibrary map[string]*ast.ToolDef

func (m MapLibrary) Tool(name string) (*ast.ToolDef, bool) {
	t, ok := m[name]
	return t, ok
}

// Resolve walks name's extends chain root-first and returns the effective
// tool: wires accumulate with later (more-derived) declarations dropping
// every prior wire sharing the same target path, then appending
// (invariant I4 — full replacement, not first-match, per the documented
// historical bug this spec corrects).
func Resolve(lib Library, name string) (*EffectiveTool, error) {
	chain, err := ancestryChain(lib, name)
	if err != nil {
		return nil, err
	}

	eff := &EffectiveTool{Name: name, ScopeParent: map[string]string{}, HandleScope: map[string]string{}}
	seenHandles := map[string]bool{}

	for _, def := range chain {
		if def.Fn != "" {
			eff.Fn = def.Fn
		}
		for _, dep := range def.Deps {
			if seenHandles[dep.Alias] {
				return nil, fmt.Errorf("tool %q: duplicate handle %q in effective tool", name, dep.Alias)
			}
			seenHandles[dep.Alias] = true
			eff.Deps = append(eff.Deps, dep)
		}
		eff.Wires = overrideByTarget(eff.Wires, def.Wires)
		for k, v := range def.ScopeParent {
			eff.ScopeParent[k] = v
		}
		for k, v := range def.HandleScope {
			eff.HandleScope[k] = v
		}
	}
	return eff, nil
}

// overrideByTarget appends next's wires onto base, first dropping every
// base wire whose target path matches a wire in next (full replacement,
// not just the first match).
func overrideByTarget(base []ast.Wire, next []ast.Wire) []ast.Wire {
	overridden := map[string]bool{}
	for _, w := range next {
		overridden[w.Target()] = true
	}
	out := make([]ast.Wire, 0, len(base)+len(next))
	for _, w := range base {
		if overridden[w.Target()] {
			continue
		}
		out = append(out, w)
	}
	out = append(out, next...)
	return out
}

// ancestryChain returns [root, ..., name]'s ToolDefs. Single-parent
// inheritance only; a cycle in `extends` is an error.
func ancestryChain(lib Library, name string) ([]*ast.ToolDef, error) {
	var chain []*ast.ToolDef
	seen := map[string]bool{}
	cur := name
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("tool %q: cyclic extends chain", name)
		}
		seen[cur] = true

		def, ok := lib.Tool(cur)
		if !ok {
			return nil, fmt.Errorf("tool %q: extends undeclared tool %q", name, cur)
		}
		chain = append([]*ast.ToolDef{def}, chain...)
		cur = def.Extends
	}
	return chain, nil
}
