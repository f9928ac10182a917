// Package toolrun resolves a tool's `fn` name to a callable and invokes
// it. Names are looked up flat first (`"hereapi.geocode"` as one key),
// then as dotted namespaces (`{hereapi: {geocode}}`), per spec.md §6
// "Tool function signature".
package toolrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackables/bridge/pkg/registry"
)

// Func is a tool's host-provided implementation: an async callable from
// an input bag to a result. Most tools return a map, but a tool may also
// return a bare scalar or array (the passthrough and pipe-chain "out"
// conventions both rely on this), so the result is left untyped and
// descended into by the caller.
type Func func(ctx context.Context, input map[string]any) (any, error)

// Namespace is a nested registration tree, e.g. {std: {upperCase: fn}}.
type Namespace map[string]any

// Registry resolves tool `fn` names against a flat table and a set of
// nested namespaces, flat table taking priority.
type Registry struct {
	flat  registry.Registry[Func]
	trees []Namespace
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{flat: registry.NewBaseRegistry[Func]()}
}

// RegisterFlat adds a single dotted-key function, e.g. "hereapi.geocode".
func (r *Registry) RegisterFlat(name string, fn Func) error {
	return r.flat.Register(name, fn)
}

// RegisterNamespace adds a nested namespace tree consulted after the
// flat table.
func (r *Registry) RegisterNamespace(ns Namespace) {
	r.trees = append(r.trees, ns)
}

// Lookup resolves a dotted `fn` name, flat table first, then each
// registered namespace tree by walking its dotted segments.
func (r *Registry) Lookup(name string) (Func, error) {
	if fn, ok := r.flat.Get(name); ok {
		return fn, nil
	}
	for _, tree := range r.trees {
		if fn, ok := lookupNested(tree, strings.Split(name, ".")); ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("toolrun: function %q not found", name)
}

func lookupNested(ns Namespace, segs []string) (Func, bool) {
	if len(segs) == 0 {
		return nil, false
	}
	v, ok := ns[segs[0]]
	if !ok {
		return nil, false
	}
	if len(segs) == 1 {
		fn, ok := v.(Func)
		return fn, ok
	}
	child, ok := v.(Namespace)
	if !ok {
		return nil, false
	}
	return lookupNested(child, segs[1:])
}

// Invoke looks up fn and calls it with input, returning a tool-not-found
// error (treated as a resolution error per spec.md §7) if unresolved.
func (r *Registry) Invoke(ctx context.Context, fn string, input map[string]any) (any, error) {
	f, err := r.Lookup(fn)
	if err != nil {
		return nil, err
	}
	return f(ctx, input)
}
