// Package value implements the engine's open value domain
// (scalar | array | object | null, represented as Go's `any`) and the
// path-based get/merge operations the wire evaluator needs to address and
// assemble nested tool inputs and field outputs.
package value

import (
	"strconv"

	"github.com/stackables/bridge/pkg/ast"
)

// IsNullish reports whether v is null/missing in the DSL's `||` sense.
// Per spec.md §4.5, 0, false, and "" are NOT nullish.
func IsNullish(v any) bool {
	return v == nil
}

// Get descends path into v, returning (value, true) on success or
// (nil, false) if any hop is missing or type-mismatched.
func Get(v any, path []ast.PathSegment) (any, bool) {
	cur := v
	for _, seg := range path {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[seg.Name]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// GetDotted is Get for a "."-joined path whose pure-digit segments are
// array indices, e.g. "location.city" or "properties.0.streetAddress";
// bracketed "[n]" segments are not recognized.
func GetDotted(v any, dotted string) (any, bool) {
	if dotted == "" {
		return v, true
	}
	return Get(v, ParsePath(dotted))
}

// ParsePath splits a dotted target path into segments, recognizing
// pure-digit segments as array indices.
func ParsePath(dotted string) []ast.PathSegment {
	if dotted == "" {
		return nil
	}
	parts := splitDots(dotted)
	segs := make([]ast.PathSegment, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			segs = append(segs, ast.Index(n))
		} else {
			segs = append(segs, ast.Field(p))
		}
	}
	return segs
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Set writes v into dst at the given dotted path, creating intermediate
// maps as needed. dst must be a non-nil map[string]any. Numeric segments
// inside a path written this way address array elements already present
// in an object fan-out (array mapping results); Set never auto-extends an
// array, since array population goes through the dedicated mapping path.
func Set(dst map[string]any, path []ast.PathSegment, v any) {
	if len(path) == 0 {
		return
	}
	cur := dst
	for i, seg := range path {
		last := i == len(path)-1
		if seg.IsIndex {
			// Numeric segments inside an ordinary merge target an array
			// already materialized at this key by array-mapping; treat
			// the index as a map key so later overrides can still find it
			// (internal addressing only, see spec.md §4.5 "Target-path
			// writes").
			key := strconv.Itoa(seg.Index)
			if last {
				cur[key] = v
				return
			}
			next, ok := cur[key].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[key] = next
			}
			cur = next
			continue
		}
		if last {
			cur[seg.Name] = v
			return
		}
		next, ok := cur[seg.Name].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg.Name] = next
		}
		cur = next
	}
}

// Merge deep-merges src into dst (both assumed map[string]any-shaped at the
// top level), used to combine the parallel wire results of a tool's
// effective input set.
func Merge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				Merge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

// ToArray wraps a non-array value in a one-element array, or returns an
// existing array unchanged (used by std.toArray and by array-mapping when
// the upstream source turns out to be a bare object).
func ToArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	if v == nil {
		return nil
	}
	return []any{v}
}
