package stdlib

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackables/bridge/pkg/toolrun"
	"github.com/stackables/bridge/pkg/value"
)

// UpperCase reads `in` (a string, per the pipe-chain convention) and
// returns it upper-cased as the tool's bare result.
func UpperCase(ctx context.Context, input map[string]any) (any, error) {
	s, _ := input["in"].(string)
	return strings.ToUpper(s), nil
}

// LowerCase is UpperCase's mirror.
func LowerCase(ctx context.Context, input map[string]any) (any, error) {
	s, _ := input["in"].(string)
	return strings.ToLower(s), nil
}

// FindObject linear-scans `in` (an array) for the first element whose
// fields match every key in input other than `in`.
func FindObject(ctx context.Context, input map[string]any) (any, error) {
	items := value.ToArray(input["in"])
	match := make(map[string]any, len(input))
	for k, v := range input {
		if k != "in" {
			match[k] = v
		}
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if matchesAll(obj, match) {
			return obj, nil
		}
	}
	return nil, nil
}

func matchesAll(obj, match map[string]any) bool {
	for k, want := range match {
		if got, ok := obj[k]; !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// PickFirst returns the first element of `in` (an array). With
// `strict: true` it errors on an empty or multi-element array instead of
// silently picking.
func PickFirst(ctx context.Context, input map[string]any) (any, error) {
	items := value.ToArray(input["in"])
	strict, _ := input["strict"].(bool)
	if strict && len(items) != 1 {
		return nil, fmt.Errorf("stdlib: pickFirst: strict mode requires exactly one element, got %d", len(items))
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// ToArray wraps a non-array `in` value in a one-element array.
func ToArray(ctx context.Context, input map[string]any) (any, error) {
	return value.ToArray(input["in"]), nil
}

// Register adds every std.* tool to reg under the "std" namespace.
func Register(reg *toolrun.Registry, httpCall toolrun.Func) {
	reg.RegisterNamespace(toolrun.Namespace{
		"std": toolrun.Namespace{
			"httpCall":   toolrun.Func(httpCall),
			"upperCase":  toolrun.Func(UpperCase),
			"lowerCase":  toolrun.Func(LowerCase),
			"findObject": toolrun.Func(FindObject),
			"pickFirst":  toolrun.Func(PickFirst),
			"toArray":    toolrun.Func(ToArray),
		},
	})
}
