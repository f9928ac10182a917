// Package wireeval holds the stateless pieces of wire resolution:
// fallback-chain application, sequence coercion, and merging many
// wires' target paths into one nested object. The stateful half — tool
// scheduling, memoization, shadow trees — lives in pkg/exectree, which
// calls into these helpers while walking a bridge's wire set.
package wireeval

import (
	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/value"
)

// RefEvaluator resolves a NodeRef to a value, surfacing any evaluation
// error (tool failure, missing path against a non-nullable, etc). It is
// implemented by the execution tree; this package only consumes it.
type RefEvaluator func(ref *ast.NodeRef) (any, error)

// ApplyFallbacks runs a wire's fallback chain against (value, err) left
// to right, per spec.md §4.5 "Fallback semantics":
//   - || lit substitutes lit only when the current value is null/missing.
//   - ?? expr recovers only when the current step raised an error, by
//     evaluating expr (a literal or another NodeRef/pipe chain).
func ApplyFallbacks(val any, err error, ops []ast.FallbackOp, evalRef RefEvaluator) (any, error) {
	for _, op := range ops {
		switch op.Kind {
		case ast.FallbackNull:
			if err == nil && value.IsNullish(val) {
				val = op.Literal.Value()
			}
		case ast.FallbackError:
			if err != nil {
				if op.Ref != nil {
					val, err = evalRef(op.Ref)
				} else {
					val, err = op.Literal.Value(), nil
				}
			}
		}
	}
	return val, err
}

// MergeInto writes value at wire w's target dotted path inside obj,
// creating intermediate objects as needed. Wire targets never carry a
// numeric index segment (the parser rejects that), so this is always a
// plain dotted-key merge.
func MergeInto(obj map[string]any, w ast.Wire, val any) {
	value.Set(obj, w.To.Path, val)
}

// CoerceSequence converts a resolved "from" value into a slice for an
// array-mapping wire. A non-array, non-nil value is treated as absent
// (empty mapping) rather than an error, matching the engine's
// null/undefined-tolerant dataflow.
func CoerceSequence(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return nil
	}
}
