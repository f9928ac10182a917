package serializer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/parser"
	"github.com/stackables/bridge/pkg/serializer"
)

func TestSerialize_RoundTripsBasicProgram(t *testing.T) {
	src := `
const apiBase = "https://example.com"

tool fetchUser {
  fn http.call
  with const
  url <- const.apiBase
}

tool fetchUserDetailed extends fetchUser {
  headers.Authorization = "Bearer static-token"
}

bridge Query.user {
  with input
  with fetchUserDetailed
  id <- input.id
  name <- fetchUserDetailed.name || "anonymous"
}
`
	instrs, err := parser.Parse(src)
	require.NoError(t, err)

	out, err := serializer.Serialize(instrs)
	require.NoError(t, err)

	reparsed, err := parser.Parse(out)
	require.NoError(t, err)

	require.Len(t, reparsed, len(instrs))
	assertSameShape(t, instrs, reparsed)

	// Re-serializing the reparsed form must be byte-identical: the
	// serializer is a fixed point once applied once.
	out2, err := serializer.Serialize(reparsed)
	require.NoError(t, err)
	assert.Equal(t, out, out2)
}

func TestSerialize_RoundTripsPipeChain(t *testing.T) {
	src := `
tool normalize {
  fn std.upperCase
  in <- input.text
}

tool trim {
  fn std.lowerCase
  in <- input.text
}

bridge Query.clean {
  with input
  with normalize
  with trim
  result <- normalize:trim:input.text
}
`
	instrs, err := parser.Parse(src)
	require.NoError(t, err)

	out, err := serializer.Serialize(instrs)
	require.NoError(t, err)

	reparsed, err := parser.Parse(out)
	require.NoError(t, err)
	require.Len(t, reparsed, len(instrs))

	var bridge *ast.Bridge
	for _, instr := range reparsed {
		if b, ok := instr.(*ast.Bridge); ok {
			bridge = b
		}
	}
	require.NotNil(t, bridge)

	var pipeWires int
	for _, w := range bridge.Wires {
		if w.Pipe {
			pipeWires++
		}
	}
	assert.Equal(t, 2, pipeWires, "each pipe hop re-parses as its own synthetic instance")
}

func TestSerialize_QuotesStringValuesThatLexAsKeywords(t *testing.T) {
	src := `
const mode = "input"

bridge Query.echo {
  label = "with"
}
`
	instrs, err := parser.Parse(src)
	require.NoError(t, err)

	out, err := serializer.Serialize(instrs)
	require.NoError(t, err)

	reparsed, err := parser.Parse(out)
	require.NoError(t, err)
	require.Len(t, reparsed, len(instrs))

	var constDef *ast.ConstDef
	var bridge *ast.Bridge
	for _, instr := range reparsed {
		switch v := instr.(type) {
		case *ast.ConstDef:
			constDef = v
		case *ast.Bridge:
			bridge = v
		}
	}
	require.NotNil(t, constDef)
	require.NotNil(t, bridge)
	assert.Equal(t, "input", constDef.Value.Value())

	require.Len(t, bridge.Wires, 1)
	assert.Equal(t, "with", bridge.Wires[0].Value.Value())
}

// assertSameShape checks the semantically meaningful fields survive a
// round trip, ignoring source positions (which legitimately differ once
// re-serialized).
func assertSameShape(t *testing.T, a, b []ast.Instruction) {
	t.Helper()
	for i := range a {
		require.Equal(t, a[i].Name(), b[i].Name())
		switch av := a[i].(type) {
		case *ast.ToolDef:
			bv, ok := b[i].(*ast.ToolDef)
			require.True(t, ok)
			assert.Equal(t, av.Fn, bv.Fn)
			assert.Equal(t, av.Extends, bv.Extends)
			assert.Equal(t, len(av.Wires), len(bv.Wires))
		case *ast.Bridge:
			bv, ok := b[i].(*ast.Bridge)
			require.True(t, ok)
			assert.Equal(t, av.Type, bv.Type)
			assert.Equal(t, av.Field, bv.Field)
			assert.Equal(t, len(av.Wires), len(bv.Wires))
			assert.Equal(t, len(av.Handles), len(bv.Handles))
		case *ast.ConstDef:
			bv, ok := b[i].(*ast.ConstDef)
			require.True(t, ok)
			assert.Equal(t, av.Value.Value(), bv.Value.Value())
		}
	}
}
