package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/ast"
	"github.com/stackables/bridge/pkg/parser"
	"github.com/stackables/bridge/pkg/resolver"
)

func buildLib(t *testing.T, src string) resolver.MapLibrary {
	t.Helper()
	instrs, err := parser.Parse(src)
	require.NoError(t, err)
	lib := resolver.MapLibrary{}
	for _, instr := range instrs {
		if td, ok := instr.(*ast.ToolDef); ok {
			lib[td.Ident] = td
		}
	}
	return lib
}

func TestResolve_OverrideByTarget(t *testing.T) {
	lib := buildLib(t, `
tool parent {
  fn http.call
  with const
  headers.Authorization <- const.token1
  headers.Authorization <- const.token2
  headers.Accept = "application/json"
}

tool child extends parent {
  headers.Authorization <- const.token3
}
`)

	eff, err := resolver.Resolve(lib, "child")
	require.NoError(t, err)

	var authWires int
	var acceptSeen bool
	for _, w := range eff.Wires {
		switch w.Target() {
		case "headers.Authorization":
			authWires++
			require.NotNil(t, w.From)
			assert.Equal(t, "token3", w.From.Path[0].Name)
		case "headers.Accept":
			acceptSeen = true
		}
	}
	assert.Equal(t, 1, authWires, "only the child's wire to headers.Authorization must survive")
	assert.True(t, acceptSeen)
	assert.Equal(t, "http.call", eff.Fn)
}

func TestResolve_DepsAccumulateAcrossChain(t *testing.T) {
	lib := buildLib(t, `
tool base {
  fn a.fn
  with const as cfg
}

tool derived extends base {
  with input as opts
}
`)

	eff, err := resolver.Resolve(lib, "derived")
	require.NoError(t, err)
	require.Len(t, eff.Deps, 2)
	assert.Equal(t, "cfg", eff.Deps[0].Alias)
	assert.Equal(t, "opts", eff.Deps[1].Alias)
}

func TestResolve_DuplicateHandleAcrossChainErrors(t *testing.T) {
	lib := buildLib(t, `
tool base {
  fn a.fn
  with const as cfg
}

tool derived extends base {
  with input as cfg
}
`)

	_, err := resolver.Resolve(lib, "derived")
	assert.Error(t, err)
}

func TestResolve_CyclicExtendsErrors(t *testing.T) {
	lib := buildLib(t, `
tool a extends b {
  fn a.fn
}

tool b extends a {
  fn b.fn
}
`)

	_, err := resolver.Resolve(lib, "a")
	assert.ErrorContains(t, err, "cyclic")
}
