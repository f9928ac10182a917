package exectree_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/exectree"
	"github.com/stackables/bridge/pkg/parser"
	"github.com/stackables/bridge/pkg/stdlib"
	"github.com/stackables/bridge/pkg/toolrun"
)

func mustParse(t *testing.T, src string) *exectree.Library {
	t.Helper()
	instrs, err := parser.Parse(src)
	require.NoError(t, err)
	return exectree.NewLibrary(instrs)
}

// Seed test 1: passthrough.
func TestFrame_Passthrough(t *testing.T) {
	lib := mustParse(t, `
tool upperCase {
  fn std.upperCase
  with input
  in <- input.text
}

bridge Query.format {
  with upperCase
}
`)

	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("std.upperCase", stdlib.UpperCase))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.format"], reg, nil, nil)
	frame.Push(map[string]any{"text": "hello"})

	out, err := frame.Response(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

// Seed test 2: diamond dedup — geocode is a shared upstream dependency of
// two sibling tools, each declaring it independently via its own `with`.
// Exercises request.rootMemo: both siblings resolve the same (toolName,
// instance) key, so the singleflight call collapses to one invocation.
func TestFrame_DiamondDedup(t *testing.T) {
	lib := mustParse(t, `
tool geocode {
  fn geo.lookup
  with input
  city <- input.city
}

tool weatherTool {
  fn weather.lookup
  with geocode
  lat <- geocode.lat
}

tool censusTool {
  fn census.lookup
  with geocode
  lat <- geocode.lat
}

bridge Query.dashboard {
  with weatherTool
  with censusTool
  temp <- weatherTool.temp
  population <- censusTool.population
}
`)

	var geocodeCalls int32
	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("geo.lookup", func(ctx context.Context, input map[string]any) (any, error) {
		atomic.AddInt32(&geocodeCalls, 1)
		assert.Equal(t, "Berlin", input["city"])
		return map[string]any{"lat": 52.53, "lng": 13.38}, nil
	}))
	require.NoError(t, reg.RegisterFlat("weather.lookup", func(ctx context.Context, input map[string]any) (any, error) {
		assert.Equal(t, 52.53, input["lat"])
		return map[string]any{"temp": 21.0}, nil
	}))
	require.NoError(t, reg.RegisterFlat("census.lookup", func(ctx context.Context, input map[string]any) (any, error) {
		assert.Equal(t, 52.53, input["lat"])
		return map[string]any{"population": 3700000}, nil
	}))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.dashboard"], reg, nil, nil)
	frame.Push(map[string]any{"city": "Berlin"})

	out, err := frame.Response(context.Background(), nil, false)
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 21.0, obj["temp"])
	assert.Equal(t, 3700000, obj["population"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&geocodeCalls), "geocode must be invoked exactly once across both siblings")
}

// Parallelism: k mutually independent tools each sleeping t resolve the
// bridge in well under k*t.
func TestFrame_Parallelism(t *testing.T) {
	lib := mustParse(t, `
tool sleeper {
  fn test.sleep
}

bridge Query.par {
  with sleeper as s1
  with sleeper as s2
  with sleeper as s3
  with sleeper as s4
  with sleeper as s5
  r1 <- s1.out
  r2 <- s2.out
  r3 <- s3.out
  r4 <- s4.out
  r5 <- s5.out
}
`)

	const sleep = 50 * time.Millisecond
	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("test.sleep", func(ctx context.Context, input map[string]any) (any, error) {
		time.Sleep(sleep)
		return "done", nil
	}))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.par"], reg, nil, nil)

	start := time.Now()
	out, err := frame.Response(context.Background(), nil, false)
	elapsed := time.Since(start)

	require.NoError(t, err)
	obj, ok := out.(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"r1", "r2", "r3", "r4", "r5"} {
		assert.Equal(t, "done", obj[k])
	}
	assert.Less(t, elapsed, 2*sleep, "five independent sleeping tools must resolve concurrently")
}

// Seed test 4: forced side-effect. A forced wire fires regardless of
// whether the host ever queries its field, and its failure does not
// propagate to a successfully-resolved sibling field.
func TestFrame_ForcedWire(t *testing.T) {
	lib := mustParse(t, `
tool auditTool {
  fn audit.log
  with input
  action <- input.q
}

bridge Query.search {
  with input
  with auditTool
  _audit <-! auditTool.result
  title <- input.q
}
`)

	var auditCalled int32
	auditDone := make(chan struct{})
	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("audit.log", func(ctx context.Context, input map[string]any) (any, error) {
		atomic.AddInt32(&auditCalled, 1)
		close(auditDone)
		return nil, assert.AnError
	}))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.search"], reg, nil, nil)
	frame.Push(map[string]any{"q": "X"})

	ctx := context.Background()
	frame.ExecuteForced(ctx)

	title, err := frame.Response(ctx, []string{"title"}, false)
	require.NoError(t, err)
	assert.Equal(t, "X", title)

	select {
	case <-auditDone:
	case <-time.After(time.Second):
		t.Fatal("forced wire never fired")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&auditCalled))
}

// Pipe chain: `normalize:trim:input.text` applies right to left — trim
// consumes input.text as its `in`, normalize consumes trim's `out` as
// its own `in`. Neither tool declares its own `in` wire, so the only
// way either call can see a non-empty value is through the pipe-hop
// wire the parser records for its own synthetic instance.
func TestFrame_PipeChain(t *testing.T) {
	lib := mustParse(t, `
tool normalize {
  fn std.upperCase
}

tool trim {
  fn std.lowerCase
}

bridge Query.clean {
  with input
  with normalize
  with trim
  result <- normalize:trim:input.text
}
`)

	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("std.upperCase", stdlib.UpperCase))
	require.NoError(t, reg.RegisterFlat("std.lowerCase", stdlib.LowerCase))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.clean"], reg, nil, nil)
	frame.Push(map[string]any{"text": "Hello World"})

	out, err := frame.Response(context.Background(), nil, false)
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "HELLO WORLD", obj["result"], "the chain value must reach each hop's `in`, not the tool's own (absent) wires")
}

// Shadow scope: a nested array mapping resolves every inner element's
// fields against the corresponding raw element, and context/input remain
// reachable from the innermost scope.
func TestFrame_NestedArrayMapping(t *testing.T) {
	lib := mustParse(t, `
tool upstream {
  fn store.listOuter
}

bridge Query.nested {
  with upstream
  with context
  groups <- upstream.groups[] as grp {
    tag <- grp.tag
    items <- grp.items[] as it {
      name <- it.name
      owner <- context.user
    }
  }
}
`)

	reg := toolrun.New()
	require.NoError(t, reg.RegisterFlat("store.listOuter", func(ctx context.Context, input map[string]any) (any, error) {
		return map[string]any{
			"groups": []any{
				map[string]any{
					"tag": "a",
					"items": []any{
						map[string]any{"name": "one"},
						map[string]any{"name": "two"},
						map[string]any{"name": "three"},
					},
				},
				map[string]any{
					"tag": "b",
					"items": []any{
						map[string]any{"name": "four"},
					},
				},
			},
		}, nil
	}))

	frame := exectree.NewRoot(lib, lib.Bridges["Query.nested"], reg, nil, nil)
	frame.SetContext(map[string]any{"user": "alice"})

	out, err := frame.Response(context.Background(), nil, false)
	require.NoError(t, err)

	obj, ok := out.(map[string]any)
	require.True(t, ok)
	groups, ok := obj["groups"].([]any)
	require.True(t, ok)
	require.Len(t, groups, 2)

	g0 := groups[0].(map[string]any)
	assert.Equal(t, "a", g0["tag"])
	items0 := g0["items"].([]any)
	require.Len(t, items0, 3)
	assert.Equal(t, "one", items0[0].(map[string]any)["name"])
	assert.Equal(t, "alice", items0[0].(map[string]any)["owner"])
	assert.Equal(t, "three", items0[2].(map[string]any)["name"])

	g1 := groups[1].(map[string]any)
	assert.Equal(t, "b", g1["tag"])
	items1 := g1["items"].([]any)
	require.Len(t, items1, 1)
	assert.Equal(t, "four", items1[0].(map[string]any)["name"])
	assert.Equal(t, "alice", items1[0].(map[string]any)["owner"])
}
