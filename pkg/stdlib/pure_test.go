package stdlib_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/stdlib"
)

func TestUpperLowerCase(t *testing.T) {
	ctx := context.Background()

	out, err := stdlib.UpperCase(ctx, map[string]any{"in": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)

	out, err = stdlib.LowerCase(ctx, map[string]any{"in": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = stdlib.UpperCase(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "", out, "a non-string (or missing) `in` is treated as the zero value, not an error")
}

func TestFindObject_MatchesAllGivenKeys(t *testing.T) {
	items := []any{
		map[string]any{"id": "1", "kind": "a"},
		map[string]any{"id": "2", "kind": "b"},
		map[string]any{"id": "3", "kind": "b"},
	}

	out, err := stdlib.FindObject(context.Background(), map[string]any{"in": items, "kind": "b"})
	require.NoError(t, err)
	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2", obj["id"], "the first match must win")
}

func TestFindObject_NoMatchReturnsNil(t *testing.T) {
	items := []any{map[string]any{"id": "1", "kind": "a"}}

	out, err := stdlib.FindObject(context.Background(), map[string]any{"in": items, "kind": "z"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFindObject_SkipsNonObjectElements(t *testing.T) {
	items := []any{"not-an-object", map[string]any{"id": "1", "kind": "a"}}

	out, err := stdlib.FindObject(context.Background(), map[string]any{"in": items, "kind": "a"})
	require.NoError(t, err)
	obj, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1", obj["id"])
}

func TestPickFirst_NonStrictOnEmptyReturnsNil(t *testing.T) {
	out, err := stdlib.PickFirst(context.Background(), map[string]any{"in": []any{}})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPickFirst_NonStrictPicksFirstOfMany(t *testing.T) {
	out, err := stdlib.PickFirst(context.Background(), map[string]any{"in": []any{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestPickFirst_StrictErrorsOnEmpty(t *testing.T) {
	_, err := stdlib.PickFirst(context.Background(), map[string]any{"in": []any{}, "strict": true})
	assert.Error(t, err)
}

func TestPickFirst_StrictErrorsOnMultiple(t *testing.T) {
	_, err := stdlib.PickFirst(context.Background(), map[string]any{"in": []any{"a", "b"}, "strict": true})
	assert.Error(t, err)
}

func TestPickFirst_StrictAcceptsExactlyOne(t *testing.T) {
	out, err := stdlib.PickFirst(context.Background(), map[string]any{"in": []any{"only"}, "strict": true})
	require.NoError(t, err)
	assert.Equal(t, "only", out)
}

func TestToArray_WrapsScalarsAndPassesArraysThrough(t *testing.T) {
	out, err := stdlib.ToArray(context.Background(), map[string]any{"in": "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, out)

	out, err = stdlib.ToArray(context.Background(), map[string]any{"in": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, out)

	out, err = stdlib.ToArray(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
