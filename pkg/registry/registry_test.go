package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/registry"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	reg := registry.NewBaseRegistry[testItem]()

	require.NoError(t, reg.Register("a", testItem{ID: "a", Name: "First"}))
	assert.Error(t, reg.Register("", testItem{Name: "No ID"}))
	assert.Error(t, reg.Register("a", testItem{ID: "a", Name: "Duplicate"}))
}

func TestBaseRegistry_Get(t *testing.T) {
	reg := registry.NewBaseRegistry[testItem]()
	require.NoError(t, reg.Register("a", testItem{ID: "a", Name: "First"}))

	item, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "First", item.Name)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestBaseRegistry_Concurrency(t *testing.T) {
	reg := registry.NewBaseRegistry[testItem]()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("concurrent-%d", i)
			_ = reg.Register(name, testItem{ID: name})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			reg.Get(fmt.Sprintf("concurrent-%d", i))
		}
	}()
	wg.Wait()

	_, ok := reg.Get("concurrent-99")
	assert.True(t, ok)
}
