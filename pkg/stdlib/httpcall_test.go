package stdlib_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/httpclient"
	"github.com/stackables/bridge/pkg/stdlib"
)

// mapStore is a minimal httpcache.Store for exercising HTTPCall without
// the LRU eviction machinery.
type mapStore struct {
	entries map[string]any
}

func newMapStore() *mapStore { return &mapStore{entries: map[string]any{}} }

func (s *mapStore) Get(key string) (any, bool) {
	v, ok := s.entries[key]
	return v, ok
}

func (s *mapStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.entries[key] = value
}

func TestHTTPCall_NumericCacheBypassesStore(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	store := newMapStore()
	call := stdlib.HTTPCall(httpclient.New(), store)

	input := map[string]any{"baseUrl": srv.URL, "path": "/", "cache": float64(0)}
	_, err := call(t.Context(), input)
	require.NoError(t, err)
	_, err = call(t.Context(), input)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "cache = 0 must bypass the store on every call")
	assert.Empty(t, store.entries, "cache = 0 must never populate the store")
}

func TestHTTPCall_NumericCacheUsesExplicitTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	store := newMapStore()
	call := stdlib.HTTPCall(httpclient.New(), store)

	input := map[string]any{"baseUrl": srv.URL, "path": "/", "cache": float64(300)}
	_, err := call(t.Context(), input)
	require.NoError(t, err)
	_, err = call(t.Context(), input)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "an explicit numeric TTL must win over the no-store response header")
	assert.NotEmpty(t, store.entries)
}
