package httpcache_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackables/bridge/pkg/httpcache"
)

func TestLRUStore_SetThenGetWithinTTL(t *testing.T) {
	store := httpcache.NewLRUStore(4)
	store.Set("k", "v", time.Minute)

	got, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestLRUStore_ZeroTTLNeverStores(t *testing.T) {
	store := httpcache.NewLRUStore(4)
	store.Set("k", "v", 0)

	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestLRUStore_ExpiredEntryIsEvictedOnGet(t *testing.T) {
	store := httpcache.NewLRUStore(4)
	store.Set("k", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := store.Get("k")
	assert.False(t, ok)
}

func TestKey_DistinguishesMethodURLAndBody(t *testing.T) {
	a := httpcache.Key("GET", "https://example.com/x", "")
	b := httpcache.Key("POST", "https://example.com/x", "")
	c := httpcache.Key("GET", "https://example.com/x", `{"q":1}`)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTTLFromHeaders_NoStoreForcesZero(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "no-store, max-age=60")
	assert.Equal(t, time.Duration(0), httpcache.TTLFromHeaders(h))
}

func TestTTLFromHeaders_NoCacheForcesZero(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "no-cache")
	assert.Equal(t, time.Duration(0), httpcache.TTLFromHeaders(h))
}

func TestTTLFromHeaders_SMaxAgeBeatsMaxAge(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=10, s-maxage=30")
	assert.Equal(t, 30*time.Second, httpcache.TTLFromHeaders(h))
}

func TestTTLFromHeaders_MaxAgeOnly(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=10")
	assert.Equal(t, 10*time.Second, httpcache.TTLFromHeaders(h))
}

func TestTTLFromHeaders_FallsBackToExpires(t *testing.T) {
	h := http.Header{}
	h.Set("Expires", time.Now().Add(5*time.Minute).UTC().Format(time.RFC1123))

	ttl := httpcache.TTLFromHeaders(h)
	assert.Greater(t, ttl, 4*time.Minute)
	assert.LessOrEqual(t, ttl, 5*time.Minute)
}

func TestTTLFromHeaders_NoHeadersIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), httpcache.TTLFromHeaders(http.Header{}))
}

func TestTTLFromMode_ExplicitSecondsOverridesHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=999")
	assert.Equal(t, 5*time.Second, httpcache.TTLFromMode("5", h))
}

func TestTTLFromMode_ZeroIsHandledByCallerNotHere(t *testing.T) {
	// TTLFromMode("0", ...) still parses as an explicit 0s TTL; the "bypass
	// the store entirely" behavior for cache mode "0" lives in the caller
	// (the httpCall tool), not in this resolution function.
	h := http.Header{}
	h.Set("Cache-Control", "max-age=60")
	assert.Equal(t, time.Duration(0), httpcache.TTLFromMode("0", h))
}

func TestTTLFromMode_AutoAndEmptyDeferToHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=42")
	assert.Equal(t, 42*time.Second, httpcache.TTLFromMode("auto", h))
	assert.Equal(t, 42*time.Second, httpcache.TTLFromMode("", h))
}
