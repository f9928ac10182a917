// Package httpcache implements the process-wide cache backing the
// httpCall built-in tool. A cache entry stores a decoded JSON response
// body under a key derived from the request; TTL is derived from the
// cache mode and, for "auto", from the upstream response headers.
package httpcache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is the pluggable cache contract. Implementations must be safe
// for concurrent Get/Set, since the store is shared across requests.
type Store interface {
	Get(key string) (value any, ok bool)
	Set(key string, value any, ttl time.Duration)
}

// entry pairs a cached value with its absolute expiry.
type entry struct {
	value   any
	expires time.Time
}

// LRUStore is the default Store, an LRU of bounded size with per-entry
// TTL checked lazily on Get.
type LRUStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
}

// NewLRUStore builds an LRUStore holding up to size entries.
func NewLRUStore(size int) *LRUStore {
	c, err := lru.New[string, entry](size)
	if err != nil {
		// size <= 0: fall back to a minimal cache rather than failing
		// construction, since a cache of 1 is still a correct no-op-ish
		// cache.
		c, _ = lru.New[string, entry](1)
	}
	return &LRUStore{cache: c}
}

func (s *LRUStore) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		s.cache.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (s *LRUStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, entry{value: value, expires: time.Now().Add(ttl)})
}

// Key builds the cache key for an httpCall request: method + full URL +
// body, per the cache contract.
func Key(method, fullURL, body string) string {
	return method + " " + fullURL + body
}

// TTLFromMode resolves the TTL for a request's `cache` input: "0"
// bypasses entirely (handled by the caller before consulting the
// store), an explicit positive integer is used directly in seconds, and
// "auto" (or "") derives the TTL from the response headers via
// TTLFromHeaders.
func TTLFromMode(mode string, header Header) time.Duration {
	switch {
	case mode == "" || mode == "auto":
		return TTLFromHeaders(header)
	default:
		if secs, err := strconv.Atoi(mode); err == nil {
			return time.Duration(secs) * time.Second
		}
		return TTLFromHeaders(header)
	}
}

// Header is the minimal header-lookup contract TTLFromHeaders needs,
// satisfied directly by http.Header.
type Header interface {
	Get(key string) string
}

// TTLFromHeaders derives a cache TTL from Cache-Control and Expires:
// no-store/no-cache forces 0; otherwise the first of s-maxage, max-age;
// otherwise Expires minus now, floored at 0.
func TTLFromHeaders(header Header) time.Duration {
	cc := header.Get("Cache-Control")
	directives := splitDirectives(cc)
	if _, ok := directives["no-store"]; ok {
		return 0
	}
	if _, ok := directives["no-cache"]; ok {
		return 0
	}
	if v, ok := directives["s-maxage"]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v, ok := directives["max-age"]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if exp := header.Get("Expires"); exp != "" {
		if t, err := time.Parse(time.RFC1123, exp); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}
	return 0
}

// splitDirectives parses a Cache-Control header into a lowercase
// directive->value map; directives without a value map to "".
func splitDirectives(cc string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if hasValue {
			out[name] = strings.Trim(strings.TrimSpace(value), `"`)
		} else {
			out[name] = ""
		}
	}
	return out
}
