// Package stdlib implements the engine's built-in `std` tool namespace:
// httpCall (a caching HTTP client) plus the small pure helpers spec.md
// §4.9 names (upperCase, lowerCase, findObject, pickFirst, toArray).
package stdlib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stackables/bridge/pkg/httpcache"
	"github.com/stackables/bridge/pkg/httpclient"
	"github.com/stackables/bridge/pkg/toolrun"
)

// reservedHTTPCallKeys are the input keys httpCall interprets itself;
// everything else is "shorthand" (spec.md §4.6).
var reservedHTTPCallKeys = map[string]bool{
	"baseUrl": true, "method": true, "path": true, "headers": true, "cache": true,
}

// HTTPCall builds the httpCall tool function, composing client for
// transport (retries on 429/5xx) and store for response caching.
func HTTPCall(client *httpclient.Client, store httpcache.Store) toolrun.Func {
	return func(ctx context.Context, input map[string]any) (any, error) {
		method := strings.ToUpper(stringOr(input["method"], "GET"))
		fullURL, err := buildURL(input, method)
		if err != nil {
			return nil, err
		}

		headers := map[string]string{}
		if h, ok := input["headers"].(map[string]any); ok {
			for k, v := range h {
				headers[k] = fmt.Sprint(v)
			}
		}

		var bodyBytes []byte
		if method != "GET" && method != "HEAD" {
			bodyBytes, err = shorthandJSONBody(input)
			if err != nil {
				return nil, err
			}
			if bodyBytes != nil && !hasHeader(headers, "Content-Type") {
				headers["Content-Type"] = "application/json"
			}
		}

		cacheKey := httpcache.Key(method, fullURL, string(bodyBytes))
		cacheMode := cacheModeOf(input["cache"])
		if store != nil && cacheMode != "0" {
			if cached, ok := store.Get(cacheKey); ok {
				return cached, nil
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytesReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("stdlib: httpCall: %s %s: status %d: %s", method, fullURL, resp.StatusCode, string(raw))
		}

		result, err := decodeBody(raw)
		if err != nil {
			return nil, err
		}

		if store != nil {
			ttl := httpcache.TTLFromMode(cacheMode, resp.Header)
			if ttl > 0 {
				store.Set(cacheKey, result, ttl)
			}
		}
		return result, nil
	}
}

func buildURL(input map[string]any, method string) (string, error) {
	base := stringOr(input["baseUrl"], "")
	path := stringOr(input["path"], "")
	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if base == "" {
		full = path
	}

	if method != "GET" {
		return full, nil
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("stdlib: httpCall: invalid url %q: %w", full, err)
	}
	q := u.Query()
	for k, v := range input {
		if reservedHTTPCallKeys[k] || v == nil {
			continue
		}
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func shorthandJSONBody(input map[string]any) ([]byte, error) {
	body := map[string]any{}
	for k, v := range input {
		if reservedHTTPCallKeys[k] || v == nil {
			continue
		}
		body[k] = v
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.Marshal(body)
}

func decodeBody(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), nil
	}
	return v, nil
}

func hasHeader(h map[string]string, key string) bool {
	for k := range h {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// cacheModeOf reads the `cache` shorthand, which the DSL may hand over
// as a bare numeric literal (`cache = 300`, `cache = 0`) instead of a
// string ("auto", "0"). A numeric literal arrives as float64; format it
// back to its integral string form so "0" still bypasses the store and
// any other TTL still reaches httpcache.TTLFromMode.
func cacheModeOf(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int:
		return strconv.Itoa(n)
	default:
		return stringOr(v, "")
	}
}

func stringOr(v any, def string) string {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
