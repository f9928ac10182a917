// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides the HTTP client the httpCall tool issues
// outbound requests through: retry with exponential backoff, and a
// pluggable strategy for which status codes are worth retrying.
package httpclient

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// RetryStrategy selects how an unsuccessful response should be retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// StrategyFunc determines the retry strategy for a response status code.
type StrategyFunc func(int) RetryStrategy

// Client wraps http.Client with retry and backoff.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	strategyFunc StrategyFunc
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

func WithMaxDelay(delay time.Duration) Option {
	return func(c *Client) { c.maxDelay = delay }
}

func WithRetryStrategy(strategyFunc StrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = strategyFunc }
}

// TLSConfig configures outbound TLS, for internal endpoints behind a
// corporate proxy or a self-signed certificate.
type TLSConfig struct {
	InsecureSkipVerify bool
	CACertificate      string
}

// ConfigureTLS builds an http.Transport from a TLSConfig.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{TLSClientConfig: &tls.Config{}}
	if config == nil {
		return transport, nil
	}
	if config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate %s: %w", config.CACertificate, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate %s", config.CACertificate)
		}
		transport.TLSClientConfig.RootCAs = pool
	}
	if config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
		slog.Warn("TLS certificate verification disabled for httpCall transport")
	}
	return transport, nil
}

func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}
		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("failed to configure TLS for httpCall transport", "error", err)
			return
		}
		if c.client == nil {
			c.client = &http.Client{Timeout: 30 * time.Second}
		}
		c.client.Transport = transport
	}
}

// New builds a Client with the given options applied over sane defaults:
// a 30s timeout, 3 retries, exponential backoff starting at 250ms.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 30 * time.Second},
		maxRetries:   3,
		baseDelay:    250 * time.Millisecond,
		maxDelay:     10 * time.Second,
		strategyFunc: DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy retries rate-limit and transient server errors with
// backoff, and retries request-timeout/5xx conservatively.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes req, retrying on a retryable status code per the client's
// strategy, with the request body buffered so it can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	var lastResp *http.Response
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, strategy, retryAfter, err := c.attempt(req)
		if strategy == NoRetry {
			return resp, err
		}
		lastResp, lastErr = resp, err
		if attempt >= c.maxRetries {
			break
		}

		delay := c.calculateDelay(strategy, attempt, retryAfter)
		if delay <= 0 {
			break
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
	if lastErr != nil {
		return lastResp, fmt.Errorf("httpclient: max retries (%d) exceeded: %w", c.maxRetries, lastErr)
	}
	return lastResp, nil
}

func (c *Client) attempt(req *http.Request) (*http.Response, RetryStrategy, time.Duration, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NoRetry, 0, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, 0, nil
	}

	var retryAfter time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, perr := parsePositiveInt(v); perr == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	strategy := c.strategyFunc(resp.StatusCode)
	return resp, strategy, retryAfter, fmt.Errorf("httpclient: HTTP %d", resp.StatusCode)
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryAfter time.Duration) time.Duration {
	switch strategy {
	case SmartRetry:
		if retryAfter > 0 {
			return min(retryAfter, c.maxDelay)
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		return min(delay+jitter, c.maxDelay)
	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(attempt+1) * c.baseDelay
	default:
		return 0
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
