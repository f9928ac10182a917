// Package trace accumulates per-tool-invocation trace records for a
// request, surfaced to the host under the "traces" response extension
// (spec.md §4.7 "Tracing").
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level selects how much detail a Record carries.
type Level int

const (
	Off Level = iota
	Basic
	Full
)

// ParseLevel converts a string trace level; unrecognized values are Off.
func ParseLevel(s string) Level {
	switch s {
	case "basic":
		return Basic
	case "full":
		return Full
	default:
		return Off
	}
}

// Record is one tool invocation's trace entry.
type Record struct {
	Tool       string
	Fn         string
	StartedAt  time.Time
	DurationMs int64
	Error      string

	// Input/Output are populated only at Full level.
	Input  map[string]any
	Output map[string]any
}

// Collector accumulates Records for one request. Safe for concurrent
// Append from parallel tool invocations.
type Collector struct {
	Level Level

	// ID correlates every Record in this Collector back to one request,
	// surfaced alongside "traces" in the response extensions.
	ID string

	mu      sync.Mutex
	records []Record
}

// NewCollector builds a Collector at the given level, stamped with a
// fresh request ID. A nil *Collector is valid and Append becomes a
// no-op, so callers may pass one through unconditionally when tracing
// is off.
func NewCollector(level Level) *Collector {
	return &Collector{Level: level, ID: uuid.NewString()}
}

// RequestID returns the collector's correlation ID, or "" for a nil
// Collector.
func (c *Collector) RequestID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// Append records one tool invocation, trimming input/output unless the
// collector is at Full level.
func (c *Collector) Append(rec Record) {
	if c == nil || c.Level == Off {
		return
	}
	if c.Level < Full {
		rec.Input = nil
		rec.Output = nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Traces returns a snapshot of the accumulated records.
func (c *Collector) Traces() []Record {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}
