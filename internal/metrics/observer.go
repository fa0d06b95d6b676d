// Package metrics defines the observation hooks emitted by the store cache
// and the investor assembly, with implementations for structured logging
// and Prometheus.
//
// All Observer methods are called synchronously on the hot path, so
// implementations must be fast and non-blocking.
package metrics

import (
	"context"
	"time"
)

// Compile outcomes reported in CompileEvent.Outcome.
const (
	OutcomeHit      = "hit"      // cached record returned
	OutcomeStale    = "stale"    // cache older than raw data, recompiled
	OutcomeInvalid  = "invalid"  // cache failed validation, recompiled
	OutcomeCompiled = "compiled" // no cache, compiled
	OutcomeFailed   = "failed"
)

// Observer receives cache and compile events.
type Observer interface {
	// OnCacheLookup is called for every memoized store lookup.
	OnCacheLookup(ctx context.Context, event *CacheLookupEvent)

	// OnCompile is called once per Compile call, after it returns.
	OnCompile(ctx context.Context, event *CompileEvent)
}

// CacheLookupEvent describes one memoized lookup.
type CacheLookupEvent struct {
	Cache string // dirs, names or age
	Hit   bool
}

// CompileEvent describes one compile request.
type CompileEvent struct {
	Investor string
	Outcome  string
	Duration time.Duration
	Error    error
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnCacheLookup(context.Context, *CacheLookupEvent) {}
func (Nop) OnCompile(context.Context, *CompileEvent)         {}

// Multi fans events out to several observers in order.
type Multi []Observer

func (m Multi) OnCacheLookup(ctx context.Context, event *CacheLookupEvent) {
	for _, o := range m {
		o.OnCacheLookup(ctx, event)
	}
}

func (m Multi) OnCompile(ctx context.Context, event *CompileEvent) {
	for _, o := range m {
		o.OnCompile(ctx, event)
	}
}

var (
	_ Observer = Nop{}
	_ Observer = Multi(nil)
)
