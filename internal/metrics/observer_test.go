package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewPrometheusObserver("test", reg)
	ctx := context.Background()

	o.OnCacheLookup(ctx, &CacheLookupEvent{Cache: "names", Hit: true})
	o.OnCacheLookup(ctx, &CacheLookupEvent{Cache: "names", Hit: true})
	o.OnCacheLookup(ctx, &CacheLookupEvent{Cache: "names", Hit: false})
	o.OnCompile(ctx, &CompileEvent{Investor: "alice", Outcome: OutcomeCompiled, Duration: time.Millisecond})
	o.OnCompile(ctx, &CompileEvent{Investor: "bob", Outcome: OutcomeCompiled, Error: errors.New("boom")})

	if got := testutil.ToFloat64(o.cacheLookups.WithLabelValues("names", "hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.cacheLookups.WithLabelValues("names", "miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.compiles.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("failed compiles = %v, want 1", got)
	}
}

func TestSlogObserverAndMulti(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var o Observer = Multi{Nop{}, NewSlogObserver(logger, slog.LevelInfo)}
	o.OnCacheLookup(context.Background(), &CacheLookupEvent{Cache: "dirs"})
	o.OnCompile(context.Background(), &CompileEvent{Investor: "alice", Outcome: OutcomeHit})

	out := buf.String()
	if strings.Contains(out, "store cache lookup") {
		t.Error("cache lookups should be suppressed at info level")
	}
	if !strings.Contains(out, "outcome=hit") || !strings.Contains(out, "investor=alice") {
		t.Errorf("missing compile record: %q", out)
	}
}
