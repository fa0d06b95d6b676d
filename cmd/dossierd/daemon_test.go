package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/manager"
	"github.com/xtxerr/dossier/internal/series"
	"github.com/xtxerr/dossier/internal/store"
)

func newTestDaemon(t *testing.T, seed bool) (*daemon, *prometheus.Registry) {
	t.Helper()
	ctx := context.Background()
	a := assembly.New(store.NewMemo(store.NewMemory()))

	if seed {
		end := date.MustParse("2024-01-03")
		if err := a.Directory().Store(ctx, assembly.Directory{
			Investors: []assembly.Listing{{Name: "alice", CustomerID: 1}, {Name: "bob", CustomerID: 2}},
			Updated:   end,
		}); err != nil {
			t.Fatal(err)
		}
		if err := a.Chart("alice").StoreOn(ctx, end, series.New(end, []float64{100, 101, 102})); err != nil {
			t.Fatal(err)
		}
		if err := a.Stats("alice").StoreOn(ctx, end, assembly.Stats{CustomerID: 1}); err != nil {
			t.Fatal(err)
		}
	}

	reg := prometheus.NewRegistry()
	return newDaemon(manager.New(a), time.Hour, reg), reg
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestDaemon_Health(t *testing.T) {
	d, reg := newTestDaemon(t, true)
	h := d.handler(reg)

	if code, _ := get(t, h, "/healthz"); code != http.StatusServiceUnavailable {
		t.Errorf("before first refresh: code = %d, want 503", code)
	}

	d.refresh(context.Background())

	code, body := get(t, h, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("code = %d, body %s", code, body)
	}
	var health struct {
		Refresh refreshStatus  `json:"refresh"`
		Health  map[string]int `json:"health"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatal(err)
	}
	if health.Refresh.Compiled != 1 || health.Refresh.Skipped != 1 {
		t.Errorf("refresh = %+v", health.Refresh)
	}
	if health.Health[manager.HealthStateUp] != 1 {
		t.Errorf("health = %v", health.Health)
	}
}

func TestDaemon_RefreshError(t *testing.T) {
	d, reg := newTestDaemon(t, false)
	d.refresh(context.Background())

	code, body := get(t, d.handler(reg), "/healthz")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "not found") {
		t.Errorf("code = %d, body = %s", code, body)
	}
}

func TestDaemon_Investors(t *testing.T) {
	d, reg := newTestDaemon(t, true)
	d.refresh(context.Background())

	_, body := get(t, d.handler(reg), "/investors")
	var investors []investorStatus
	if err := json.Unmarshal([]byte(body), &investors); err != nil {
		t.Fatal(err)
	}
	if len(investors) != 2 || investors[0].Name != "alice" || investors[0].Health != manager.HealthStateUp {
		t.Fatalf("investors = %+v", investors)
	}
	if investors[1].Health != manager.HealthStateUnknown || investors[1].LastError == "" {
		t.Errorf("bob = %+v", investors[1])
	}
}

func TestDaemon_Metrics(t *testing.T) {
	d, reg := newTestDaemon(t, true)
	d.refresh(context.Background())

	_, body := get(t, d.handler(reg), "/metrics")
	for _, want := range []string{
		`dossier_daemon_refreshes_total{result="ok"} 1`,
		`dossier_daemon_investors{health="up"} 1`,
		`dossier_daemon_investors{health="down"} 0`,
		`dossier_daemon_refresh_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	d, _ := newTestDaemon(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for d.lastRefresh() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	if d.lastRefresh() == nil {
		t.Error("no immediate refresh")
	}
}
