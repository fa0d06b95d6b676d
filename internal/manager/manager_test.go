package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/series"
	"github.com/xtxerr/dossier/internal/storage"
	storageconfig "github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/query"
	"github.com/xtxerr/dossier/internal/store"
)

var (
	d0102 = date.MustParse("2024-01-02")
	d0103 = date.MustParse("2024-01-03")
	clock = time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// seed writes a directory listing alice, bob and carol. alice has complete
// raw data, bob has none, carol has a mirror that fails validation.
func seed(t *testing.T, a *assembly.Assembly) {
	t.Helper()
	ctx := context.Background()

	must(t, a.Directory().Store(ctx, assembly.Directory{
		Investors: []assembly.Listing{{Name: "alice", CustomerID: 1}, {Name: "bob", CustomerID: 2}, {Name: "carol", CustomerID: 3}},
		Updated:   d0103,
	}))

	for _, name := range []string{"alice", "carol"} {
		must(t, a.Chart(name).StoreOn(ctx, d0103, series.New(d0103, []float64{100, 101, 102, 103})))
		must(t, a.Stats(name).StoreOn(ctx, d0102, assembly.Stats{CustomerID: 1, FullName: name}))
	}
	must(t, a.Mirrors("carol").StoreOn(ctx, d0102, []assembly.Mirror{{CustomerID: 9, Value: 0}}))
}

func newManager(t *testing.T, opts ...Option) (*Manager, *assembly.Assembly) {
	t.Helper()
	a := assembly.New(store.NewMemo(store.NewMemory()))
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	return New(a, opts...), a
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	cfg := storageconfig.DefaultConfig()
	cfg.ExportDir = t.TempDir()
	svc, err := storage.New(cfg)
	must(t, err)
	t.Cleanup(func() { svc.Close() })

	m, a := newManager(t, WithExporter(svc))
	seed(t, a)

	result, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if result.Investors != 3 || result.Compiled != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Export == nil || result.Export.Investors != 1 || result.Export.Date != date.Of(clock) {
		t.Errorf("export = %+v", result.Export)
	}

	health := map[string]string{"alice": HealthStateUp, "bob": HealthStateUnknown, "carol": HealthStateDegraded}
	for name, want := range health {
		if got := m.States().Get(name).GetHealthState(); got != want {
			t.Errorf("%s health = %q, want %q", name, got, want)
		}
	}
	if m.States().Get("bob").GetLastError() == "" {
		t.Error("skip reason not recorded")
	}

	points, err := svc.Query().Chart(ctx, query.ChartQuery{Investor: "alice"})
	must(t, err)
	if len(points) != 4 {
		t.Errorf("exported points = %d, want 4", len(points))
	}
}

func TestRefresh_FailingInvestorGoesDown(t *testing.T) {
	ctx := context.Background()
	m, a := newManager(t)
	seed(t, a)

	for i := 0; i < downAfter; i++ {
		if _, err := m.Refresh(ctx); err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
	}

	carol := m.States().Get("carol")
	if carol.GetHealthState() != HealthStateDown {
		t.Errorf("carol health = %q, want down", carol.GetHealthState())
	}
	if compiles, failures := carol.GetCounts(); compiles != downAfter || failures != downAfter {
		t.Errorf("carol counts = %d/%d", compiles, failures)
	}

	// Fixing the raw data recovers on the next refresh.
	must(t, a.Mirrors("carol").StoreOn(ctx, d0103, []assembly.Mirror{{CustomerID: 9, Value: 10}}))
	must(t, a.Mirrors("carol").StoreOn(ctx, d0102, []assembly.Mirror{{CustomerID: 9, Value: 10}}))
	if _, err := m.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if carol.GetHealthState() != HealthStateUp || carol.GetConsecutiveFailures() != 0 {
		t.Errorf("carol after fix = %q/%d", carol.GetHealthState(), carol.GetConsecutiveFailures())
	}
}

func TestRefresh_DropsUnlisted(t *testing.T) {
	ctx := context.Background()
	m, a := newManager(t)
	seed(t, a)

	_, err := m.Refresh(ctx)
	must(t, err)
	if m.States().Count() != 3 {
		t.Fatalf("states = %d, want 3", m.States().Count())
	}

	must(t, a.Directory().Store(ctx, assembly.Directory{
		Investors: []assembly.Listing{{Name: "alice", CustomerID: 1}},
		Updated:   d0103,
	}))
	_, err = m.Refresh(ctx)
	must(t, err)

	if m.States().GetIfExists("carol") != nil {
		t.Error("unlisted investor state kept")
	}
	if counts := m.States().CountByHealthState(); counts[HealthStateUp] != 1 || len(counts) != 1 {
		t.Errorf("health counts = %v", counts)
	}
}

func TestRefresh_NoDirectory(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Refresh(context.Background())
	if !errors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRefresh_StaleDirectory(t *testing.T) {
	ctx := context.Background()

	mem := store.NewMemory()
	written := time.Now()
	mem.SetClock(func() time.Time { return written })

	a := assembly.New(mem)
	seed(t, a)
	mem.SetClock(func() time.Time { return written.Add(48 * time.Hour) })

	m := New(a, WithDirectoryMaxAge(24*time.Hour))
	result, err := m.Refresh(ctx)
	must(t, err)
	if !result.DirectoryStale {
		t.Error("directory older than max age not reported stale")
	}
}

type failingExporter struct{}

func (failingExporter) Export(context.Context, date.Date, []*assembly.Investor) (storage.ExportResult, error) {
	return storage.ExportResult{}, fmt.Errorf("disk full")
}

func TestRefresh_ExportError(t *testing.T) {
	m, a := newManager(t, WithExporter(failingExporter{}))
	seed(t, a)

	result, err := m.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected export error")
	}
	if result == nil || result.Compiled != 1 {
		t.Errorf("compile results should survive an export failure: %+v", result)
	}
}

func TestStateManager(t *testing.T) {
	sm := NewStateManager()
	now := time.Now()

	s := sm.Get("alice")
	if sm.Get("alice") != s {
		t.Error("Get should return the same state")
	}
	if s.GetHealthState() != HealthStateUnknown {
		t.Errorf("initial health = %q", s.GetHealthState())
	}

	s.RecordFailure(now, "boom")
	if s.GetHealthState() != HealthStateDegraded || s.GetLastError() != "boom" {
		t.Errorf("after failure: %q %q", s.GetHealthState(), s.GetLastError())
	}
	s.RecordSkipped(now, "no data")
	if s.GetHealthState() != HealthStateDegraded || s.GetConsecutiveFailures() != 1 {
		t.Error("a skip must not change health or the failure streak")
	}
	s.RecordSuccess(now)
	if _, success, _ := s.GetTimestamps(); success == nil || !success.Equal(now) {
		t.Errorf("last success = %v", success)
	}

	sm.Get("bob")
	if got := sm.GetAll(); len(got) != 2 || got[0].Name != "alice" || got[1].Name != "bob" {
		t.Errorf("GetAll order wrong")
	}
	if dropped := sm.Retain([]string{"bob"}); dropped != 1 || sm.Count() != 1 {
		t.Errorf("Retain dropped %d, count %d", dropped, sm.Count())
	}
}
