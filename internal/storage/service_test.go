package storage

import (
	"context"
	"os"
	"testing"

	"github.com/xtxerr/dossier/internal/aggregate"
	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/query"
	"github.com/xtxerr/dossier/internal/series"
)

func newService(t *testing.T) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ExportDir = t.TempDir()

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func record(name string, id int64, values ...float64) *assembly.Investor {
	chart := series.New(date.MustParse("2024-01-10"), values)
	return &assembly.Investor{
		Name:       name,
		CustomerID: id,
		Chart:      chart,
		Detrended:  values,
		Summary:    aggregate.Summarize(chart),
	}
}

func TestService_New(t *testing.T) {
	svc := newService(t)

	if svc.IsRunning() {
		t.Error("service should not be running before Start()")
	}
	for _, k := range config.AllKinds() {
		if _, err := os.Stat(svc.Config().KindDir(k)); err != nil {
			t.Errorf("%s directory missing: %v", k, err)
		}
	}
}

func TestService_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportDir = ""
	if _, err := New(cfg); err == nil {
		t.Error("expected error for empty export_dir")
	}
}

func TestService_StartStop(t *testing.T) {
	svc := newService(t)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.IsRunning() {
		t.Error("service should be running after Start()")
	}
	if err := svc.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if svc.IsRunning() {
		t.Error("service should not be running after Close()")
	}
}

func TestService_ExportAndQuery(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	day := date.MustParse("2024-01-10")

	recs := []*assembly.Investor{
		record("alice", 1, 100, 110, 121),
		record("bob", 2, 100, 90),
		nil,
		record("carol", 3, 50),
	}

	result, err := svc.Export(ctx, day, recs)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.Investors != 3 {
		t.Errorf("Investors = %d, want 3", result.Investors)
	}
	if result.ChartRows != 6 {
		t.Errorf("ChartRows = %d, want 6", result.ChartRows)
	}
	// carol has a single day and therefore no summary.
	if result.SummaryRows != 2 {
		t.Errorf("SummaryRows = %d, want 2", result.SummaryRows)
	}

	points, err := svc.Query().Chart(ctx, query.ChartQuery{Investor: "alice"})
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if len(points) != 3 || points[2].Date != day || points[2].Value != 121 {
		t.Errorf("points = %+v", points)
	}

	top, err := svc.Query().Top(ctx, 1)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 || top[0].Investor != "alice" {
		t.Errorf("Top = %+v", top)
	}

	if s := svc.Stats(); s.LastExport.Date != day {
		t.Errorf("LastExport = %+v", s.LastExport)
	}
}

func TestService_ExportReplacesSameDay(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	day := date.MustParse("2024-01-10")

	if _, err := svc.Export(ctx, day, []*assembly.Investor{record("alice", 1, 1, 2)}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Export(ctx, day, []*assembly.Investor{record("bob", 2, 3, 4)}); err != nil {
		t.Fatal(err)
	}

	usage := svc.GetDiskUsage()
	if u := usage[config.KindCharts]; u.FileCount != 1 {
		t.Errorf("charts files = %d, want 1", u.FileCount)
	}
	points, err := svc.Query().Chart(ctx, query.ChartQuery{Investor: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 0 {
		t.Errorf("stale rows of replaced export: %+v", points)
	}
}

func TestService_ExportCancelled(t *testing.T) {
	svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Export(ctx, date.MustParse("2024-01-10"), []*assembly.Investor{record("alice", 1, 1, 2)})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	entries, _ := os.ReadDir(svc.Config().KindDir(config.KindCharts))
	if len(entries) != 0 {
		t.Errorf("cancelled export left %d files", len(entries))
	}
}
