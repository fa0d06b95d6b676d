package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/parquet"
)

func newService(t *testing.T) (*Service, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ExportDir = t.TempDir()

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, cfg
}

func writeExports(t *testing.T, cfg *config.Config, day date.Date) {
	t.Helper()

	charts := []parquet.ChartRow{
		{Investor: "alice", Date: "2024-01-01", Value: 100, Detrended: 101},
		{Investor: "alice", Date: "2024-01-02", Value: 102, Detrended: 101},
		{Investor: "alice", Date: "2024-01-03", Value: 104, Detrended: 101},
		{Investor: "bob", Date: "2024-01-03", Value: 50, Detrended: 50},
	}
	summaries := []parquet.SummaryRow{
		{Investor: "alice", CustomerID: 1, Start: "2024-01-01", End: "2024-01-03", Days: 2, TotalReturn: 0.04},
		{Investor: "bob", CustomerID: 2, Start: "2024-01-03", End: "2024-01-03", Days: 0, TotalReturn: -0.1},
		{Investor: "carol", CustomerID: 3, Start: "2024-01-01", End: "2024-01-03", Days: 2, TotalReturn: 0.2},
	}

	name := parquet.FileName(day)
	if err := parquet.WriteFile(filepath.Join(cfg.KindDir(config.KindCharts), name), charts, parquet.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if err := parquet.WriteFile(filepath.Join(cfg.KindDir(config.KindSummaries), name), summaries, parquet.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
}

func TestService_NoExports(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Chart(context.Background(), ChartQuery{Investor: "alice"})
	if !errors.Is(err, errors.ErrNoData) {
		t.Errorf("Chart err = %v, want ErrNoData", err)
	}
	_, err = svc.Top(context.Background(), 10)
	if !errors.Is(err, errors.ErrNoData) {
		t.Errorf("Top err = %v, want ErrNoData", err)
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc, _ := newService(t)

	results, err := svc.ExecuteSQL(context.Background(), "SELECT 1 AS value")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 {
		t.Errorf("expected 1 query executed, got %d", stats.QueriesExecuted)
	}
}

func TestService_Chart(t *testing.T) {
	svc, cfg := newService(t)
	writeExports(t, cfg, date.MustParse("2024-01-03"))

	ctx := context.Background()
	points, err := svc.Chart(ctx, ChartQuery{Investor: "alice", From: date.MustParse("2024-01-02")})
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Date != date.MustParse("2024-01-02") || points[0].Value != 102 {
		t.Errorf("first point = %+v", points[0])
	}

	points, err = svc.Chart(ctx, ChartQuery{Investor: "alice", Limit: 1})
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if len(points) != 1 || points[0].Value != 100 {
		t.Errorf("limited points = %+v", points)
	}
}

func TestService_Top(t *testing.T) {
	svc, cfg := newService(t)
	writeExports(t, cfg, date.MustParse("2024-01-03"))

	top, err := svc.Top(context.Background(), 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 || top[0].Investor != "carol" || top[1].Investor != "alice" {
		t.Errorf("Top = %+v", top)
	}
}

func TestService_RefreshViews(t *testing.T) {
	svc, cfg := newService(t)
	writeExports(t, cfg, date.MustParse("2024-01-03"))

	ctx := context.Background()
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	results, err := svc.ExecuteSQL(ctx, "SELECT count(*) AS n FROM summaries")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 row, got %d", len(results))
	}
	if n, ok := results[0]["n"].(int64); !ok || n != 3 {
		t.Errorf("count = %v (%T), want 3", results[0]["n"], results[0]["n"])
	}
}

func TestQuote(t *testing.T) {
	if got := quote("it's"); got != "'it''s'" {
		t.Errorf("quote = %s", got)
	}
}
