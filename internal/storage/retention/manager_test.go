package retention

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/storage/config"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*Manager, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ExportDir = t.TempDir()
	cfg.Retention.Charts = 2 * 24 * time.Hour
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	m := New(cfg)
	m.SetClock(func() time.Time { return now })
	return m, cfg
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test"), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
}

func TestManager_Cutoff(t *testing.T) {
	m, cfg := newManager(t)

	if got := m.Cutoff(config.KindCharts); got != date.MustParse("2024-03-08") {
		t.Errorf("Cutoff = %s, want 2024-03-08", got)
	}

	cfg.Retention.Charts = 36 * time.Hour
	if got := m.Cutoff(config.KindCharts); got != date.MustParse("2024-03-08") {
		t.Errorf("partial days round up: Cutoff = %s", got)
	}
}

func TestManager_CleanupKind(t *testing.T) {
	m, cfg := newManager(t)
	dir := cfg.KindDir(config.KindCharts)

	touch(t, dir,
		"2024-03-01.parquet", // expired
		"2024-03-07.parquet", // expired
		"2024-03-08.parquet", // at cutoff, kept
		"2024-03-10.parquet", // today
		"notes.parquet",      // not an export
	)

	result := m.CleanupKind(config.KindCharts)

	if result.FilesDeleted != 2 {
		t.Errorf("expected 2 files deleted, got %d", result.FilesDeleted)
	}
	if result.FilesSkipped != 2 {
		t.Errorf("expected 2 files skipped, got %d", result.FilesSkipped)
	}
	if result.BytesFreed != 8 {
		t.Errorf("expected 8 bytes freed, got %d", result.BytesFreed)
	}

	remaining, _ := os.ReadDir(dir)
	if len(remaining) != 3 {
		t.Errorf("expected 3 files remaining, got %d", len(remaining))
	}
	if s := m.Stats(); s.FilesDeleted != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestManager_KeepsNewest(t *testing.T) {
	m, cfg := newManager(t)
	dir := cfg.KindDir(config.KindCharts)
	touch(t, dir, "2020-01-01.parquet", "2020-01-02.parquet")

	result := m.CleanupKind(config.KindCharts)
	if result.FilesDeleted != 1 {
		t.Errorf("expected 1 file deleted, got %d", result.FilesDeleted)
	}
	if _, err := os.Stat(filepath.Join(dir, "2020-01-02.parquet")); err != nil {
		t.Errorf("newest export removed: %v", err)
	}
}

func TestManager_DryRun(t *testing.T) {
	m, cfg := newManager(t)
	dir := cfg.KindDir(config.KindCharts)
	touch(t, dir, "2020-01-01.parquet", "2024-03-10.parquet")

	var charts *CleanupResult
	results := m.DryRun()
	for i := range results {
		if results[i].Kind == config.KindCharts {
			charts = &results[i]
		}
	}
	if charts == nil {
		t.Fatal("charts result not found")
	}
	if charts.FilesDeleted != 1 {
		t.Errorf("expected 1 file would be deleted, got %d", charts.FilesDeleted)
	}
	if _, err := os.Stat(filepath.Join(dir, "2020-01-01.parquet")); err != nil {
		t.Error("file should still exist after dry run")
	}
}

func TestManager_GetDiskUsage(t *testing.T) {
	m, cfg := newManager(t)
	touch(t, cfg.KindDir(config.KindSummaries), "2024-03-09.parquet", "2024-03-10.parquet")

	usage := m.GetDiskUsage()
	if u := usage[config.KindSummaries]; u.FileCount != 2 || u.TotalSize != 8 {
		t.Errorf("summaries usage = %+v", u)
	}
	if u := usage[config.KindCharts]; u.FileCount != 0 {
		t.Errorf("charts usage = %+v", u)
	}

	if out := m.FormatDiskUsage(); !strings.Contains(out, "Total: 2 files, 8 B") {
		t.Errorf("FormatDiskUsage = %q", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
