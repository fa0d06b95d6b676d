package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	testutil "github.com/xtxerr/dossier/internal/testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dossier.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Backend != BackendDisk {
		t.Errorf("Backend = %q, want disk", cfg.Store.Backend)
	}
	if cfg.Assembly.StoppedSentinel != 6000 {
		t.Errorf("StoppedSentinel = %v, want 6000", cfg.Assembly.StoppedSentinel)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DOSSIER_TEST_ROOT", "/srv/dossier")

	path := writeConfig(t, `
store:
  backend: sqlite
  dsn: ${DOSSIER_TEST_ROOT}/store.db
  query_timeout: 10
assembly:
  workers: 2
logging:
  level: debug
  json: true
daemon:
  refresh_interval: 15m
storage:
  export_dir: ${DOSSIER_TEST_ROOT}/export
  retention:
    charts: 7d
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.DSN != "/srv/dossier/store.db" {
		t.Errorf("DSN = %q", cfg.Store.DSN)
	}
	if cfg.Store.QueryTimeout.Duration() != 10*time.Second {
		t.Errorf("QueryTimeout = %s, want 10s", cfg.Store.QueryTimeout)
	}
	if cfg.Assembly.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Assembly.Workers)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Daemon.RefreshInterval.Duration() != 15*time.Minute {
		t.Errorf("RefreshInterval = %s", cfg.Daemon.RefreshInterval)
	}
	if cfg.Storage.Retention.Charts.Duration() != 7*24*time.Hour {
		t.Errorf("Retention.Charts = %s", cfg.Storage.Retention.Charts)
	}
	// Unset fields keep their defaults.
	if cfg.Assembly.StoppedSentinel != 6000 {
		t.Errorf("StoppedSentinel = %v", cfg.Assembly.StoppedSentinel)
	}
	if cfg.Storage.Retention.Summaries.Duration() != 365*24*time.Hour {
		t.Errorf("Retention.Summaries = %s", cfg.Storage.Retention.Summaries)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOSSIER_STORE_BACKEND", "memory")
	t.Setenv("DOSSIER_COMPILE_WORKERS", "8")
	t.Setenv("DOSSIER_REFRESH_INTERVAL", "2h")
	t.Setenv("DOSSIER_RETENTION_CHARTS", "3d")

	path := writeConfig(t, `
store:
  backend: disk
assembly:
  workers: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Assembly.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Assembly.Workers)
	}
	if cfg.Daemon.RefreshInterval.Duration() != 2*time.Hour {
		t.Errorf("RefreshInterval = %s", cfg.Daemon.RefreshInterval)
	}
	if cfg.Storage.Retention.Charts.Duration() != 3*24*time.Hour {
		t.Errorf("Retention.Charts = %s", cfg.Storage.Retention.Charts)
	}
}

func TestLoad_EnvError(t *testing.T) {
	t.Setenv("DOSSIER_COMPILE_WORKERS", "many")

	_, err := Parse([]byte("{}"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
	if _, err := Load(writeConfig(t, "store: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "daemon:\n  refresh_interval: soon\n")); err == nil {
		t.Error("expected duration error")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Store.Backend != BackendDisk {
		t.Errorf("Backend = %q", cfg.Store.Backend)
	}

	if _, err := LoadOrDefault(writeConfig(t, "assembly:\n  workers: -1\n")); err == nil {
		t.Error("an invalid existing file must not fall back to defaults")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(*Config)
	}{
		{"unknown backend", "store.backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"disk without path", "store.path", func(c *Config) { c.Store.Path = "" }},
		{"sqlite without dsn", "store.dsn", func(c *Config) { c.Store.Backend = BackendSQLite }},
		{"redis without url", "store.url", func(c *Config) { c.Store.Backend = BackendRedis }},
		{"zero workers", "assembly.workers", func(c *Config) { c.Assembly.Workers = 0 }},
		{"zero sentinel", "assembly.stopped_sentinel", func(c *Config) { c.Assembly.StoppedSentinel = 0 }},
		{"bad level", "logging.level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero refresh", "daemon.refresh_interval", func(c *Config) { c.Daemon.RefreshInterval = 0 }},
		{"bad compression", "storage", func(c *Config) { c.Storage.Compression.Algorithm = "brotli" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if !errors.Is(err, errors.ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("err = %v, want mention of %s", err, tt.field)
			}
		})
	}

	t.Run("disabled storage is not validated", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Enabled = false
		cfg.Storage.ExportDir = ""
		if err := Validate(cfg); err != nil {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90", 90 * time.Second, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{" 5m ", 5 * time.Minute, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		var d Duration
		err := d.UnmarshalText([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("UnmarshalText(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && d.Duration() != tt.want {
			t.Errorf("UnmarshalText(%q) = %s, want %s", tt.in, d, tt.want)
		}
	}
}

func TestToStorageConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.ExportDir = "/tmp/export"
	cfg.Storage.Retention.Charts = Duration(48 * time.Hour)

	sc := ToStorageConfig(&cfg.Storage)
	if sc.ExportDir != "/tmp/export" || sc.Retention.Charts != 48*time.Hour {
		t.Errorf("storage config = %+v", sc)
	}
	if sc.Query.Timeout != 30*time.Second || sc.Query.MaxRows != 100000 {
		t.Errorf("query config = %+v", sc.Query)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("converted default config invalid: %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  StoreConfig
	}{
		{"memory", StoreConfig{Backend: BackendMemory}},
		{"disk", StoreConfig{Backend: BackendDisk, Path: t.TempDir()}},
		{"duckdb", StoreConfig{Backend: BackendDuckDB}},
		{"sqlite", StoreConfig{Backend: BackendSQLite, DSN: filepath.Join(t.TempDir(), "store.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := OpenStore(ctx, &tt.cfg, nil)
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer backend.Close()

			day := date.MustParse("2024-01-02")
			if err := backend.Store.Sub(day).Store(ctx, "alice.chart", map[string]any{"end": "2024-01-02"}); err != nil {
				t.Fatalf("Store: %v", err)
			}
			dirs, err := backend.Store.Dirs(ctx)
			if err != nil {
				t.Fatalf("Dirs: %v", err)
			}
			if len(dirs) != 1 || dirs[0] != day {
				t.Errorf("Dirs = %v", dirs)
			}
		})
	}

	if _, err := OpenStore(ctx, &StoreConfig{Backend: "etcd"}, nil); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("unknown backend: err = %v", err)
	}
}

func TestNewAssembly(t *testing.T) {
	backend, err := OpenStore(context.Background(), &StoreConfig{Backend: BackendMemory}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	a := NewAssembly(backend.Store, &cfg.Assembly, nil)
	if a.Store() != backend.Store {
		t.Error("assembly does not use the opened store")
	}
}

func TestWatcher(t *testing.T) {
	path := writeConfig(t, "assembly:\n  workers: 2\n")

	var (
		mu     sync.Mutex
		loaded *Config
	)
	w := NewWatcher(path, 10*time.Millisecond, func(cfg *Config, err error) {
		if err != nil {
			t.Errorf("reload: %v", err)
			return
		}
		mu.Lock()
		loaded = cfg
		mu.Unlock()
	})
	w.Start()
	defer w.Stop()

	if err := os.WriteFile(path, []byte("assembly:\n  workers: 6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	err := testutil.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return loaded != nil && loaded.Assembly.Workers == 6
	})
	if err != nil {
		t.Fatal(err)
	}

	w.Stop()
	w.Stop()
}
