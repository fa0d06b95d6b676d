// Package loader - Configuration Types
//
// Defines the YAML configuration structure shared by dossier and dossierd.
//
// ARCHITECTURE:
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                         config.yaml                                 │
//	├─────────────────────────────────────────────────────────────────────┤
//	│                                                                     │
//	│  logging:     Level, output format                                  │
//	│  assembly:    Stopped sentinel, compile workers, directory age      │
//	│  daemon:      Metrics listener, refresh loop, shutdown              │
//	│                                                                     │
//	│  ┌─────────────────────┐    ┌─────────────────────────────────┐    │
//	│  │       store:        │    │           storage:              │    │
//	│  │ (memory, disk, SQL, │    │     (Parquet + DuckDB)          │    │
//	│  │       redis)        │    │                                 │    │
//	│  ├─────────────────────┤    ├─────────────────────────────────┤    │
//	│  │ • Raw snapshots     │    │ • Chart exports (daily files)   │    │
//	│  │ • Compiled records  │    │ • Summary exports               │    │
//	│  │ • Investor directory│    │ • Retention                     │    │
//	│  │                     │    │                                 │    │
//	│  │ Access: per name,   │    │ Access: OLAP                    │    │
//	│  │ per dated partition │    │ (bulk writes, ad-hoc SQL)       │    │
//	│  └─────────────────────┘    └─────────────────────────────────┘    │
//	│                                                                     │
//	└─────────────────────────────────────────────────────────────────────┘
//
// Every scalar setting can be overridden by a DOSSIER_* environment
// variable, applied after the file is parsed.

package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/dossier/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure.
type Config struct {
	// Store selects and configures the partitioned document store.
	Store StoreConfig `yaml:"store"`

	// Assembly configures record compilation.
	Assembly AssemblyConfig `yaml:"assembly"`

	// Logging configures the global logger.
	Logging LoggingConfig `yaml:"logging"`

	// Daemon configures dossierd.
	Daemon DaemonConfig `yaml:"daemon"`

	// Storage configures the Parquet export and its query engine.
	Storage StorageConfig `yaml:"storage"`
}

// =============================================================================
// Store Configuration
// =============================================================================

// Store backends.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendDuckDB = "duckdb"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Backends lists every supported store backend.
func Backends() []string {
	return []string{BackendMemory, BackendDisk, BackendDuckDB, BackendSQLite, BackendRedis}
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is one of memory, disk, duckdb, sqlite, redis.
	// Default: "disk"
	Backend string `yaml:"backend" env:"DOSSIER_STORE_BACKEND"`

	// Path is the root directory of the disk backend.
	// Default: "/var/lib/dossier/data"
	Path string `yaml:"path" env:"DOSSIER_STORE_PATH"`

	// DSN is the database for the duckdb and sqlite backends.
	// An empty DSN opens an in-memory DuckDB database.
	DSN string `yaml:"dsn" env:"DOSSIER_STORE_DSN"`

	// URL is the redis server, e.g. redis://localhost:6379/0.
	URL string `yaml:"url" env:"DOSSIER_STORE_URL"`

	// Table holds the documents of the SQL backends.
	// Default: "documents"
	Table string `yaml:"table" env:"DOSSIER_STORE_TABLE"`

	// Prefix namespaces every redis key.
	// Default: "dossier:"
	Prefix string `yaml:"prefix" env:"DOSSIER_STORE_PREFIX"`

	// -------------------------------------------------------------------------
	// Connection Pool (SQL backends)
	// -------------------------------------------------------------------------

	// MaxOpenConns is the max open database connections.
	// Default: 25
	MaxOpenConns int `yaml:"max_open_conns" env:"DOSSIER_STORE_MAX_OPEN_CONNS"`

	// MaxIdleConns is the max idle connections in the pool.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns" env:"DOSSIER_STORE_MAX_IDLE_CONNS"`

	// ConnMaxLifetime is the max lifetime of a connection.
	// Default: 5m
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" env:"DOSSIER_STORE_CONN_MAX_LIFETIME"`

	// QueryTimeout bounds a single statement.
	// Default: 30s
	QueryTimeout Duration `yaml:"query_timeout" env:"DOSSIER_STORE_QUERY_TIMEOUT"`
}

// =============================================================================
// Assembly Configuration
// =============================================================================

// AssemblyConfig configures record compilation.
type AssemblyConfig struct {
	// StoppedSentinel is the chart value reported for untracked investors.
	// Default: 6000
	StoppedSentinel float64 `yaml:"stopped_sentinel" env:"DOSSIER_STOPPED_SENTINEL"`

	// Workers bounds parallel compiles in compile -all and the daemon.
	// Default: 4
	Workers int `yaml:"workers" env:"DOSSIER_COMPILE_WORKERS"`

	// DirectoryMaxAge is how old the investor directory may get before a
	// warning is logged.
	// Default: 24h
	DirectoryMaxAge Duration `yaml:"directory_max_age" env:"DOSSIER_DIRECTORY_MAX_AGE"`
}

// =============================================================================
// Logging Configuration
// =============================================================================

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level" env:"DOSSIER_LOG_LEVEL"`

	// JSON switches the output to JSON lines.
	JSON bool `yaml:"json" env:"DOSSIER_LOG_JSON"`
}

// =============================================================================
// Daemon Configuration
// =============================================================================

// DaemonConfig configures dossierd.
type DaemonConfig struct {
	// Listen is the address serving /metrics, /healthz and /investors.
	// Empty disables the listener.
	// Default: "127.0.0.1:9464"
	Listen string `yaml:"listen" env:"DOSSIER_LISTEN"`

	// RefreshInterval is how often every listed investor is recompiled and
	// exported.
	// Default: 1h
	RefreshInterval Duration `yaml:"refresh_interval" env:"DOSSIER_REFRESH_INTERVAL"`

	// DrainTimeoutSec is how long shutdown waits for a running refresh.
	// Default: 30
	DrainTimeoutSec int `yaml:"drain_timeout_sec" env:"DOSSIER_DRAIN_TIMEOUT_SEC"`
}

// =============================================================================
// Storage Configuration (Parquet export)
// =============================================================================

// StorageConfig configures the Parquet export.
type StorageConfig struct {
	// Enabled turns the export on. The daemon exports after each refresh.
	Enabled bool `yaml:"enabled" env:"DOSSIER_EXPORT_ENABLED"`

	// ExportDir is the root directory of the export files.
	// Default: "/var/lib/dossier/export"
	ExportDir string `yaml:"export_dir" env:"DOSSIER_EXPORT_DIR"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`

	// Retention defines how long export files are kept.
	Retention RetentionConfig `yaml:"retention"`

	// Query configures the DuckDB query engine.
	Query QueryConfig `yaml:"query"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm: snappy, zstd, lz4, gzip, none.
	// Default: "zstd"
	Algorithm string `yaml:"algorithm" env:"DOSSIER_EXPORT_COMPRESSION"`

	// Level is the compression level (zstd: 1-22).
	// Default: 3
	Level int `yaml:"level" env:"DOSSIER_EXPORT_COMPRESSION_LEVEL"`
}

// RetentionConfig defines how long export files are kept.
type RetentionConfig struct {
	// Charts is the retention of chart exports.
	// Default: 30d
	Charts Duration `yaml:"charts" env:"DOSSIER_RETENTION_CHARTS"`

	// Summaries is the retention of summary exports.
	// Default: 365d
	Summaries Duration `yaml:"summaries" env:"DOSSIER_RETENTION_SUMMARIES"`
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit, e.g. "512MB".
	MemoryLimit string `yaml:"memory_limit" env:"DOSSIER_QUERY_MEMORY_LIMIT"`

	// Timeout bounds a single query.
	// Default: 30s
	Timeout Duration `yaml:"timeout" env:"DOSSIER_QUERY_TIMEOUT"`

	// MaxRows caps ad-hoc query results.
	// Default: 100000
	MaxRows int `yaml:"max_rows" env:"DOSSIER_QUERY_MAX_ROWS"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:         config.DefaultStoreBackend,
			Path:            config.DefaultDataDir,
			Table:           config.DefaultSQLTable,
			Prefix:          config.DefaultRedisPrefix,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
			QueryTimeout:    Duration(config.DefaultStoreQueryTimeout),
		},

		Assembly: AssemblyConfig{
			StoppedSentinel: config.DefaultStoppedSentinel,
			Workers:         config.DefaultCompileWorkers,
			DirectoryMaxAge: Duration(config.DefaultDirectoryMaxAge),
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		Daemon: DaemonConfig{
			Listen:          config.DefaultMetricsListen,
			RefreshInterval: Duration(config.DefaultRefreshInterval),
			DrainTimeoutSec: config.DefaultDrainTimeoutSec,
		},

		Storage: StorageConfig{
			Enabled:   true,
			ExportDir: "/var/lib/dossier/export",
			Compression: CompressionConfig{
				Algorithm: "zstd",
				Level:     3,
			},
			Retention: RetentionConfig{
				Charts:    Duration(30 * 24 * time.Hour),
				Summaries: Duration(365 * 24 * time.Hour),
			},
			Query: QueryConfig{
				MemoryLimit: "512MB",
				Timeout:     Duration(30 * time.Second),
				MaxRows:     100000,
			},
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML and from
// environment variables. Besides time.ParseDuration syntax it accepts a
// day suffix ("30d") and plain integers as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used for environment
// overrides.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return dur, nil
}
