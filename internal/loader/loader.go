// Package loader handles configuration file loading, validation, and the
// construction of the components the configuration describes.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables in the file and applying DOSSIER_* overrides
//   - Validating the result
//   - Opening the configured store backend and the assembly on top of it
//   - Converting between YAML and internal representations
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/metrics"
	storageconfig "github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/store"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, falling back to the defaults (plus environment
// overrides) when path does not exist or is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	cfg := DefaultConfig()
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv applies DOSSIER_* environment overrides to cfg. Unset variables
// leave the loaded values untouched.
func ParseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	// Store validation
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendDisk:
		if cfg.Store.Path == "" {
			errs.AddField("store.path", "cannot be empty for the disk backend")
		}
	case BackendDuckDB:
	case BackendSQLite:
		if cfg.Store.DSN == "" {
			errs.AddField("store.dsn", "cannot be empty for the sqlite backend")
		}
	case BackendRedis:
		if cfg.Store.URL == "" {
			errs.AddField("store.url", "cannot be empty for the redis backend")
		}
	default:
		errs.AddField("store.backend", fmt.Sprintf("must be one of %s", strings.Join(Backends(), ", ")))
	}
	if cfg.Store.MaxOpenConns < 0 || cfg.Store.MaxIdleConns < 0 {
		errs.AddField("store.max_open_conns", "connection limits cannot be negative")
	}

	// Assembly validation
	if cfg.Assembly.Workers <= 0 {
		errs.AddField("assembly.workers", "must be positive")
	}
	if cfg.Assembly.StoppedSentinel <= 0 {
		errs.AddField("assembly.stopped_sentinel", "must be positive")
	}

	// Logging validation
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs.AddField("logging.level", err.Error())
	}

	// Daemon validation
	if cfg.Daemon.RefreshInterval.Duration() <= 0 {
		errs.AddField("daemon.refresh_interval", "must be positive")
	}
	if cfg.Daemon.DrainTimeoutSec < 0 {
		errs.AddField("daemon.drain_timeout_sec", "cannot be negative")
	}

	// Storage validation (if enabled)
	if cfg.Storage.Enabled {
		if err := ToStorageConfig(&cfg.Storage).Validate(); err != nil {
			errs.AddField("storage", err.Error())
		}
	}

	return errs.Err()
}

// =============================================================================
// Conversion: Config → Storage Config
// =============================================================================

// ToStorageConfig converts the storage section to the internal storage config.
func ToStorageConfig(cfg *StorageConfig) *storageconfig.Config {
	if cfg == nil {
		return nil
	}

	return &storageconfig.Config{
		ExportDir: cfg.ExportDir,
		Compression: storageconfig.CompressionConfig{
			Algorithm: cfg.Compression.Algorithm,
			Level:     cfg.Compression.Level,
		},
		Retention: storageconfig.RetentionConfig{
			Charts:    cfg.Retention.Charts.Duration(),
			Summaries: cfg.Retention.Summaries.Duration(),
		},
		Query: storageconfig.QueryConfig{
			MemoryLimit: cfg.Query.MemoryLimit,
			Timeout:     cfg.Query.Timeout.Duration(),
			MaxRows:     cfg.Query.MaxRows,
		},
	}
}

// =============================================================================
// Conversion: Config → SQL Store Config
// =============================================================================

// ToSQLConfig converts the store section to the SQL backend config.
func ToSQLConfig(cfg *StoreConfig) store.SQLConfig {
	sc := store.DefaultSQLConfig()
	sc.DSN = cfg.DSN
	if cfg.Table != "" {
		sc.Table = cfg.Table
	}
	if cfg.MaxOpenConns > 0 {
		sc.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		sc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = cfg.ConnMaxLifetime.Duration()
	}
	if cfg.QueryTimeout > 0 {
		sc.QueryTimeout = cfg.QueryTimeout.Duration()
	}
	return sc
}

// =============================================================================
// Backend Factory
// =============================================================================

// Backend is an opened store backend wrapped in the memoizing decorator.
type Backend struct {
	// Kind is the configured backend name.
	Kind string

	// Store is the memoized store handed to assets.
	Store *store.Memo

	closer io.Closer
}

// Close releases the backend connection, if any.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// OpenStore opens the configured backend. Cache lookups are reported to
// observer, which may be nil.
func OpenStore(ctx context.Context, cfg *StoreConfig, observer metrics.Observer) (*Backend, error) {
	var (
		inner  store.Store
		closer io.Closer
	)

	switch cfg.Backend {
	case BackendMemory:
		inner = store.NewMemory()

	case BackendDisk:
		disk, err := store.NewDisk(cfg.Path)
		if err != nil {
			return nil, err
		}
		inner = disk

	case BackendDuckDB:
		sql, err := store.OpenDuckDB(ToSQLConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("open duckdb store: %w", err)
		}
		inner, closer = sql, sql

	case BackendSQLite:
		sql, err := store.OpenSQLite(ToSQLConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		inner, closer = sql, sql

	case BackendRedis:
		rds, err := store.OpenRedis(ctx, cfg.URL, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		inner, closer = rds, rds

	default:
		return nil, fmt.Errorf("store backend %q: %w", cfg.Backend, errors.ErrUnsupported)
	}

	var opts []store.MemoOption
	if observer != nil {
		opts = append(opts, store.WithObserver(observer))
	}

	logging.Component("loader").Debug("store opened", "backend", cfg.Backend)
	return &Backend{
		Kind:   cfg.Backend,
		Store:  store.NewMemo(inner, opts...),
		closer: closer,
	}, nil
}

// NewAssembly builds the assembly over s with the assembly section applied.
func NewAssembly(s store.Store, cfg *AssemblyConfig, observer metrics.Observer) *assembly.Assembly {
	opts := []assembly.Option{
		assembly.WithSentinel(cfg.StoppedSentinel),
		assembly.WithWorkers(cfg.Workers),
	}
	if observer != nil {
		opts = append(opts, assembly.WithObserver(observer))
	}
	return assembly.New(s, opts...)
}
