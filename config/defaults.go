// Package config provides configuration defaults and utilities
// for the dossier application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStoreBackend is the partitioned store implementation.
	// One of: memory, disk, duckdb, sqlite, redis.
	// Override via config: store.backend
	DefaultStoreBackend = "disk"

	// DefaultDataDir is the root directory of the disk backend.
	// Override via config: store.path
	DefaultDataDir = "/var/lib/dossier/data"

	// DefaultSQLTable is the table holding documents for SQL backends.
	// Override via config: store.table
	DefaultSQLTable = "documents"

	// DefaultRedisPrefix namespaces every key written by the redis backend.
	// Override via config: store.prefix
	DefaultRedisPrefix = "dossier:"

	// DefaultStoreQueryTimeout bounds a single SQL statement.
	// Override via config: store.query_timeout
	DefaultStoreQueryTimeout = 30 * time.Second
)

// =============================================================================
// Asset Defaults
// =============================================================================

const (
	// DefaultDirectoryMaxAge is how old the investor directory may get
	// before it is reported as stale.
	// Override via config: assembly.directory_max_age
	DefaultDirectoryMaxAge = 24 * time.Hour

	// DirectoryAssetName is the root-level single value listing the
	// tracked investors.
	DirectoryAssetName = "investors"
)

// =============================================================================
// Assembly Defaults
// =============================================================================

const (
	// DefaultStoppedSentinel is the chart value reported once an investor
	// is no longer tracked. A trailing run of it is trimmed from charts.
	// Override via config: assembly.stopped_sentinel
	DefaultStoppedSentinel = 6000.0

	// DefaultCompileWorkers is the number of investors compiled in
	// parallel by CompileAll.
	// Override via config: assembly.workers
	DefaultCompileWorkers = 4

	// ChartDecimals is the precision spliced chart values are rounded to.
	ChartDecimals = 2
)

// =============================================================================
// Daemon Defaults
// =============================================================================

const (
	// DefaultMetricsListen is the address serving /metrics.
	// Override via config: daemon.listen
	DefaultMetricsListen = "127.0.0.1:9464"

	// DefaultRefreshInterval is how often the daemon recompiles the directory.
	// Override via config: daemon.refresh_interval
	DefaultRefreshInterval = time.Hour

	// DefaultRetentionHour is the local hour the daily retention run starts.
	DefaultRetentionHour = 5

	// DefaultDrainTimeoutSec is how long to wait for an in-flight refresh
	// during shutdown.
	// Override via config: daemon.drain_timeout_sec
	DefaultDrainTimeoutSec = 30
)

// =============================================================================
// Wire Defaults
// =============================================================================

const (
	// DefaultMaxMessageSize limits a single framed dump entry to prevent OOM.
	// Compiled records of long-lived investors are the largest entries.
	DefaultMaxMessageSize = 16 * 1024 * 1024
)
