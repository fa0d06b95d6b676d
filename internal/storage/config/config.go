package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind is a category of export file. Each kind lives in its own
// subdirectory of the export directory.
type Kind string

const (
	// KindCharts holds one row per investor and chart day.
	KindCharts Kind = "charts"

	// KindSummaries holds one row per investor with daily-return statistics.
	KindSummaries Kind = "summaries"
)

// AllKinds returns every export kind.
func AllKinds() []Kind {
	return []Kind{KindCharts, KindSummaries}
}

func (k Kind) String() string { return string(k) }

// Config represents the export storage configuration.
type Config struct {
	// ExportDir is the root directory for Parquet exports.
	ExportDir string `yaml:"export_dir"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`

	// Retention defines how long to keep export files of each kind.
	Retention RetentionConfig `yaml:"retention"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, gzip, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// RetentionConfig defines how long to keep export files.
type RetentionConfig struct {
	// Charts is the retention for chart exports.
	Charts time.Duration `yaml:"charts"`

	// Summaries is the retention for summary exports.
	Summaries time.Duration `yaml:"summaries"`
}

// For returns the retention of kind k.
func (c *RetentionConfig) For(k Kind) time.Duration {
	switch k {
	case KindCharts:
		return c.Charts
	case KindSummaries:
		return c.Summaries
	}
	return 0
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ExportDir: "/var/lib/dossier/export",
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
		},
		Retention: RetentionConfig{
			Charts:    30 * 24 * time.Hour,
			Summaries: 365 * 24 * time.Hour,
		},
		Query: QueryConfig{
			MemoryLimit: "512MB",
			Timeout:     30 * time.Second,
			MaxRows:     100000,
		},
	}
}

// KindDir returns the directory path for an export kind.
func (c *Config) KindDir(k Kind) string {
	return filepath.Join(c.ExportDir, k.String())
}
