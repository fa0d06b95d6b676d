package retention

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/parquet"
)

// Manager handles cleanup of expired export files. The newest file of each
// kind is never removed so the query views always have data.
type Manager struct {
	mu     sync.RWMutex
	config *config.Config
	now    func() time.Time
	stats  ManagerStats
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	Kind         config.Kind
	FilesDeleted int
	BytesFreed   int64
	FilesSkipped int
	Errors       []error
}

// New creates a new retention manager.
func New(cfg *config.Config) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Manager{
		config: cfg,
		now:    time.Now,
	}
}

// SetClock replaces the time source used to compute cutoffs.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RunCleanup performs cleanup on all kinds.
func (m *Manager) RunCleanup() []CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRunTime = m.now()

	var results []CleanupResult
	for _, k := range config.AllKinds() {
		result := m.cleanupKind(k, false)
		results = append(results, result)
		m.record(result)
	}
	return results
}

// DryRun simulates cleanup without deleting files.
func (m *Manager) DryRun() []CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []CleanupResult
	for _, k := range config.AllKinds() {
		results = append(results, m.cleanupKind(k, true))
	}
	return results
}

// CleanupKind cleans a specific kind.
func (m *Manager) CleanupKind(k config.Kind) CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.cleanupKind(k, false)
	m.record(result)
	return result
}

func (m *Manager) record(r CleanupResult) {
	m.stats.FilesDeleted += int64(r.FilesDeleted)
	m.stats.BytesFreed += r.BytesFreed
	m.stats.FilesSkipped += int64(r.FilesSkipped)
	m.stats.Errors += int64(len(r.Errors))
}

// Cutoff returns the oldest export date of kind k that is kept.
func (m *Manager) Cutoff(k config.Kind) date.Date {
	days := int((m.config.Retention.For(k) + 24*time.Hour - 1) / (24 * time.Hour))
	return date.Of(m.now()).Add(-days)
}

func (m *Manager) cleanupKind(k config.Kind, dryRun bool) CleanupResult {
	result := CleanupResult{Kind: k}

	files, err := parquet.ListFiles(m.config.KindDir(k))
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list files: %w", err))
		return result
	}

	cutoff := m.Cutoff(k)
	for i, file := range files {
		if i == len(files)-1 || !file.Date.Before(cutoff) {
			result.FilesSkipped++
			continue
		}

		if !dryRun {
			if err := os.Remove(file.Path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", file.Path, err))
				continue
			}
		}

		result.FilesDeleted++
		result.BytesFreed += file.Size
	}

	return result
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// ManagerStats holds manager statistics.
type ManagerStats struct {
	LastRunTime  time.Time
	FilesDeleted int64
	BytesFreed   int64
	FilesSkipped int64
	Errors       int64
}

// DiskUsage holds disk usage information.
type DiskUsage struct {
	FileCount int
	TotalSize int64
}

// GetDiskUsage returns disk usage for each kind.
func (m *Manager) GetDiskUsage() map[config.Kind]DiskUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage := make(map[config.Kind]DiskUsage)
	for _, k := range config.AllKinds() {
		files, err := parquet.ListFiles(m.config.KindDir(k))
		if err != nil {
			continue
		}

		var u DiskUsage
		for _, f := range files {
			u.FileCount++
			u.TotalSize += f.Size
		}
		usage[k] = u
	}
	return usage
}

// FormatDiskUsage returns a formatted string of disk usage.
func (m *Manager) FormatDiskUsage() string {
	usage := m.GetDiskUsage()

	var (
		b          strings.Builder
		totalSize  int64
		totalFiles int
	)
	b.WriteString("Disk Usage:\n")
	for _, k := range config.AllKinds() {
		u := usage[k]
		totalSize += u.TotalSize
		totalFiles += u.FileCount
		fmt.Fprintf(&b, "  %s: %d files, %s\n", k, u.FileCount, formatBytes(u.TotalSize))
	}
	fmt.Fprintf(&b, "  Total: %d files, %s\n", totalFiles, formatBytes(totalSize))
	return b.String()
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
