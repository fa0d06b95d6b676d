package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	dconfig "github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/parquet"
	"github.com/xtxerr/dossier/internal/storage/query"
	"github.com/xtxerr/dossier/internal/storage/retention"
)

// Service is the export storage service that orchestrates all components.
type Service struct {
	mu sync.Mutex

	config *config.Config
	logger *slog.Logger

	query     *query.Service
	retention *retention.Manager

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startTime  time.Time
	lastExport ExportResult
}

// ExportResult describes one export run.
type ExportResult struct {
	Date        date.Date
	ChartsPath  string
	SummaryPath string
	Investors   int
	ChartRows   int64
	SummaryRows int64
	Duration    time.Duration
}

// New creates a new storage service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	qry, err := query.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:    cfg,
		logger:    logging.Component("storage"),
		query:     qry,
		retention: retention.New(cfg),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start starts the daily retention worker.
func (s *Service) Start() error {
	if s.running.Swap(true) {
		return fmt.Errorf("service already running")
	}
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.retentionWorker()
	return nil
}

// Close stops the background worker and releases the query engine.
func (s *Service) Close() error {
	s.running.Store(false)
	s.cancel()
	s.wg.Wait()

	if err := s.query.Close(); err != nil {
		return fmt.Errorf("close query: %w", err)
	}
	return nil
}

// Export writes the charts and summaries of recs as the export for day d,
// replacing an earlier export of the same day, and refreshes the query
// views.
func (s *Service) Export(ctx context.Context, d date.Date, recs []*assembly.Investor) (ExportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	began := time.Now()
	result := ExportResult{
		Date:        d,
		ChartsPath:  filepath.Join(s.config.KindDir(config.KindCharts), parquet.FileName(d)),
		SummaryPath: filepath.Join(s.config.KindDir(config.KindSummaries), parquet.FileName(d)),
	}

	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(s.config.Compression.Algorithm)

	charts, err := parquet.NewWriter[parquet.ChartRow](result.ChartsPath, opts)
	if err != nil {
		return result, err
	}
	summaries, err := parquet.NewWriter[parquet.SummaryRow](result.SummaryPath, opts)
	if err != nil {
		charts.Abort()
		return result, err
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			charts.Abort()
			summaries.Abort()
			return result, err
		}
		if rec == nil {
			continue
		}
		result.Investors++

		if err := charts.Write(parquet.ChartRows(rec)); err != nil {
			charts.Abort()
			summaries.Abort()
			return result, fmt.Errorf("export chart of %s: %w", rec.Name, err)
		}
		if row, ok := parquet.SummaryRowOf(rec); ok {
			if err := summaries.Write([]parquet.SummaryRow{row}); err != nil {
				charts.Abort()
				summaries.Abort()
				return result, fmt.Errorf("export summary of %s: %w", rec.Name, err)
			}
		}
	}

	result.ChartRows, result.SummaryRows = charts.RowCount(), summaries.RowCount()
	if err := charts.Close(); err != nil {
		summaries.Abort()
		return result, err
	}
	if err := summaries.Close(); err != nil {
		return result, err
	}
	if err := s.query.Refresh(ctx); err != nil {
		return result, err
	}

	result.Duration = time.Since(began)
	s.lastExport = result
	s.logger.Info("export written",
		"date", d,
		"investors", result.Investors,
		"chart_rows", result.ChartRows,
		"summary_rows", result.SummaryRows,
		"duration", result.Duration)
	return result, nil
}

// Query returns the query service.
func (s *Service) Query() *query.Service {
	return s.query
}

// retentionWorker runs retention cleanup daily.
func (s *Service) retentionWorker() {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), dconfig.DefaultRetentionHour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			s.RunRetention()
		}
	}
}

// RunRetention triggers retention cleanup and refreshes the query views.
func (s *Service) RunRetention() []retention.CleanupResult {
	results := s.retention.RunCleanup()
	for _, r := range results {
		for _, err := range r.Errors {
			s.logger.Warn("retention error", "kind", r.Kind, "error", err)
		}
		if r.FilesDeleted > 0 {
			s.logger.Info("retention removed exports", "kind", r.Kind, "files", r.FilesDeleted, "bytes", r.BytesFreed)
		}
	}
	if err := s.query.Refresh(s.ctx); err != nil {
		s.logger.Warn("refresh query views", "error", err)
	}
	return results
}

// DryRunRetention simulates retention cleanup.
func (s *Service) DryRunRetention() []retention.CleanupResult {
	return s.retention.DryRun()
}

// GetDiskUsage returns disk usage per kind.
func (s *Service) GetDiskUsage() map[config.Kind]retention.DiskUsage {
	return s.retention.GetDiskUsage()
}

// FormatDiskUsage returns a formatted disk usage report.
func (s *Service) FormatDiskUsage() string {
	return s.retention.FormatDiskUsage()
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running    bool
	Uptime     time.Duration
	LastExport ExportResult
	Query      query.ServiceStats
	Retention  retention.ManagerStats
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uptime time.Duration
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	return ServiceStats{
		Running:    s.running.Load(),
		Uptime:     uptime,
		LastExport: s.lastExport,
		Query:      s.query.Stats(),
		Retention:  s.retention.Stats(),
	}
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// IsRunning returns whether the retention worker is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
