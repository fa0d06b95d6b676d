package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/storage"
)

// Exporter writes the compiled records of one refresh.
type Exporter interface {
	Export(ctx context.Context, d date.Date, recs []*assembly.Investor) (storage.ExportResult, error)
}

// Manager refreshes every investor listed in the directory.
type Manager struct {
	assembly *assembly.Assembly
	exporter Exporter
	states   *StateManager
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// running serializes refreshes.
	running sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithExporter exports the compiled records after every refresh.
func WithExporter(e Exporter) Option {
	return func(m *Manager) { m.exporter = e }
}

// WithDirectoryMaxAge sets the age past which the directory is reported stale.
func WithDirectoryMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithClock replaces the time source for state timestamps and export dates.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager over a.
func New(a *assembly.Assembly, opts ...Option) *Manager {
	m := &Manager{
		assembly: a,
		states:   NewStateManager(),
		maxAge:   config.DefaultDirectoryMaxAge,
		now:      time.Now,
		logger:   logging.Component("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// States returns the per-investor refresh states.
func (m *Manager) States() *StateManager { return m.states }

// RefreshResult summarizes one refresh.
type RefreshResult struct {
	Investors      int
	Compiled       int
	Skipped        int
	Failed         int
	DirectoryStale bool
	Records        []*assembly.Investor
	Export         *storage.ExportResult
	Duration       time.Duration
}

// Refresh compiles every listed investor, records the outcome per investor
// and exports the compiled records. A missing directory is reported as
// ErrNotFound. Concurrent calls run one after the other.
func (m *Manager) Refresh(ctx context.Context) (*RefreshResult, error) {
	m.running.Lock()
	defer m.running.Unlock()

	began := m.now()
	result := &RefreshResult{}

	dir := m.assembly.Directory()
	stale, err := dir.Stale(ctx, m.maxAge)
	if err != nil {
		return nil, fmt.Errorf("investor directory age: %w", err)
	}
	listing, err := dir.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("investor directory: %w", err)
	}
	if stale {
		result.DirectoryStale = true
		m.logger.Warn("investor directory stale", "updated", listing.Updated, "max_age", m.maxAge)
	}

	names := listing.Names()
	result.Investors = len(names)
	if dropped := m.states.Retain(names); dropped > 0 {
		m.logger.Info("dropped unlisted investors", "count", dropped)
	}

	results, err := m.assembly.CompileAll(ctx, names)
	if err != nil {
		return nil, err
	}

	now := m.now()
	for _, r := range results {
		state := m.states.Get(r.Investor)
		switch {
		case r.Err == nil:
			result.Compiled++
			result.Records = append(result.Records, r.Record)
			state.RecordSuccess(now)
		case errors.IsExpected(r.Err):
			result.Skipped++
			state.RecordSkipped(now, r.Err.Error())
		default:
			result.Failed++
			state.RecordFailure(now, r.Err.Error())
		}
	}

	if m.exporter != nil {
		export, err := m.exporter.Export(ctx, date.Of(now), result.Records)
		if err != nil {
			return result, fmt.Errorf("export: %w", err)
		}
		result.Export = &export
	}

	result.Duration = m.now().Sub(began)
	m.logger.Info("refresh finished",
		"investors", result.Investors,
		"compiled", result.Compiled,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}
