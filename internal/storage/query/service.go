package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/storage/config"
	"github.com/xtxerr/dossier/internal/storage/parquet"
)

// Service provides query capabilities over exported Parquet files.
// It uses an in-memory DuckDB database that reads the newest export of
// each kind.
type Service struct {
	mu sync.RWMutex

	config *config.Config
	db     *sql.DB

	nQueries atomic.Int64
	nRows    atomic.Int64
	nErrors  atomic.Int64
}

// Point is one day of an exported chart.
type Point struct {
	Date      date.Date
	Value     float64
	Detrended float64
}

// ChartQuery selects a date range of one investor chart. Zero dates leave
// the range open.
type ChartQuery struct {
	Investor string
	From     date.Date
	To       date.Date
	Limit    int
}

// New creates a new query service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.Query.MemoryLimit != "" {
		_, err = db.Exec(fmt.Sprintf("SET memory_limit=%s", quote(cfg.Query.MemoryLimit)))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	s := &Service{config: cfg, db: db}
	if err := s.Refresh(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Refresh points the views charts and summaries at the newest export
// files. Kinds without an export have no view.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range config.AllKinds() {
		f, ok, err := parquet.LatestFile(s.config.KindDir(k))
		if err != nil {
			return fmt.Errorf("list %s exports: %w", k, err)
		}
		stmt := fmt.Sprintf("DROP VIEW IF EXISTS %s", k)
		if ok {
			stmt = fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)", k, quote(f.Path))
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("refresh %s view: %w", k, err)
		}
	}
	return nil
}

// Chart returns exported chart points of one investor, oldest first.
func (s *Service) Chart(ctx context.Context, q ChartQuery) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.latest(config.KindCharts)
	if err != nil {
		return nil, err
	}

	from, to := "", "9999-12-31"
	if !q.From.IsZero() {
		from = q.From.String()
	}
	if !q.To.IsZero() {
		to = q.To.String()
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Query.Timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT "date", value, detrended
		FROM read_parquet(%s)
		WHERE investor = ?
		  AND "date" >= ?
		  AND "date" <= ?
		ORDER BY "date"
		LIMIT %d
	`, quote(path), s.limit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, q.Investor, from, to)
	if err != nil {
		s.nErrors.Add(1)
		return nil, fmt.Errorf("query chart: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			p   Point
			day string
		)
		if err := rows.Scan(&day, &p.Value, &p.Detrended); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if p.Date, err = date.Parse(day); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.nQueries.Add(1)
	s.nRows.Add(int64(len(points)))
	return points, nil
}

// Top returns the exported summaries with the highest total return.
func (s *Service) Top(ctx context.Context, limit int) ([]parquet.SummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.latest(config.KindSummaries)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Query.Timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			investor, customer_id, start, "end", days,
			mean, std_dev, min, max, p05, p50, p95,
			up_share, total_return
		FROM read_parquet(%s)
		ORDER BY total_return DESC, investor
		LIMIT %d
	`, quote(path), s.limit(limit))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.nErrors.Add(1)
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var results []parquet.SummaryRow
	for rows.Next() {
		var r parquet.SummaryRow
		err := rows.Scan(
			&r.Investor, &r.CustomerID, &r.Start, &r.End, &r.Days,
			&r.Mean, &r.StdDev, &r.Min, &r.Max, &r.P05, &r.P50, &r.P95,
			&r.UpShare, &r.TotalReturn,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.nQueries.Add(1)
	s.nRows.Add(int64(len(results)))
	return results, nil
}

func (s *Service) latest(k config.Kind) (string, error) {
	f, ok, err := parquet.LatestFile(s.config.KindDir(k))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.NewNoData(k.String() + " export")
	}
	return f.Path, nil
}

func (s *Service) limit(n int) int {
	if n <= 0 || n > s.config.Query.MaxRows {
		return s.config.Query.MaxRows
	}
	return n
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		QueriesExecuted: s.nQueries.Load(),
		RowsReturned:    s.nRows.Load(),
		Errors:          s.nErrors.Load(),
	}
}

// ExecuteSQL executes a raw SQL query using DuckDB. The views charts and
// summaries are available. At most Query.MaxRows rows are returned.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.Query.Timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.nErrors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() && len(results) < s.config.Query.MaxRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.nQueries.Add(1)
	s.nRows.Add(int64(len(results)))

	return results, rows.Err()
}
