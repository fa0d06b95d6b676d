package assembly

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/aggregate"
	"github.com/xtxerr/dossier/internal/asset"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/metrics"
	"github.com/xtxerr/dossier/internal/series"
	"github.com/xtxerr/dossier/internal/store"
	"github.com/xtxerr/dossier/internal/validation"
)

const tracerName = "github.com/xtxerr/dossier/internal/assembly"

// Assembly compiles investor records from a store.
//
// Compile calls for the same investor are serialized by a per-investor
// mutex that is held from before the cache check until the call returns,
// so concurrent callers after the first see the freshly written record.
type Assembly struct {
	store    store.Store
	sentinel float64
	workers  int
	today    func() date.Date

	observer metrics.Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Assembly.
type Option func(*Assembly)

// WithSentinel sets the stopped-tracking chart value.
func WithSentinel(v float64) Option {
	return func(a *Assembly) { a.sentinel = v }
}

// WithWorkers bounds the parallelism of CompileAll.
func WithWorkers(n int) Option {
	return func(a *Assembly) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithObserver sets the compile event observer.
func WithObserver(o metrics.Observer) Option {
	return func(a *Assembly) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembly) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer. The default is the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembly) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithToday sets the date raw snapshots written through the journals
// returned by Chart, Mirrors and Stats are filed under.
func WithToday(today func() date.Date) Option {
	return func(a *Assembly) {
		if today != nil {
			a.today = today
		}
	}
}

// New creates an Assembly over s. s is typically a *store.Memo.
func New(s store.Store, opts ...Option) *Assembly {
	a := &Assembly{
		store:    s,
		sentinel: config.DefaultStoppedSentinel,
		workers:  config.DefaultCompileWorkers,
		today:    date.Today,
		observer: metrics.Nop{},
		logger:   logging.Component("assembly"),
		tracer:   otel.Tracer(tracerName),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying store.
func (a *Assembly) Store() store.Store { return a.store }

// Chart returns the raw chart journal of investor.
func (a *Assembly) Chart(investor string) *asset.Journal[*series.Chart] {
	return asset.NewJournal[*series.Chart](a.store, AssetName(investor, KindChart), asset.WithToday(a.today))
}

// Mirrors returns the raw mirrors journal of investor.
func (a *Assembly) Mirrors(investor string) *asset.Journal[[]Mirror] {
	return asset.NewJournal[[]Mirror](a.store, AssetName(investor, KindMirrors), asset.WithToday(a.today))
}

// Stats returns the raw statistics journal of investor.
func (a *Assembly) Stats(investor string) *asset.Journal[Stats] {
	return asset.NewJournal[Stats](a.store, AssetName(investor, KindStats), asset.WithToday(a.today))
}

// Compiled returns the compiled record journal of investor.
func (a *Assembly) Compiled(investor string) *asset.Journal[*Investor] {
	return asset.NewJournal[*Investor](a.store, AssetName(investor, KindCompiled), asset.WithToday(a.today))
}

// Directory returns the investor directory.
func (a *Assembly) Directory() *asset.Value[Directory] {
	return asset.NewValue[Directory](a.store, config.DirectoryAssetName)
}

// lock returns the mutex of investor, creating it on first use. Entries
// are never removed.
func (a *Assembly) lock(investor string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()

	mu, ok := a.locks[investor]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[investor] = mu
	}
	return mu
}

// Compile returns the compiled record of investor, recompiling it when the
// cached copy is missing, older than the newest raw snapshot, or invalid.
//
// ErrNoData is returned when the investor has no chart. A freshly compiled
// record that fails validation yields ErrValidationFailed and is not
// persisted.
func (a *Assembly) Compile(ctx context.Context, investor string) (*Investor, error) {
	if err := validation.ValidateInvestor(investor); err != nil {
		return nil, err
	}

	began := time.Now()
	ctx = logging.ContextWithInvestor(ctx, investor)
	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	ctx, span := a.tracer.Start(ctx, "assembly.Compile",
		trace.WithAttributes(attribute.String("investor", investor)))
	defer span.End()

	mu := a.lock(investor)
	mu.Lock()
	defer mu.Unlock()

	rec, outcome, err := a.compile(ctx, investor)
	if err != nil {
		outcome = metrics.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))

	a.observer.OnCompile(ctx, &metrics.CompileEvent{
		Investor: investor,
		Outcome:  outcome,
		Duration: time.Since(began),
		Error:    err,
	})
	return rec, err
}

func (a *Assembly) compile(ctx context.Context, investor string) (*Investor, string, error) {
	log := logging.FromContext(ctx, a.logger)

	chart, mirrors, stats, compiled := a.Chart(investor), a.Mirrors(investor), a.Stats(investor), a.Compiled(investor)

	end, err := latestEnd(ctx, chart, mirrors, stats)
	if err != nil {
		return nil, "", err
	}

	outcome := metrics.OutcomeCompiled
	cachedEnd, err := compiled.End(ctx)
	switch {
	case errors.Is(err, errors.ErrNoData):
	case err != nil:
		return nil, "", err
	case cachedEnd.Before(end):
		log.Debug("compiled record stale", "cached", cachedEnd, "end", end)
		if err := compiled.Erase(ctx); err != nil {
			return nil, "", err
		}
		outcome = metrics.OutcomeStale
	default:
		rec, err := compiled.On(ctx, cachedEnd)
		reason := ""
		if err != nil {
			reason = err.Error()
		} else if inv, ok := Validate(rec).(Invalid); ok {
			reason = inv.Reason
		} else {
			return rec, metrics.OutcomeHit, nil
		}
		log.Warn("compiled record invalid, recompiling", "date", cachedEnd, "reason", reason)
		if err := compiled.Erase(ctx); err != nil {
			return nil, "", err
		}
		outcome = metrics.OutcomeInvalid
	}

	rec, err := a.build(ctx, investor, chart, mirrors, stats)
	if err != nil {
		return nil, outcome, err
	}
	if inv, ok := Validate(rec).(Invalid); ok {
		return nil, outcome, errors.NewValidationFailed(investor, inv.Reason)
	}
	if err := compiled.StoreOn(ctx, end, rec); err != nil {
		return nil, outcome, err
	}

	log.Info("compiled record written",
		"end", end,
		"chart_start", rec.Chart.Start(),
		"chart_end", rec.Chart.End,
		"stats", len(rec.Stats),
		"mirrors", len(rec.Mirrors))
	return rec, outcome, nil
}

type datedAsset interface {
	End(ctx context.Context) (date.Date, error)
}

// latestEnd is the newest snapshot date across the raw journals. Journals
// without data are skipped; a missing chart is ErrNoData.
func latestEnd(ctx context.Context, chart datedAsset, others ...datedAsset) (date.Date, error) {
	end, err := chart.End(ctx)
	if err != nil {
		return date.Date{}, err
	}
	for _, j := range others {
		d, err := j.End(ctx)
		if errors.Is(err, errors.ErrNoData) {
			continue
		}
		if err != nil {
			return date.Date{}, err
		}
		end = date.Max(end, d)
	}
	return end, nil
}

func (a *Assembly) build(
	ctx context.Context,
	investor string,
	chart *asset.Journal[*series.Chart],
	mirrors *asset.Journal[[]Mirror],
	stats *asset.Journal[Stats],
) (*Investor, error) {
	dates, err := chart.Dates(ctx)
	if err != nil {
		return nil, err
	}
	fragments := make([]*series.Chart, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		c, err := chart.On(ctx, dates[i])
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, errors.NewValidationFailed(investor, "null chart snapshot on "+dates[i].String())
		}
		fragments = append(fragments, c)
	}

	stitched, err := series.Stitch(fragments, a.sentinel)
	if err != nil {
		return nil, errors.Wrapf(err, "stitch %s", investor)
	}
	detrended, err := series.Detrend(stitched.Values)
	if err != nil {
		return nil, errors.Wrapf(err, "detrend %s", investor)
	}

	rec := &Investor{
		Name:      investor,
		Chart:     stitched,
		Detrended: detrended,
		Summary:   aggregate.Summarize(stitched),
	}
	if stitched.Len() == 0 {
		return rec, nil
	}

	var picked []date.Date
	rec.Stats, picked, err = selectSnapshots(ctx, stats, stitched.Start(), stitched.End)
	if err != nil {
		return nil, err
	}
	if n := len(picked); n > 0 {
		latest := rec.Stats[picked[n-1]]
		rec.CustomerID = latest.CustomerID
		rec.FullName = latest.FullName
	}

	rec.Mirrors, _, err = selectSnapshots(ctx, mirrors, stitched.Start(), stitched.End)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Invalidate erases the compiled record of investor. The next Compile
// rebuilds it.
func (a *Assembly) Invalidate(ctx context.Context, investor string) error {
	if err := validation.ValidateInvestor(investor); err != nil {
		return err
	}

	mu := a.lock(investor)
	mu.Lock()
	defer mu.Unlock()

	if err := a.Compiled(investor).Erase(ctx); err != nil {
		return err
	}
	logging.FromContext(logging.ContextWithInvestor(ctx, investor), a.logger).
		Info("compiled record invalidated")
	return nil
}

// CompileResult is the outcome of one investor in CompileAll.
type CompileResult struct {
	Investor string
	Record   *Investor
	Err      error
}

// CompileAll compiles investors with bounded parallelism. Per-investor
// failures are reported in the results; the returned error is non-nil only
// when ctx is cancelled.
func (a *Assembly) CompileAll(ctx context.Context, investors []string) ([]CompileResult, error) {
	results := make([]CompileResult, len(investors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, investor := range investors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.Compile(gctx, investor)
			results[i] = CompileResult{Investor: investor, Record: rec, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Err == nil:
		case errors.IsExpected(r.Err):
			a.logger.Debug("investor skipped", "investor", r.Investor, "reason", r.Err)
		default:
			failed++
			a.logger.Error("compile failed", "investor", r.Investor, "error", r.Err)
		}
	}
	a.logger.Info("compile run finished", "investors", len(investors), "failed", failed)
	return results, ctx.Err()
}
