package metrics

import (
	"context"
	"log/slog"
)

// SlogObserver emits events as structured log records.
//
// Example:
//
//	observer := metrics.NewSlogObserver(logging.Component("metrics"), slog.LevelInfo)
type SlogObserver struct {
	logger   *slog.Logger
	minLevel slog.Level
}

// NewSlogObserver creates an observer that logs to the given slog.Logger.
// Only events at or above minLevel are logged; cache lookups log at debug.
func NewSlogObserver(logger *slog.Logger, minLevel slog.Level) *SlogObserver {
	return &SlogObserver{
		logger:   logger,
		minLevel: minLevel,
	}
}

func (o *SlogObserver) OnCacheLookup(ctx context.Context, event *CacheLookupEvent) {
	if o.minLevel <= slog.LevelDebug {
		o.logger.DebugContext(ctx, "store cache lookup",
			slog.String("cache", event.Cache),
			slog.Bool("hit", event.Hit),
		)
	}
}

func (o *SlogObserver) OnCompile(ctx context.Context, event *CompileEvent) {
	if event.Error != nil {
		if o.minLevel <= slog.LevelError {
			o.logger.ErrorContext(ctx, "compile failed",
				slog.String("investor", event.Investor),
				slog.Duration("duration", event.Duration),
				slog.String("error", event.Error.Error()),
			)
		}
		return
	}
	if o.minLevel <= slog.LevelInfo {
		o.logger.InfoContext(ctx, "compile finished",
			slog.String("investor", event.Investor),
			slog.String("outcome", event.Outcome),
			slog.Duration("duration", event.Duration),
		)
	}
}

var _ Observer = (*SlogObserver)(nil)
