package assembly

import (
	"context"

	"github.com/xtxerr/dossier/internal/asset"
	"github.com/xtxerr/dossier/internal/date"
)

// bracket picks the dates within [start, end]. When no snapshot falls
// exactly on start, the latest earlier date is added; likewise the
// earliest later date when none falls on end. dates must be ascending.
func bracket(dates []date.Date, start, end date.Date) []date.Date {
	var (
		out            []date.Date
		before, after  date.Date
		onStart, onEnd bool
	)
	for _, d := range dates {
		switch {
		case d.Before(start):
			before = d
		case d.After(end):
			if after.IsZero() {
				after = d
			}
		default:
			out = append(out, d)
			onStart = onStart || d == start
			onEnd = onEnd || d == end
		}
	}
	if !onStart && !before.IsZero() {
		out = append([]date.Date{before}, out...)
	}
	if !onEnd && !after.IsZero() {
		out = append(out, after)
	}
	return out
}

// selectSnapshots loads the bracketed snapshots of j for [start, end].
func selectSnapshots[T any](ctx context.Context, j *asset.Journal[T], start, end date.Date) (map[date.Date]T, []date.Date, error) {
	dates, err := j.Dates(ctx)
	if err != nil {
		return nil, nil, err
	}
	picked := bracket(dates, start, end)

	out := make(map[date.Date]T, len(picked))
	for _, d := range picked {
		v, err := j.On(ctx, d)
		if err != nil {
			return nil, nil, err
		}
		out[d] = v
	}
	return out, picked, nil
}
