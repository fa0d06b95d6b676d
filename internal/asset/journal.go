package asset

import (
	"context"
	"sort"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/store"
)

// Journal is a named document stored once per calendar date.
//
// Listing dates probes every partition, so a Journal should sit on a
// store.Memo when it is queried repeatedly.
type Journal[T any] struct {
	store store.Store
	name  string
	today func() date.Date
}

// NewJournal binds name in the date partitions of s.
func NewJournal[T any](s store.Store, name string, opts ...Option) *Journal[T] {
	o := buildOptions(opts)
	return &Journal[T]{store: s, name: name, today: o.today}
}

// Name returns the bound document name.
func (j *Journal[T]) Name() string { return j.name }

// Dates lists the partitions holding the document, ascending.
func (j *Journal[T]) Dates(ctx context.Context) ([]date.Date, error) {
	dirs, err := j.store.Dirs(ctx)
	if err != nil {
		return nil, err
	}
	dates := make([]date.Date, 0, len(dirs))
	for _, d := range dirs {
		ok, err := j.store.Sub(d).Has(ctx, j.name)
		if err != nil {
			return nil, err
		}
		if ok {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// Exists reports whether any dated snapshot exists.
func (j *Journal[T]) Exists(ctx context.Context) (bool, error) {
	dates, err := j.Dates(ctx)
	if err != nil {
		return false, err
	}
	return len(dates) > 0, nil
}

// Store writes value into today's partition.
func (j *Journal[T]) Store(ctx context.Context, value T) error {
	return j.StoreOn(ctx, j.today(), value)
}

// StoreOn writes value into the partition for d.
func (j *Journal[T]) StoreOn(ctx context.Context, d date.Date, value T) error {
	if d.IsZero() {
		return errors.Wrapf(errors.ErrInvalidDate, "store %s", j.name)
	}
	return j.store.Sub(d).Store(ctx, j.name, value)
}

// Start returns the earliest snapshot date. Returns ErrNoData if none exist.
func (j *Journal[T]) Start(ctx context.Context) (date.Date, error) {
	dates, err := j.nonEmpty(ctx)
	if err != nil {
		return date.Date{}, err
	}
	return dates[0], nil
}

// End returns the latest snapshot date. Returns ErrNoData if none exist.
func (j *Journal[T]) End(ctx context.Context) (date.Date, error) {
	dates, err := j.nonEmpty(ctx)
	if err != nil {
		return date.Date{}, err
	}
	return dates[len(dates)-1], nil
}

// First returns the earliest snapshot.
func (j *Journal[T]) First(ctx context.Context) (T, error) {
	d, err := j.Start(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return j.On(ctx, d)
}

// Last returns the latest snapshot.
func (j *Journal[T]) Last(ctx context.Context) (T, error) {
	d, err := j.End(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return j.On(ctx, d)
}

// On returns the snapshot stored exactly on d. Returns ErrNotFound if none.
func (j *Journal[T]) On(ctx context.Context, d date.Date) (T, error) {
	return decode[T](ctx, j.store.Sub(d), j.name)
}

// DateBefore resolves d to the latest snapshot date not after it. Dates
// past the last snapshot clamp to it; dates before the first snapshot
// return ErrOutOfRange.
func (j *Journal[T]) DateBefore(ctx context.Context, d date.Date) (date.Date, error) {
	dates, err := j.nonEmpty(ctx)
	if err != nil {
		return date.Date{}, err
	}
	if d.Before(dates[0]) {
		return date.Date{}, errors.NewOutOfRange(j.name, "before", d.String())
	}
	// First index strictly after d; the one before it is the answer.
	i := sort.Search(len(dates), func(i int) bool { return dates[i].After(d) })
	return dates[i-1], nil
}

// DateAfter resolves d to the earliest snapshot date not before it. Dates
// preceding the first snapshot clamp to it; dates after the last snapshot
// return ErrOutOfRange.
func (j *Journal[T]) DateAfter(ctx context.Context, d date.Date) (date.Date, error) {
	dates, err := j.nonEmpty(ctx)
	if err != nil {
		return date.Date{}, err
	}
	if d.After(dates[len(dates)-1]) {
		return date.Date{}, errors.NewOutOfRange(j.name, "after", d.String())
	}
	i := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(d) })
	return dates[i], nil
}

// Before returns the snapshot at DateBefore(d).
func (j *Journal[T]) Before(ctx context.Context, d date.Date) (T, error) {
	at, err := j.DateBefore(ctx, d)
	if err != nil {
		var zero T
		return zero, err
	}
	return j.On(ctx, at)
}

// After returns the snapshot at DateAfter(d).
func (j *Journal[T]) After(ctx context.Context, d date.Date) (T, error) {
	at, err := j.DateAfter(ctx, d)
	if err != nil {
		var zero T
		return zero, err
	}
	return j.On(ctx, at)
}

// Erase deletes the document from every dated partition.
func (j *Journal[T]) Erase(ctx context.Context) error {
	dates, err := j.Dates(ctx)
	if err != nil {
		return err
	}
	for _, d := range dates {
		if err := j.store.Sub(d).Delete(ctx, j.name); err != nil {
			return errors.Wrapf(err, "erase %s on %s", j.name, d)
		}
	}
	return nil
}

func (j *Journal[T]) nonEmpty(ctx context.Context) ([]date.Date, error) {
	dates, err := j.Dates(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, errors.NewNoData(j.name)
	}
	return dates, nil
}
