// Package asset binds typed values to names in a partitioned store.
//
// A Value is a single document at the store root. A Journal is one document
// per calendar date, stored in the date partitions, with nearest-date
// lookups in either direction.
package asset

import (
	"context"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/store"
)

// Option configures a Value or Journal.
type Option func(*options)

type options struct {
	today func() date.Date
}

// WithToday replaces the source of "today" used by Journal.Store.
func WithToday(today func() date.Date) Option {
	return func(o *options) {
		if today != nil {
			o.today = today
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{today: date.Today}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// Value
// =============================================================================

// Value is a single named document at the root of a store.
type Value[T any] struct {
	store store.Store
	name  string
}

// NewValue binds name in s.
func NewValue[T any](s store.Store, name string) *Value[T] {
	return &Value[T]{store: s, name: name}
}

// Name returns the bound document name.
func (v *Value[T]) Name() string { return v.name }

// Exists reports whether the document has been written.
func (v *Value[T]) Exists(ctx context.Context) (bool, error) {
	return v.store.Has(ctx, v.name)
}

// Retrieve reads the document. Returns ErrNotFound if absent.
func (v *Value[T]) Retrieve(ctx context.Context) (T, error) {
	return decode[T](ctx, v.store, v.name)
}

// Store writes the document.
func (v *Value[T]) Store(ctx context.Context, value T) error {
	return v.store.Store(ctx, v.name, value)
}

// Age reports how long ago the document was written.
func (v *Value[T]) Age(ctx context.Context) (time.Duration, error) {
	return v.store.Age(ctx, v.name)
}

// Stale reports whether the document is missing or older than maxAge.
func (v *Value[T]) Stale(ctx context.Context, maxAge time.Duration) (bool, error) {
	age, err := v.store.Age(ctx, v.name)
	if errors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return age > maxAge, nil
}

func decode[T any](ctx context.Context, s store.Store, name string) (T, error) {
	var out T
	doc, err := s.Retrieve(ctx, name)
	if err != nil {
		return out, err
	}
	if err := store.Decode(doc, &out); err != nil {
		return out, errors.Wrapf(err, "asset %s", name)
	}
	return out, nil
}
