package testing

import (
	"context"
	"sync"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/store"
)

// CountingStore wraps a store.Store and counts calls per operation across
// all of its partitions. When a gate is installed, listing calls block
// until it is released, which lets tests pile up concurrent misses.
type CountingStore struct {
	inner  store.Store
	shared *counts
}

type counts struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{}
}

// NewCountingStore wraps inner.
func NewCountingStore(inner store.Store) *CountingStore {
	return &CountingStore{inner: inner, shared: &counts{calls: make(map[string]int)}}
}

// Calls returns how often op was invoked.
func (s *CountingStore) Calls(op string) int {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	return s.shared.calls[op]
}

// Reset zeroes all counters.
func (s *CountingStore) Reset() {
	s.shared.mu.Lock()
	s.shared.calls = make(map[string]int)
	s.shared.mu.Unlock()
}

// Hold makes Names and Dirs block until the returned release is called.
func (s *CountingStore) Hold() (release func()) {
	gate := make(chan struct{})
	s.shared.mu.Lock()
	s.shared.gate = gate
	s.shared.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.shared.mu.Lock()
			s.shared.gate = nil
			s.shared.mu.Unlock()
			close(gate)
		})
	}
}

func (s *CountingStore) count(op string) chan struct{} {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.calls[op]++
	return s.shared.gate
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CountingStore) Has(ctx context.Context, name string) (bool, error) {
	s.count("has")
	return s.inner.Has(ctx, name)
}

func (s *CountingStore) Store(ctx context.Context, name string, value any) error {
	s.count("store")
	return s.inner.Store(ctx, name, value)
}

func (s *CountingStore) Retrieve(ctx context.Context, name string) (any, error) {
	s.count("retrieve")
	return s.inner.Retrieve(ctx, name)
}

func (s *CountingStore) Names(ctx context.Context) ([]string, error) {
	if err := wait(ctx, s.count("names")); err != nil {
		return nil, err
	}
	return s.inner.Names(ctx)
}

func (s *CountingStore) Dirs(ctx context.Context) ([]date.Date, error) {
	if err := wait(ctx, s.count("dirs")); err != nil {
		return nil, err
	}
	return s.inner.Dirs(ctx)
}

func (s *CountingStore) Sub(d date.Date) store.Store {
	return &CountingStore{inner: s.inner.Sub(d), shared: s.shared}
}

func (s *CountingStore) Age(ctx context.Context, name string) (time.Duration, error) {
	s.count("age")
	return s.inner.Age(ctx, name)
}

func (s *CountingStore) Delete(ctx context.Context, name string) error {
	s.count("delete")
	return s.inner.Delete(ctx, name)
}

var _ store.Store = (*CountingStore)(nil)
