package store

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/metrics"
)

// Memo decorates a Store with caches for partition listings, name sets and
// modification times. Document contents are never cached.
//
// Writes and deletes through the Memo invalidate the affected entries, and a
// write into a child partition registers that partition with every
// ancestor. Writes that bypass the Memo are not observed.
//
// Memo is safe for concurrent use.
type Memo struct {
	inner    Store
	parent   *Memo
	at       date.Date
	observer metrics.Observer
	now      func() time.Time

	mu       sync.Mutex
	dirs     []date.Date
	dirsOK   bool
	dirsGen  uint64
	names    map[string]struct{}
	namesOK  bool
	namesGen uint64
	modified map[string]time.Time
	ageGen   uint64
	children map[date.Date]*Memo

	// Singleflight to prevent thundering herd on listing misses. Flights
	// are keyed by generation so a call made after a write never joins a
	// listing that started before it.
	group singleflight.Group
}

// MemoOption configures a Memo.
type MemoOption func(*Memo)

// WithObserver reports cache hits and misses.
func WithObserver(o metrics.Observer) MemoOption {
	return func(m *Memo) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock replaces the time source used to turn cached modification
// times back into ages.
func WithClock(now func() time.Time) MemoOption {
	return func(m *Memo) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemo wraps inner with caches.
func NewMemo(inner Store, opts ...MemoOption) *Memo {
	m := &Memo{
		inner:    inner,
		observer: metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Unwrap returns the decorated store.
func (m *Memo) Unwrap() Store {
	return m.inner
}

func (m *Memo) lookup(ctx context.Context, cache string, hit bool) {
	m.observer.OnCacheLookup(ctx, &metrics.CacheLookupEvent{Cache: cache, Hit: hit})
}

// nameSet returns the cached name set. The returned map is never mutated
// after publication; invalidation replaces it.
func (m *Memo) nameSet(ctx context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	if m.namesOK {
		set := m.names
		m.mu.Unlock()
		m.lookup(ctx, "names", true)
		return set, nil
	}
	gen := m.namesGen
	m.mu.Unlock()
	m.lookup(ctx, "names", false)

	v, err, _ := m.group.Do(flightKey("names", gen), func() (any, error) {
		return m.inner.Names(ctx)
	})
	if err != nil {
		return nil, err
	}

	list := v.([]string)
	set := make(map[string]struct{}, len(list))
	for _, name := range list {
		set[name] = struct{}{}
	}

	m.mu.Lock()
	// A write since the listing started makes the result unsafe to cache.
	if m.namesGen == gen {
		m.names = set
		m.namesOK = true
	}
	m.mu.Unlock()
	return set, nil
}

func flightKey(cache string, gen uint64) string {
	return cache + ":" + strconv.FormatUint(gen, 10)
}

func (m *Memo) Has(ctx context.Context, name string) (bool, error) {
	set, err := m.nameSet(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[name]
	return ok, nil
}

func (m *Memo) Names(ctx context.Context) ([]string, error) {
	set, err := m.nameSet(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memo) Dirs(ctx context.Context) ([]date.Date, error) {
	m.mu.Lock()
	if m.dirsOK {
		dirs := slices.Clone(m.dirs)
		m.mu.Unlock()
		m.lookup(ctx, "dirs", true)
		return dirs, nil
	}
	gen := m.dirsGen
	m.mu.Unlock()
	m.lookup(ctx, "dirs", false)

	v, err, _ := m.group.Do(flightKey("dirs", gen), func() (any, error) {
		return m.inner.Dirs(ctx)
	})
	if err != nil {
		return nil, err
	}
	dirs := slices.Clone(v.([]date.Date))

	m.mu.Lock()
	if m.dirsGen == gen {
		m.dirs = slices.Clone(dirs)
		m.dirsOK = true
	}
	m.mu.Unlock()
	return dirs, nil
}

// Sub returns the memoized child partition. Children are created once and
// reused so their caches survive between calls.
func (m *Memo) Sub(d date.Date) Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.children == nil {
		m.children = make(map[date.Date]*Memo)
	}
	if child, ok := m.children[d]; ok {
		return child
	}
	child := &Memo{
		inner:    m.inner.Sub(d),
		parent:   m,
		at:       d,
		observer: m.observer,
		now:      m.now,
	}
	m.children[d] = child
	return child
}

func (m *Memo) Age(ctx context.Context, name string) (time.Duration, error) {
	m.mu.Lock()
	if t, ok := m.modified[name]; ok {
		m.mu.Unlock()
		m.lookup(ctx, "age", true)
		return m.now().Sub(t), nil
	}
	gen := m.ageGen
	m.mu.Unlock()
	m.lookup(ctx, "age", false)

	age, err := m.inner.Age(ctx, name)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.ageGen == gen {
		if m.modified == nil {
			m.modified = make(map[string]time.Time)
		}
		m.modified[name] = m.now().Add(-age)
	}
	m.mu.Unlock()
	return age, nil
}

func (m *Memo) Retrieve(ctx context.Context, name string) (any, error) {
	return m.inner.Retrieve(ctx, name)
}

func (m *Memo) Store(ctx context.Context, name string, value any) error {
	m.invalidate(name)
	err := m.inner.Store(ctx, name, value)
	// Invalidate again so a listing that raced the write is not kept.
	m.invalidate(name)
	if err != nil {
		return err
	}

	for p, at := m.parent, m.at; p != nil; p, at = p.parent, p.at {
		p.notePartition(at)
	}
	return nil
}

func (m *Memo) Delete(ctx context.Context, name string) error {
	m.invalidate(name)
	err := m.inner.Delete(ctx, name)
	m.invalidate(name)
	return err
}

// Invalidate drops every cache held for this partition. Child partitions
// keep theirs.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs, m.dirsOK = nil, false
	m.dirsGen++
	m.names, m.namesOK = nil, false
	m.namesGen++
	m.modified = nil
	m.ageGen++
}

func (m *Memo) invalidate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.names, m.namesOK = nil, false
	m.namesGen++
	delete(m.modified, name)
	m.ageGen++
}

// notePartition adds d to the cached partition list if one is held.
func (m *Memo) notePartition(d date.Date) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirsGen++
	if !m.dirsOK {
		return
	}
	i, found := slices.BinarySearchFunc(m.dirs, d, func(a, b date.Date) int { return a.Compare(b) })
	if !found {
		m.dirs = slices.Insert(m.dirs, i, d)
	}
}

// =============================================================================
// Statistics
// =============================================================================

// CacheStats describes what a Memo currently holds.
type CacheStats struct {
	DirsCached  bool
	NamesCached bool
	Ages        int
	Children    int
}

// Stats returns current cache statistics for this partition.
func (m *Memo) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return CacheStats{
		DirsCached:  m.dirsOK,
		NamesCached: m.namesOK,
		Ages:        len(m.modified),
		Children:    len(m.children),
	}
}

var _ Store = (*Memo)(nil)
