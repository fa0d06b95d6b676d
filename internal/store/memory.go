package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/dossier/internal/date"
)

// Memory is an in-process Store. All partitions of one tree share a lock.
type Memory struct {
	shared *memShared
	path   []date.Date
}

type memShared struct {
	mu   sync.RWMutex
	root *memNode
	now  func() time.Time
}

type memNode struct {
	docs     map[string]memDoc
	children map[date.Date]*memNode
}

type memDoc struct {
	value    any
	modified time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{shared: &memShared{root: newMemNode(), now: time.Now}}
}

func newMemNode() *memNode {
	return &memNode{
		docs:     make(map[string]memDoc),
		children: make(map[date.Date]*memNode),
	}
}

// node walks to this partition. Caller holds the lock; create requires
// the write lock.
func (m *Memory) node(create bool) *memNode {
	n := m.shared.root
	for _, d := range m.path {
		child, ok := n.children[d]
		if !ok {
			if !create {
				return nil
			}
			child = newMemNode()
			n.children[d] = child
		}
		n = child
	}
	return n
}

func (m *Memory) pathString() string {
	var p string
	for _, d := range m.path {
		p = joinPath(p, d)
	}
	return p
}

func (m *Memory) Has(ctx context.Context, name string) (bool, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()

	n := m.node(false)
	if n == nil {
		return false, nil
	}
	_, ok := n.docs[name]
	return ok, nil
}

func (m *Memory) Store(ctx context.Context, name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	doc, err := Normalize(value)
	if err != nil {
		return err
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	m.node(true).docs[name] = memDoc{value: doc, modified: m.shared.now()}
	return nil
}

func (m *Memory) Retrieve(ctx context.Context, name string) (any, error) {
	m.shared.mu.RLock()
	n := m.node(false)
	var (
		doc memDoc
		ok  bool
	)
	if n != nil {
		doc, ok = n.docs[name]
	}
	m.shared.mu.RUnlock()

	if !ok {
		return nil, notFound(m.pathString(), name)
	}
	// Hand out a private copy so callers cannot mutate the stored document.
	return Normalize(doc.value)
}

func (m *Memory) Names(ctx context.Context) ([]string, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()

	n := m.node(false)
	if n == nil {
		return []string{}, nil
	}
	names := make([]string, 0, len(n.docs))
	for name := range n.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Dirs(ctx context.Context) ([]date.Date, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()

	n := m.node(false)
	if n == nil {
		return []date.Date{}, nil
	}
	dirs := make([]date.Date, 0, len(n.children))
	for d := range n.children {
		dirs = append(dirs, d)
	}
	date.Sort(dirs)
	return dirs, nil
}

func (m *Memory) Sub(d date.Date) Store {
	path := make([]date.Date, len(m.path), len(m.path)+1)
	copy(path, m.path)
	return &Memory{shared: m.shared, path: append(path, d)}
}

func (m *Memory) Age(ctx context.Context, name string) (time.Duration, error) {
	m.shared.mu.RLock()
	n := m.node(false)
	var (
		doc memDoc
		ok  bool
	)
	if n != nil {
		doc, ok = n.docs[name]
	}
	now := m.shared.now()
	m.shared.mu.RUnlock()

	if !ok {
		return 0, notFound(m.pathString(), name)
	}
	return now.Sub(doc.modified), nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	if n := m.node(false); n != nil {
		delete(n.docs, name)
	}
	return nil
}

// SetClock replaces the time source used for modification times.
func (m *Memory) SetClock(now func() time.Time) {
	m.shared.mu.Lock()
	m.shared.now = now
	m.shared.mu.Unlock()
}

var _ Store = (*Memory)(nil)
