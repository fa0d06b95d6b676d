package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/store"
	testutil "github.com/xtxerr/dossier/internal/testing"
)

func newMemo(t *testing.T) (*store.Memo, *testutil.CountingStore) {
	t.Helper()
	counting := testutil.NewCountingStore(store.NewMemory())
	return store.NewMemo(counting), counting
}

func TestMemoCachesNames(t *testing.T) {
	ctx := context.Background()
	m, counting := newMemo(t)

	if err := m.Store(ctx, "alice.chart", 1); err != nil {
		t.Fatal(err)
	}
	counting.Reset()

	for i := 0; i < 5; i++ {
		ok, err := m.Has(ctx, "alice.chart")
		if err != nil || !ok {
			t.Fatalf("Has = %v, %v", ok, err)
		}
	}
	if n := counting.Calls("names"); n != 1 {
		t.Errorf("inner Names called %d times, want 1", n)
	}
	if n := counting.Calls("has"); n != 0 {
		t.Errorf("inner Has called %d times, want 0", n)
	}

	// A write invalidates the cached set.
	if err := m.Store(ctx, "bob.chart", 1); err != nil {
		t.Fatal(err)
	}
	names, err := m.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alice.chart" || names[1] != "bob.chart" {
		t.Errorf("Names = %v", names)
	}
	if n := counting.Calls("names"); n != 2 {
		t.Errorf("inner Names called %d times after write, want 2", n)
	}

	if err := m.Delete(ctx, "alice.chart"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.Has(ctx, "alice.chart"); ok {
		t.Error("Has true after Delete")
	}
}

func TestMemoChildWriteRegistersPartition(t *testing.T) {
	ctx := context.Background()
	m, counting := newMemo(t)
	d1 := date.MustParse("2024-01-01")
	d2 := date.MustParse("2024-01-05")

	if err := m.Sub(d1).Store(ctx, "alice.chart", 1); err != nil {
		t.Fatal(err)
	}
	dirs, err := m.Dirs(ctx)
	if err != nil || len(dirs) != 1 {
		t.Fatalf("Dirs = %v, %v", dirs, err)
	}
	counting.Reset()

	if err := m.Sub(d2).Sub(d1).Store(ctx, "nested", 1); err != nil {
		t.Fatal(err)
	}
	dirs, err = m.Dirs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 2 || dirs[0] != d1 || dirs[1] != d2 {
		t.Errorf("Dirs = %v, want [%s %s]", dirs, d1, d2)
	}
	if n := counting.Calls("dirs"); n != 0 {
		t.Errorf("inner Dirs called %d times, want cached answer", n)
	}

	if m.Sub(d1) != m.Sub(d1) {
		t.Error("Sub should return the same memoized child")
	}
}

func TestMemoAge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	mem := store.NewMemory()
	mem.SetClock(clock)
	counting := testutil.NewCountingStore(mem)
	m := store.NewMemo(counting, store.WithClock(clock))

	if err := m.Store(ctx, "investors", []string{"alice"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Hour)

	for i := 0; i < 3; i++ {
		age, err := m.Age(ctx, "investors")
		if err != nil {
			t.Fatal(err)
		}
		if age != time.Hour {
			t.Errorf("Age = %v, want 1h", age)
		}
	}
	if n := counting.Calls("age"); n != 1 {
		t.Errorf("inner Age called %d times, want 1", n)
	}

	// Cached modification times keep ageing with the clock.
	now = now.Add(time.Hour)
	if age, _ := m.Age(ctx, "investors"); age != 2*time.Hour {
		t.Errorf("Age = %v, want 2h", age)
	}

	if err := m.Store(ctx, "investors", []string{"alice", "bob"}); err != nil {
		t.Fatal(err)
	}
	if age, _ := m.Age(ctx, "investors"); age != 0 {
		t.Errorf("Age after rewrite = %v, want 0", age)
	}
}

func TestMemoRetrieveIsNotCached(t *testing.T) {
	ctx := context.Background()
	m, counting := newMemo(t)

	m.Store(ctx, "doc", 1)
	m.Retrieve(ctx, "doc")
	m.Retrieve(ctx, "doc")
	if n := counting.Calls("retrieve"); n != 2 {
		t.Errorf("inner Retrieve called %d times, want 2", n)
	}
}

func TestMemoSingleflight(t *testing.T) {
	ctx := context.Background()
	m, counting := newMemo(t)
	if err := m.Store(ctx, "alice.chart", 1); err != nil {
		t.Fatal(err)
	}
	counting.Reset()

	release := counting.Hold()
	gt := testutil.NewGoroutineTest(t)
	for i := 0; i < 8; i++ {
		gt.GoWithContext(func(ctx context.Context) error {
			_, err := m.Names(ctx)
			return err
		})
	}

	// Wait until the first listing is parked on the gate before releasing.
	if err := testutil.Eventually(5*time.Second, time.Millisecond, func() bool {
		return counting.Calls("names") >= 1
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	release()
	gt.Wait()

	if n := counting.Calls("names"); n != 1 {
		t.Errorf("inner Names called %d times, want 1", n)
	}
	if s := m.Stats(); !s.NamesCached {
		t.Errorf("Stats = %+v, want names cached", s)
	}
}

func TestMemoInvalidate(t *testing.T) {
	ctx := context.Background()
	m, counting := newMemo(t)
	m.Sub(date.MustParse("2024-01-01")).Store(ctx, "x", 1)
	m.Dirs(ctx)
	m.Names(ctx)

	m.Invalidate()
	if s := m.Stats(); s.DirsCached || s.NamesCached {
		t.Errorf("Stats after Invalidate = %+v", s)
	}
	counting.Reset()
	m.Dirs(ctx)
	if counting.Calls("dirs") != 1 {
		t.Error("Dirs after Invalidate should hit the inner store")
	}
}

// A listing requested after a write has returned must not share a flight
// that started before the write.
func TestMemoWriteVisibleDuringListing(t *testing.T) {
	day := date.MustParse("2024-01-02")

	tests := []struct {
		name  string
		write func(ctx context.Context, m *store.Memo) error
		check func(ctx context.Context, m *store.Memo) error
		op    string
	}{
		{
			name:  "names",
			write: func(ctx context.Context, m *store.Memo) error { return m.Store(ctx, "x", 1) },
			check: func(ctx context.Context, m *store.Memo) error {
				ok, err := m.Has(ctx, "x")
				if err == nil && !ok {
					err = fmt.Errorf("Has(x) = false after Store returned")
				}
				return err
			},
			op: "names",
		},
		{
			name:  "dirs",
			write: func(ctx context.Context, m *store.Memo) error { return m.Sub(day).Store(ctx, "x", 1) },
			check: func(ctx context.Context, m *store.Memo) error {
				dirs, err := m.Dirs(ctx)
				if err == nil && (len(dirs) != 1 || dirs[0] != day) {
					err = fmt.Errorf("Dirs = %v after Store returned", dirs)
				}
				return err
			},
			op: "dirs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, counting := newMemo(t)

			release := counting.Hold()
			defer release()

			gt := testutil.NewGoroutineTestWithTimeout(t, 5*time.Second)
			gt.GoWithContext(func(ctx context.Context) error {
				// Races the write; either answer is fine.
				if tt.op == "dirs" {
					_, err := m.Dirs(ctx)
					return err
				}
				_, err := m.Names(ctx)
				return err
			})
			if err := testutil.Eventually(2*time.Second, time.Millisecond, func() bool {
				return counting.Calls(tt.op) >= 1
			}); err != nil {
				t.Fatal(err)
			}

			if err := tt.write(ctx, m); err != nil {
				t.Fatal(err)
			}
			gt.GoWithContext(func(ctx context.Context) error { return tt.check(ctx, m) })

			// The second listing must reach the inner store on its own.
			joined := testutil.Eventually(2*time.Second, time.Millisecond, func() bool {
				return counting.Calls(tt.op) >= 2
			})
			release()
			gt.Wait()
			if joined != nil {
				t.Errorf("listing after the write joined the earlier flight")
			}
		})
	}
}
