package store

import (
	"context"
	"fmt"
	"io"

	"github.com/xtxerr/dossier/internal/wire"
)

// DumpStats counts what a dump or restore touched.
type DumpStats struct {
	Documents  int
	Partitions int
}

// Dump writes every document in s, depth first, to w.
func Dump(ctx context.Context, s Store, w io.Writer) (DumpStats, error) {
	ww := wire.NewWriter(w)
	if err := ww.WriteHeader(); err != nil {
		return DumpStats{}, err
	}
	var stats DumpStats
	err := dumpPartition(ctx, s, "", ww, &stats)
	return stats, err
}

func dumpPartition(ctx context.Context, s Store, path string, w *wire.Writer, stats *DumpStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := s.Names(ctx)
	if err != nil {
		return fmt.Errorf("dump %q: %w", path, err)
	}
	for _, name := range names {
		value, err := s.Retrieve(ctx, name)
		if err != nil {
			return fmt.Errorf("dump %q/%s: %w", path, name, err)
		}
		if err := w.Write(&wire.Entry{Path: path, Name: name, Value: value}); err != nil {
			return err
		}
		stats.Documents++
	}

	dirs, err := s.Dirs(ctx)
	if err != nil {
		return fmt.Errorf("dump %q: %w", path, err)
	}
	for _, d := range dirs {
		stats.Partitions++
		if err := dumpPartition(ctx, s.Sub(d), joinPath(path, d), w, stats); err != nil {
			return err
		}
	}
	return nil
}

// Restore reads a dump from r and writes every document into s.
// Modification times are not preserved; restored documents are new.
func Restore(ctx context.Context, s Store, r io.Reader) (DumpStats, error) {
	rr := wire.NewReader(r)
	if err := rr.ReadHeader(); err != nil {
		return DumpStats{}, err
	}

	var stats DumpStats
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		e, err := rr.Read()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		target, err := Resolve(s, e.Path)
		if err != nil {
			return stats, err
		}
		if err := target.Store(ctx, e.Name, e.Value); err != nil {
			return stats, fmt.Errorf("restore %q/%s: %w", e.Path, e.Name, err)
		}
		stats.Documents++
		if _, ok := seen[e.Path]; !ok && e.Path != "" {
			seen[e.Path] = struct{}{}
			stats.Partitions++
		}
	}
}
