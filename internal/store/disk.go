package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
)

const docExt = ".json"

// Disk stores each document as a JSON file. Partitions are subdirectories
// named after their date.
type Disk struct {
	root string
	rel  string
}

// NewDisk opens a disk store rooted at dir, creating it if needed.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk store: empty root directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Disk{root: dir}, nil
}

func (s *Disk) dir() string {
	return filepath.Join(s.root, filepath.FromSlash(s.rel))
}

func (s *Disk) file(name string) string {
	return filepath.Join(s.dir(), name+docExt)
}

func (s *Disk) Has(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.file(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, err)
}

// Store writes to a temporary file and renames it into place so readers
// never see a partial document.
func (s *Disk) Store(ctx context.Context, name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	dir := s.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create partition: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.file(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *Disk) Retrieve(ctx context.Context, name string) (any, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.file(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(s.rel, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return doc, nil
}

func (s *Disk) Names(ctx context.Context) ([]string, error) {
	entries, err := s.readDir()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), docExt); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Disk) Dirs(ctx context.Context) ([]date.Date, error) {
	entries, err := s.readDir()
	if err != nil {
		return nil, err
	}
	dirs := make([]date.Date, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if d, ok := parseSegment(e.Name()); ok {
			dirs = append(dirs, d)
		}
	}
	date.Sort(dirs)
	return dirs, nil
}

func (s *Disk) readDir() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.dir(), err)
	}
	return entries, nil
}

func (s *Disk) Sub(d date.Date) Store {
	return &Disk{root: s.root, rel: joinPath(s.rel, d)}
}

func (s *Disk) Age(ctx context.Context, name string) (time.Duration, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	fi, err := os.Stat(s.file(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, notFound(s.rel, name)
		}
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return time.Since(fi.ModTime()), nil
}

func (s *Disk) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(s.file(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Root returns the directory the store was opened on.
func (s *Disk) Root() string {
	return s.root
}

var _ Store = (*Disk)(nil)
