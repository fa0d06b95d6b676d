// Package store provides the partitioned document stores that hold investor
// assets.
//
// A Store is a directory-like collection of named documents with date-named
// child partitions. Backends exist for memory, local disk, SQL (DuckDB and
// SQLite) and Redis; Memo decorates any of them with listing and age caches.
//
// Documents are JSON-shaped: a value passed to Store is normalized through
// encoding/json and Retrieve returns the normalized form (maps, slices,
// float64, string, bool, nil). Use Decode to turn it back into a typed value.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/validation"
)

// Store is a partitioned document store.
//
// Implementations are safe for concurrent use.
type Store interface {
	// Has reports whether a document with the given name exists here.
	Has(ctx context.Context, name string) (bool, error)

	// Store writes a document, replacing any previous one.
	Store(ctx context.Context, name string, value any) error

	// Retrieve reads a document. Returns ErrNotFound if absent.
	Retrieve(ctx context.Context, name string) (any, error)

	// Names lists the document names in this partition, sorted.
	Names(ctx context.Context) ([]string, error)

	// Dirs lists the child partitions, sorted ascending.
	Dirs(ctx context.Context) ([]date.Date, error)

	// Sub returns the child partition for d. The partition is created
	// lazily when the first document is written to it.
	Sub(d date.Date) Store

	// Age reports how long ago a document was last written.
	Age(ctx context.Context, name string) (time.Duration, error)

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, name string) error
}

// =============================================================================
// Document Helpers
// =============================================================================

// Normalize converts v into the JSON-shaped form every backend returns.
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return doc, nil
}

// Decode converts a retrieved document into out.
func Decode(doc any, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// =============================================================================
// Partition Paths
// =============================================================================

// joinPath appends a partition segment to a slash separated path.
func joinPath(path string, d date.Date) string {
	if path == "" {
		return d.String()
	}
	return path + "/" + d.String()
}

// parseSegment parses a partition segment. Only canonical dates are accepted
// so that stray entries in a backend are not reported as partitions.
func parseSegment(s string) (date.Date, bool) {
	d, err := date.Parse(s)
	if err != nil || d.String() != s {
		return date.Date{}, false
	}
	return d, true
}

// childSegment returns the first segment of full below prefix.
func childSegment(prefix, full string) (string, bool) {
	rest := full
	if prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(full, prefix+"/")
		if !ok {
			return "", false
		}
	}
	seg, _, _ := strings.Cut(rest, "/")
	return seg, seg != ""
}

// Resolve walks a slash separated partition path from root.
func Resolve(root Store, path string) (Store, error) {
	s := root
	if path == "" {
		return s, nil
	}
	for _, seg := range strings.Split(path, "/") {
		d, ok := parseSegment(seg)
		if !ok {
			return nil, fmt.Errorf("partition %q: %w", seg, errors.ErrInvalidDate)
		}
		s = s.Sub(d)
	}
	return s, nil
}

func checkName(name string) error {
	return validation.ValidateAsset(name)
}

func notFound(path, name string) error {
	if path == "" {
		return errors.NewNotFound("document", name)
	}
	return errors.NewNotFound("document", path+"/"+name)
}
