// Package wire provides protobuf message framing for store dumps.
//
// A dump is a header followed by one message per document. Messages are
// google.protobuf.Struct values, length-delimited using protobuf's standard
// varint encoding, so dumps stream without holding the store in memory.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/errors"
)

const (
	// Format identifies a dossier dump in its header.
	Format = "dossier-dump"

	// Version is the current dump layout.
	Version = 1
)

// Entry is one document in a dump.
type Entry struct {
	// Path is the slash separated partition path, empty for the root.
	Path string

	// Name is the document name.
	Name string

	// Value is the JSON-shaped document.
	Value any
}

// Reader reads length-delimited dump messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r  *bufio.Reader
	mu sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) next() (*structpb.Struct, error) {
	msg := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: config.DefaultMaxMessageSize,
	}
	if err := opts.UnmarshalFrom(r.r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadHeader reads and checks the dump header.
func (r *Reader) ReadHeader() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.next()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	fields := msg.GetFields()
	if fields["format"].GetStringValue() != Format {
		return fmt.Errorf("not a dossier dump: %w", errors.ErrUnsupported)
	}
	if v := fields["version"].GetNumberValue(); v != Version {
		return fmt.Errorf("dump version %v: %w", v, errors.ErrUnsupported)
	}
	return nil
}

// Read reads the next entry. Returns io.EOF after the last entry.
// Returns an error if the message exceeds MaxMessageSize.
func (r *Reader) Read() (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, err := r.next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read entry: %w", err)
	}

	fields := msg.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("read entry: %w", errors.NewMissingField("name"))
	}
	return &Entry{
		Path:  fields["path"].GetStringValue(),
		Name:  name,
		Value: fields["value"].AsInterface(),
	}, nil
}

// Writer writes length-delimited dump messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(msg *structpb.Struct) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := protodelim.MarshalTo(w.w, msg)
	return err
}

// WriteHeader writes the dump header. Call once before any entry.
func (w *Writer) WriteHeader() error {
	msg, err := structpb.NewStruct(map[string]any{
		"format":  Format,
		"version": Version,
	})
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := w.write(msg); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Write marshals and writes an entry with length prefix. The value must
// be JSON-shaped.
func (w *Writer) Write(e *Entry) error {
	value, err := structpb.NewValue(e.Value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Name, err)
	}
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"path":  structpb.NewStringValue(e.Path),
		"name":  structpb.NewStringValue(e.Name),
		"value": value,
	}}
	if err := w.write(msg); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}
