package wire

import (
	"bytes"
	"io"
	"testing"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/dossier/internal/errors"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	entries := []*Entry{
		{Path: "", Name: "investors", Value: []any{"alice", "bob"}},
		{Path: "2024-01-02", Name: "alice.chart", Value: map[string]any{"end": "2024-01-02", "values": []any{1.5, 2.0}}},
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	r := NewReader(&buf)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	var got []*Entry
	for {
		e, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[1].Path != "2024-01-02" || got[1].Name != "alice.chart" {
		t.Errorf("entry = %+v", got[1])
	}
	values := got[1].Value.(map[string]any)["values"].([]any)
	if values[0].(float64) != 1.5 {
		t.Errorf("values = %v", values)
	}
}

func TestReadHeaderRejectsForeignStream(t *testing.T) {
	var buf bytes.Buffer
	msg, _ := structpb.NewStruct(map[string]any{"format": "something-else"})
	if _, err := protodelim.MarshalTo(&buf, msg); err != nil {
		t.Fatal(err)
	}

	err := NewReader(&buf).ReadHeader()
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestWriteRejectsNonJSONValue(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.Write(&Entry{Name: "x", Value: make(chan int)}); err == nil {
		t.Error("expected error for unencodable value")
	}
}
