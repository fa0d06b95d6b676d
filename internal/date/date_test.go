package date

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/xtxerr/dossier/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{"2024-01-02", New(2024, time.January, 2), false},
		{"2024-1-2", New(2024, time.January, 2), false},
		{"2024-02-30", Date{}, true},
		{"02/01/2024", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidDate) {
					t.Errorf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestArithmetic(t *testing.T) {
	d := MustParse("2024-02-28")

	if got := d.Add(1).String(); got != "2024-02-29" {
		t.Errorf("leap day: got %s", got)
	}
	if got := d.Add(2).String(); got != "2024-03-01" {
		t.Errorf("month rollover: got %s", got)
	}
	if got := MustParse("2024-01-01").Prev().String(); got != "2023-12-31" {
		t.Errorf("year rollback: got %s", got)
	}
	if got := MustParse("2024-03-01").Sub(MustParse("2023-03-01")); got != 366 {
		t.Errorf("Sub across leap year = %d, want 366", got)
	}
	if got := d.Sub(d.Add(5)); got != -5 {
		t.Errorf("negative Sub = %d", got)
	}
}

func TestCompareAndSort(t *testing.T) {
	dates := []Date{MustParse("2024-03-01"), MustParse("2023-12-31"), MustParse("2024-01-15")}
	Sort(dates)

	want := []string{"2023-12-31", "2024-01-15", "2024-03-01"}
	for i, d := range dates {
		if d.String() != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, d, want[i])
		}
	}

	if !dates[0].Before(dates[1]) || !dates[2].After(dates[1]) {
		t.Error("Before/After disagree with sort order")
	}
	if Max(dates...) != dates[2] {
		t.Errorf("Max = %s", Max(dates...))
	}
	if !Max().IsZero() {
		t.Error("Max of nothing should be zero")
	}
}

func TestRange(t *testing.T) {
	got := slices.Collect(Range(MustParse("2023-12-30"), MustParse("2024-01-02")))
	if len(got) != 4 || got[0].String() != "2023-12-30" || got[3].String() != "2024-01-02" {
		t.Errorf("Range = %v", got)
	}

	if n := len(slices.Collect(Range(MustParse("2024-01-02"), MustParse("2024-01-01")))); n != 0 {
		t.Errorf("inverted range yielded %d dates", n)
	}
}

func TestJSON(t *testing.T) {
	in := map[Date][]int{MustParse("2024-01-02"): {1}}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"2024-01-02":[1]}` {
		t.Errorf("marshal = %s", b)
	}

	var out map[Date][]int
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out[MustParse("2024-01-02")]) != 1 {
		t.Errorf("round trip lost key: %v", out)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2024-13-01"`), &d); err == nil {
		t.Error("expected error for invalid month")
	}
}
