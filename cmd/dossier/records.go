package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/series"
	"github.com/xtxerr/dossier/internal/validation"
)

// =============================================================================
// ingest
// =============================================================================

type ingestCmd struct {
	kind string
	on   date.Date
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "store a raw snapshot read as JSON" }
func (*ingestCmd) Usage() string {
	return `ingest -kind chart|mirrors|stats [-date YYYY-MM-DD] <investor> <file|->
ingest -kind directory <file|->

  Stores one scraped snapshot. Dated kinds are stored on -date (default
  today); the directory is a single value at the store root.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", assembly.KindChart, "snapshot kind: chart, mirrors, stats or directory")
	f.Var(dateValue{&c.on}, "date", "snapshot date (default today)")
}

func (c *ingestCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)

	want := 2
	if c.kind == "directory" {
		want = 1
	}
	if f.NArg() != want {
		f.Usage()
		return subcommands.ExitUsageError
	}
	source := f.Arg(want - 1)

	asm, err := a.open(ctx)
	if err != nil {
		return a.fail("open store: %v", err)
	}
	data, err := readSource(source)
	if err != nil {
		return a.fail("read %s: %v", source, err)
	}

	on := c.on
	if on.IsZero() {
		on = date.Today()
	}

	if c.kind == "directory" {
		var dir assembly.Directory
		if err := decodeStrict(data, &dir); err != nil {
			return a.fail("decode directory: %v", err)
		}
		for _, l := range dir.Investors {
			if err := validation.ValidateInvestor(l.Name); err != nil {
				return a.fail("directory: %v", err)
			}
		}
		if dir.Updated.IsZero() {
			dir.Updated = on
		}
		if err := asm.Directory().Store(ctx, dir); err != nil {
			return a.fail("store directory: %v", err)
		}
		fmt.Fprintf(a.out, "stored directory with %d investors\n", len(dir.Investors))
		return subcommands.ExitSuccess
	}

	investor := f.Arg(0)
	if err := validation.ValidateInvestor(investor); err != nil {
		return a.fail("%v", err)
	}

	switch c.kind {
	case assembly.KindChart:
		var chart series.Chart
		if err := decodeStrict(data, &chart); err != nil {
			return a.fail("decode chart: %v", err)
		}
		if chart.Len() == 0 || chart.End.IsZero() {
			return a.fail("chart needs an end date and at least one value")
		}
		err = asm.Chart(investor).StoreOn(ctx, on, &chart)
	case assembly.KindMirrors:
		var mirrors []assembly.Mirror
		if err := decodeStrict(data, &mirrors); err != nil {
			return a.fail("decode mirrors: %v", err)
		}
		err = asm.Mirrors(investor).StoreOn(ctx, on, mirrors)
	case assembly.KindStats:
		var stats assembly.Stats
		if err := decodeStrict(data, &stats); err != nil {
			return a.fail("decode stats: %v", err)
		}
		err = asm.Stats(investor).StoreOn(ctx, on, stats)
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q\n", c.kind)
		return subcommands.ExitUsageError
	}
	if err != nil {
		return a.fail("store %s: %v", assembly.AssetName(investor, c.kind), err)
	}

	fmt.Fprintf(a.out, "stored %s on %s\n", assembly.AssetName(investor, c.kind), on)
	return subcommands.ExitSuccess
}

func readSource(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func decodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// =============================================================================
// compile
// =============================================================================

type compileCmd struct {
	all     bool
	asJSON  bool
	workers int
}

func (*compileCmd) Name() string     { return "compile" }
func (*compileCmd) Synopsis() string { return "compile investor records" }
func (*compileCmd) Usage() string {
	return `compile [-json] <investor>...
compile -all

  Compiles the record of each investor, reusing a fresh compiled record.
  With -all every investor of the directory is compiled in parallel.
`
}

func (c *compileCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "compile every investor listed in the directory")
	f.BoolVar(&c.asJSON, "json", false, "print the full records as JSON")
}

func (c *compileCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if c.all == (f.NArg() > 0) {
		f.Usage()
		return subcommands.ExitUsageError
	}

	asm, err := a.open(ctx)
	if err != nil {
		return a.fail("open store: %v", err)
	}

	names := f.Args()
	if c.all {
		dir, err := asm.Directory().Retrieve(ctx)
		if err != nil {
			return a.fail("investor directory: %v", err)
		}
		names = dir.Names()
	}

	results, err := asm.CompileAll(ctx, names)
	if err != nil {
		return a.fail("compile: %v", err)
	}

	status := subcommands.ExitSuccess
	if c.asJSON {
		var recs []*assembly.Investor
		for _, r := range results {
			if r.Record != nil {
				recs = append(recs, r.Record)
			}
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(recs); err != nil {
			return a.fail("encode: %v", err)
		}
	}

	for _, r := range results {
		switch {
		case r.Err == nil:
			if !c.asJSON {
				fmt.Fprintln(a.out, describe(r.Record))
			}
		case errors.IsExpected(r.Err):
			fmt.Fprintf(os.Stderr, "%s: skipped: %v\n", r.Investor, r.Err)
		default:
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Investor, r.Err)
			status = subcommands.ExitFailure
		}
	}
	return status
}

// describe renders a one-line summary of a record.
func describe(rec *assembly.Investor) string {
	line := fmt.Sprintf("%-20s %s..%s  %4d days", rec.Name, rec.Chart.Start(), rec.Chart.End, rec.Chart.Len())
	if rec.Summary != nil {
		line += fmt.Sprintf("  return %+.2f%%  p50 %+.3f%%", 100*rec.Summary.TotalReturn, 100*rec.Summary.P50)
	}
	return line + fmt.Sprintf("  stats %d  mirrors %d", len(rec.Stats), len(rec.Mirrors))
}

// =============================================================================
// invalidate
// =============================================================================

type invalidateCmd struct{}

func (*invalidateCmd) Name() string     { return "invalidate" }
func (*invalidateCmd) Synopsis() string { return "erase compiled records" }
func (*invalidateCmd) Usage() string {
	return `invalidate <investor>...

  Erases the compiled record so the next compile rebuilds it.
`
}

func (*invalidateCmd) SetFlags(*flag.FlagSet) {}

func (*invalidateCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	asm, err := a.open(ctx)
	if err != nil {
		return a.fail("open store: %v", err)
	}
	for _, investor := range f.Args() {
		if err := asm.Invalidate(ctx, investor); err != nil {
			return a.fail("invalidate %s: %v", investor, err)
		}
		fmt.Fprintf(a.out, "invalidated %s\n", investor)
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// dates
// =============================================================================

type datesCmd struct {
	kind string
}

func (*datesCmd) Name() string     { return "dates" }
func (*datesCmd) Synopsis() string { return "list the snapshot dates of an investor asset" }
func (*datesCmd) Usage() string {
	return `dates [-kind chart|mirrors|stats|compiled] <investor>
`
}

func (c *datesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", assembly.KindChart, "asset kind")
}

func (c *datesCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	asm, err := a.open(ctx)
	if err != nil {
		return a.fail("open store: %v", err)
	}

	investor := f.Arg(0)
	var dates []date.Date
	switch c.kind {
	case assembly.KindChart:
		dates, err = asm.Chart(investor).Dates(ctx)
	case assembly.KindMirrors:
		dates, err = asm.Mirrors(investor).Dates(ctx)
	case assembly.KindStats:
		dates, err = asm.Stats(investor).Dates(ctx)
	case assembly.KindCompiled:
		dates, err = asm.Compiled(investor).Dates(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q\n", c.kind)
		return subcommands.ExitUsageError
	}
	if err != nil {
		return a.fail("dates: %v", err)
	}
	for _, d := range dates {
		fmt.Fprintln(a.out, d)
	}
	return subcommands.ExitSuccess
}
