package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/manager"
	"github.com/xtxerr/dossier/internal/storage/query"
)

// =============================================================================
// export
// =============================================================================

type exportCmd struct{}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "compile the directory and export it to Parquet" }
func (*exportCmd) Usage() string {
	return `export

  Runs one refresh: compiles every investor listed in the directory and
  writes the compiled records to the Parquet export of today.
`
}

func (*exportCmd) SetFlags(*flag.FlagSet) {}

func (*exportCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	asm, err := a.open(ctx)
	if err != nil {
		return a.fail("open store: %v", err)
	}
	svc, err := a.exports()
	if err != nil {
		return a.fail("export storage: %v", err)
	}

	m := manager.New(asm,
		manager.WithExporter(svc),
		manager.WithDirectoryMaxAge(a.cfg.Assembly.DirectoryMaxAge.Duration()),
	)
	result, err := m.Refresh(ctx)
	if result != nil {
		fmt.Fprintf(a.out, "investors %d  compiled %d  skipped %d  failed %d  (%s)\n",
			result.Investors, result.Compiled, result.Skipped, result.Failed, result.Duration)
		if result.DirectoryStale {
			fmt.Fprintln(a.out, "warning: investor directory is stale")
		}
		if result.Export != nil {
			fmt.Fprintf(a.out, "exported %d chart rows, %d summaries to %s\n",
				result.Export.ChartRows, result.Export.SummaryRows, result.Export.ChartsPath)
		}
	}
	if err != nil {
		return a.fail("export: %v", err)
	}
	if result.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// query
// =============================================================================

type queryCmd struct {
	investor string
	from, to date.Date
	limit    int
	top      int
	sql      string
}

func (*queryCmd) Name() string     { return "query" }
func (*queryCmd) Synopsis() string { return "query the newest Parquet export" }
func (*queryCmd) Usage() string {
	return `query -investor NAME [-from DATE] [-to DATE] [-limit N]
query -top N
query -sql 'SELECT ...'

  The views "charts" and "summaries" are available to -sql.
`
}

func (c *queryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.investor, "investor", "", "print the exported chart of this investor")
	f.Var(dateValue{&c.from}, "from", "first date of the chart range")
	f.Var(dateValue{&c.to}, "to", "last date of the chart range")
	f.IntVar(&c.limit, "limit", 0, "maximum rows (0 uses the configured limit)")
	f.IntVar(&c.top, "top", 0, "print the N investors with the highest total return")
	f.StringVar(&c.sql, "sql", "", "run an arbitrary query")
}

func (c *queryCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)

	modes := 0
	for _, set := range []bool{c.investor != "", c.top > 0, c.sql != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	svc, err := a.exports()
	if err != nil {
		return a.fail("export storage: %v", err)
	}
	q := svc.Query()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch {
	case c.investor != "":
		points, err := q.Chart(ctx, query.ChartQuery{Investor: c.investor, From: c.from, To: c.to, Limit: c.limit})
		if err != nil {
			return a.fail("query: %v", err)
		}
		fmt.Fprintln(tw, "DATE\tVALUE\tDETRENDED")
		for _, p := range points {
			fmt.Fprintf(tw, "%s\t%.2f\t%.6f\n", p.Date, p.Value, p.Detrended)
		}

	case c.top > 0:
		rows, err := q.Top(ctx, c.top)
		if err != nil {
			return a.fail("query: %v", err)
		}
		fmt.Fprintln(tw, "INVESTOR\tSTART\tEND\tDAYS\tRETURN\tP05\tP50\tP95")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%+.2f%%\t%+.3f%%\t%+.3f%%\t%+.3f%%\n",
				r.Investor, r.Start, r.End, r.Days, 100*r.TotalReturn, 100*r.P05, 100*r.P50, 100*r.P95)
		}

	default:
		rows, err := q.ExecuteSQL(ctx, c.sql)
		if err != nil {
			return a.fail("query: %v", err)
		}
		writeRows(tw, rows)
	}
	return subcommands.ExitSuccess
}

// writeRows prints generic result rows with sorted column headers.
func writeRows(tw *tabwriter.Writer, rows []map[string]interface{}) {
	if len(rows) == 0 {
		return
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	for _, row := range rows {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = fmt.Sprint(row[col])
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
}

// =============================================================================
// prune
// =============================================================================

type pruneCmd struct {
	dryRun bool
}

func (*pruneCmd) Name() string     { return "prune" }
func (*pruneCmd) Synopsis() string { return "delete exports past their retention" }
func (*pruneCmd) Usage() string {
	return `prune [-dry-run]
`
}

func (c *pruneCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "report what would be deleted")
}

func (c *pruneCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	svc, err := a.exports()
	if err != nil {
		return a.fail("export storage: %v", err)
	}

	results := svc.RunRetention
	verb := "deleted"
	if c.dryRun {
		results = svc.DryRunRetention
		verb = "would delete"
	}

	status := subcommands.ExitSuccess
	for _, r := range results() {
		fmt.Fprintf(a.out, "%-10s %s %d files (%d bytes), kept %d\n", r.Kind, verb, r.FilesDeleted, r.BytesFreed, r.FilesSkipped)
		for _, err := range r.Errors {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Kind, err)
			status = subcommands.ExitFailure
		}
	}
	fmt.Fprint(a.out, svc.FormatDiskUsage())
	return status
}
