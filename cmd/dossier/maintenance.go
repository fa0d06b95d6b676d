package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/xtxerr/dossier/internal/store"
)

// =============================================================================
// dump / restore
// =============================================================================

type dumpCmd struct {
	output string
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "write every stored document to a portable dump" }
func (*dumpCmd) Usage() string {
	return `dump [-o FILE]

  Writes the whole store in the length-prefixed dump format. Use it to move
  data between backends: dump from one config, restore with another.
`
}

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "-", "output file (- for stdout)")
}

func (c *dumpCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if _, err := a.open(ctx); err != nil {
		return a.fail("open store: %v", err)
	}

	var w io.Writer = a.out
	if c.output != "-" {
		file, err := os.Create(c.output)
		if err != nil {
			return a.fail("create %s: %v", c.output, err)
		}
		defer file.Close()
		w = file
	}

	stats, err := store.Dump(ctx, a.backend.Store, w)
	if err != nil {
		return a.fail("dump: %v", err)
	}
	fmt.Fprintf(os.Stderr, "dumped %d documents in %d partitions\n", stats.Documents, stats.Partitions)
	return subcommands.ExitSuccess
}

type restoreCmd struct{}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "load a dump into the configured store" }
func (*restoreCmd) Usage() string {
	return `restore <file|->

  Existing documents with the same name are overwritten.
`
}

func (*restoreCmd) SetFlags(*flag.FlagSet) {}

func (*restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if _, err := a.open(ctx); err != nil {
		return a.fail("open store: %v", err)
	}

	var r io.Reader = os.Stdin
	if name := f.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return a.fail("open %s: %v", name, err)
		}
		defer file.Close()
		r = file
	}

	stats, err := store.Restore(ctx, a.backend.Store, r)
	if err != nil {
		return a.fail("restore: %v", err)
	}
	fmt.Fprintf(a.out, "restored %d documents in %d partitions\n", stats.Documents, stats.Partitions)
	return subcommands.ExitSuccess
}
