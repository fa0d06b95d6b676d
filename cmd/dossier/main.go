// dossier is the operator CLI for the investor record store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

// Version is set at build time via ldflags
var Version = "dev"

// newCommander registers every command on a commander parsing fs. The
// interactive shell is left out when building the commander that runs the
// lines typed into it.
func newCommander(fs *flag.FlagSet, name string, withShell bool) *subcommands.Commander {
	c := subcommands.NewCommander(fs, name)
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&ingestCmd{}, "records")
	c.Register(&compileCmd{}, "records")
	c.Register(&invalidateCmd{}, "records")
	c.Register(&datesCmd{}, "records")

	c.Register(&exportCmd{}, "export")
	c.Register(&queryCmd{}, "export")
	c.Register(&pruneCmd{}, "export")

	c.Register(&dumpCmd{}, "maintenance")
	c.Register(&restoreCmd{}, "maintenance")
	if withShell {
		c.Register(&shellCmd{}, "maintenance")
	}
	return c
}

func main() {
	configPath := flag.String("config", "dossier.yaml", "config file path (defaults apply when missing)")
	commander := newCommander(flag.CommandLine, path.Base(os.Args[0]), true)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := newApp(*configPath, os.Stdout)
	status := commander.Execute(ctx, a)
	if err := a.Close(); err != nil && status == subcommands.ExitSuccess {
		status = a.fail("close: %v", err)
	}
	stop()
	os.Exit(int(status))
}
