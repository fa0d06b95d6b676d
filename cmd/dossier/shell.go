package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/google/subcommands"
	"golang.org/x/term"
)

// =============================================================================
// shell
// =============================================================================

type shellCmd struct{}

func (*shellCmd) Name() string     { return "shell" }
func (*shellCmd) Synopsis() string { return "run commands interactively against one open store" }
func (*shellCmd) Usage() string {
	return `shell

  Reads command lines with completion and runs them against the store and
  export service opened once for the session. Leave with exit, quit or
  Ctrl-D.
`
}

func (*shellCmd) SetFlags(*flag.FlagSet) {}

func (*shellCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return a.fail("shell needs an interactive terminal")
	}
	if _, err := a.config(); err != nil {
		return a.fail("config: %v", err)
	}

	sh := &shell{ctx: ctx, app: a}
	p := prompt.New(sh.execute, sh.complete,
		prompt.OptionPrefix("dossier> "),
		prompt.OptionTitle("dossier "+Version),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
	return subcommands.ExitSuccess
}

// shell runs typed lines through a fresh commander sharing one app.
type shell struct {
	ctx context.Context
	app *app
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}

func (s *shell) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 || isExit(line) {
		return
	}
	if err := s.ctx.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	runLine(s.ctx, s.app, os.Stderr, fields)
}

// runLine executes one command line. Parse errors are reported to errOut
// instead of exiting the process.
func runLine(ctx context.Context, a *app, errOut io.Writer, fields []string) subcommands.ExitStatus {
	fs := flag.NewFlagSet("dossier", flag.ContinueOnError)
	fs.SetOutput(errOut)
	c := newCommander(fs, "dossier", false)
	if err := fs.Parse(fields); err != nil {
		return subcommands.ExitUsageError
	}
	return c.Execute(ctx, a)
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	fields := strings.Fields(before)
	word := d.GetWordBeforeCursor()

	// Still typing the command name.
	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		return prompt.FilterHasPrefix(commandSuggestions(), word, true)
	}
	if strings.HasPrefix(word, "-") {
		return prompt.FilterHasPrefix(flagSuggestions(fields[0]), word, true)
	}
	return nil
}

// commandSuggestions lists the commands available inside the shell.
func commandSuggestions() []prompt.Suggest {
	var out []prompt.Suggest
	c := newCommander(flag.NewFlagSet("dossier", flag.ContinueOnError), "dossier", false)
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		out = append(out, prompt.Suggest{Text: cmd.Name(), Description: cmd.Synopsis()})
	})
	out = append(out, prompt.Suggest{Text: "exit", Description: "leave the shell"})
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// flagSuggestions lists the flags of the named command.
func flagSuggestions(name string) []prompt.Suggest {
	var out []prompt.Suggest
	c := newCommander(flag.NewFlagSet("dossier", flag.ContinueOnError), "dossier", false)
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		if cmd.Name() != name {
			return
		}
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		cmd.SetFlags(fs)
		fs.VisitAll(func(f *flag.Flag) {
			out = append(out, prompt.Suggest{Text: "-" + f.Name, Description: f.Usage})
		})
	})
	return out
}
