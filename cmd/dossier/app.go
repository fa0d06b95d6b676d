package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/loader"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/metrics"
	"github.com/xtxerr/dossier/internal/storage"
)

// app holds what the commands of one process share. Everything is opened
// on first use so that help and usage errors never touch the store.
type app struct {
	configPath string
	out        io.Writer

	cfg      *loader.Config
	backend  *loader.Backend
	assembly *assembly.Assembly
	storage  *storage.Service
}

func newApp(configPath string, out io.Writer) *app {
	return &app{configPath: configPath, out: out}
}

// appFrom extracts the app passed to Commander.Execute.
func appFrom(args []interface{}) *app {
	if len(args) > 0 {
		if a, ok := args[0].(*app); ok {
			return a
		}
	}
	return newApp("", os.Stdout)
}

func (a *app) config() (*loader.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := loader.LoadOrDefault(a.configPath)
	if err != nil {
		return nil, err
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)
	a.cfg = cfg
	return cfg, nil
}

// open returns the assembly over the configured store.
func (a *app) open(ctx context.Context) (*assembly.Assembly, error) {
	if a.assembly != nil {
		return a.assembly, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	observer := metrics.NewSlogObserver(logging.Component("metrics"), slog.LevelDebug)
	backend, err := loader.OpenStore(ctx, &cfg.Store, observer)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.assembly = loader.NewAssembly(backend.Store, &cfg.Assembly, observer)
	return a.assembly, nil
}

// exports returns the export storage service.
func (a *app) exports() (*storage.Service, error) {
	if a.storage != nil {
		return a.storage, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, fmt.Errorf("export storage is disabled (storage.enabled)")
	}
	svc, err := storage.New(loader.ToStorageConfig(&cfg.Storage))
	if err != nil {
		return nil, err
	}
	a.storage = svc
	return svc, nil
}

func (a *app) Close() error {
	var errs []error
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}

// fail reports err and returns the failure status.
func (a *app) fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// dateValue is a flag.Value holding a date.
type dateValue struct{ d *date.Date }

func (v dateValue) String() string {
	if v.d == nil || v.d.IsZero() {
		return ""
	}
	return v.d.String()
}

func (v dateValue) Set(s string) error {
	d, err := date.Parse(s)
	if err != nil {
		return err
	}
	*v.d = d
	return nil
}

var _ flag.Value = dateValue{}
