// dossierd keeps compiled investor records and their Parquet export current.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xtxerr/dossier/internal/loader"
	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/manager"
	"github.com/xtxerr/dossier/internal/metrics"
	"github.com/xtxerr/dossier/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "dossier.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	watch := flag.Bool("watch", false, "watch config for log level changes")
	flag.Parse()

	// Load config
	cfg, err := loader.LoadOrDefault(*cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Daemon.Listen = *listen
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("dossierd")
	log.Info("dossierd starting", "version", Version, "backend", cfg.Store.Backend)

	if err := run(cfg, *cfgPath, *watch, log); err != nil {
		log.Error("dossierd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *loader.Config, cfgPath string, watch bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// =========================================================================
	// Store and Assembly
	// =========================================================================

	observer := metrics.Multi{
		metrics.NewSlogObserver(logging.Component("metrics"), slog.LevelDebug),
		metrics.NewPrometheusObserver("dossier", registry),
	}

	backend, err := loader.OpenStore(ctx, &cfg.Store, observer)
	if err != nil {
		return err
	}
	defer backend.Close()

	asm := loader.NewAssembly(backend.Store, &cfg.Assembly, observer)
	opts := []manager.Option{manager.WithDirectoryMaxAge(cfg.Assembly.DirectoryMaxAge.Duration())}

	// =========================================================================
	// Export Storage (Parquet + retention)
	// =========================================================================

	if cfg.Storage.Enabled {
		svc, err := storage.New(loader.ToStorageConfig(&cfg.Storage))
		if err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			return err
		}
		defer svc.Close()

		opts = append(opts, manager.WithExporter(svc))
		log.Info("export storage started",
			"export_dir", cfg.Storage.ExportDir,
			"retention_charts", cfg.Storage.Retention.Charts.Duration(),
			"retention_summaries", cfg.Storage.Retention.Summaries.Duration())
	} else {
		log.Info("export storage disabled")
	}

	d := newDaemon(manager.New(asm, opts...), cfg.Daemon.RefreshInterval.Duration(), registry)

	// =========================================================================
	// Config Watch
	// =========================================================================

	if watch {
		watcher := loader.NewWatcher(cfgPath, 0, func(next *loader.Config, err error) {
			if err != nil {
				log.Warn("config reload failed", "error", err)
				return
			}
			level, _ := logging.ParseLevel(next.Logging.Level)
			logging.Init(level, next.Logging.JSON)
			log.Info("config reloaded", "log_level", next.Logging.Level)
		})
		watcher.Start()
		defer watcher.Stop()
	}

	// =========================================================================
	// HTTP and Refresh Loop
	// =========================================================================

	srv := &http.Server{
		Addr:              cfg.Daemon.Listen,
		Handler:           d.handler(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	if cfg.Daemon.Listen != "" {
		go func() {
			log.Info("listening", "addr", cfg.Daemon.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()
	} else {
		log.Info("http listener disabled")
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		d.run(ctx)
	}()

	// =========================================================================
	// Graceful Shutdown
	// =========================================================================

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-loopDone
			return err
		}
	}
	log.Info("shutting down")

	drain := time.Duration(cfg.Daemon.DrainTimeoutSec) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		log.Warn("refresh still running at drain timeout")
	}
	return nil
}
