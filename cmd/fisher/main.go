// Command fisher runs the webhook receiver and job dispatcher: it loads
// configuration, collects hook scripts from disk, starts the worker pool
// and scheduler, and serves the HTTP front-end until SIGINT/SIGTERM,
// reloading the hook set on SIGHUP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fisher/internal/audit"
	"fisher/internal/config"
	"fisher/internal/hooks"
	"fisher/internal/logging"
	"fisher/internal/processor"
	"fisher/internal/provider"
	"fisher/internal/provider/builtin"
	"fisher/internal/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		bind       = flag.String("bind", "", "override FISHER_BIND")
		hooksDir   = flag.String("hooks-dir", "", "override FISHER_HOOKS_DIR")
		maxThreads = flag.Int("max-threads", 0, "override FISHER_MAX_THREADS (0 = use config/env)")
		logLevel   = flag.String("log-level", "", "override FISHER_LOG_LEVEL")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fisher: configuration error:", err)
		return 1
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if *hooksDir != "" {
		cfg.HooksDir = *hooksDir
	}
	if *maxThreads > 0 {
		cfg.MaxThreads = *maxThreads
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "fisher: configuration error:", err)
		return 1
	}

	base := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(base)
	log := logging.Wrap(base)

	registry := provider.NewRegistry()
	registry.Register(builtin.Generic())
	registry.Register(builtin.Blake2())

	checkConfig := func(name, cfg string) error { return registry.CheckConfig(name, cfg) }

	initial, loadErrs := hooks.Collect(cfg.HooksDir, false, checkConfig)
	for _, e := range loadErrs {
		log.LogHookLoadError(e.Path, e.Err)
	}
	repo := hooks.NewRepository(initial)

	var trail *audit.Trail
	if cfg.AuditPath != "" {
		trail, err = audit.Open(cfg.AuditPath, base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fisher: audit trail error:", err)
			return 1
		}
		defer trail.Close()
	}

	scheduler := processor.NewScheduler(repo, cfg.MaxThreads, cfg.QueueCap, log, auditSinkOrNil(trail), processor.BuildStatusJob, cfg.StaticEnv)

	collect := func() (*hooks.Snapshot, error) {
		snap, errs := hooks.Collect(cfg.HooksDir, false, checkConfig)
		for _, e := range errs {
			log.LogHookLoadError(e.Path, e.Err)
		}
		return snap, nil
	}
	facade := processor.NewFacade(repo, scheduler, collect, log)
	pipeline := processor.NewPipeline(repo, registry, facade)

	limiter := web.NewRateLimiter(web.RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         60,
		CleanupInterval:   5 * time.Minute,
		BehindProxies:     cfg.BehindProxies,
	})
	defer limiter.Close()

	server := web.NewServer(pipeline, facade, cfg.BehindProxies, cfg.EnableHealth, limiter, log)

	httpServer := &http.Server{
		Addr:         cfg.Bind,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		base.Info("listening", "bind", cfg.Bind, "hooks_dir", cfg.HooksDir, "max_threads", cfg.MaxThreads)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			base.Error("http server error", "error", err)
			return 2
		case err := <-facade.Fatal():
			base.Error("aborting on internal invariant violation", "error", err)
			return 2
		case s := <-sig:
			switch s {
			case syscall.SIGHUP:
				if err := facade.Reload(server); err != nil {
					base.Error("reload failed", "error", err)
				}
			default:
				base.Info("shutting down", "signal", s.String())
				ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
				_ = httpServer.Shutdown(ctx)
				cancel()
				facade.Stop(cfg.ShutdownGrace)
				return 0
			}
		}
	}
}

// auditSinkOrNil avoids handing the scheduler a non-nil interface wrapping
// a nil *audit.Trail, which would make its internal nil check ineffective.
func auditSinkOrNil(t *audit.Trail) processor.AuditSink {
	if t == nil {
		return nil
	}
	return t
}
