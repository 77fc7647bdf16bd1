package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"goldtier/pkg/adminapi"
	"goldtier/pkg/config"
	"goldtier/pkg/metrics"
	"goldtier/pkg/protocol"
)

// shutdownTimeout bounds how long the admin server drains on exit.
const shutdownTimeout = 5 * time.Second

// newRunCmd creates the "goldtier run" subcommand.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon",
		Long:  "Runs the scheduler, the orchestration cycle loop, the config watcher and\nthe admin API until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			cfg, err := paths.LoadConfig()
			if err != nil {
				return err
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}
			if status == StatusRunning {
				return fmt.Errorf("goldtier is already running (PID %d)", pid)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
			return runDaemon(ctx, paths, cfg, logger, nil)
		},
	}
}

// runDaemon runs until ctx is done. If ready is non-nil it receives the
// admin listener address once every component is started.
func runDaemon(ctx context.Context, paths *Paths, cfg *config.Config, logger *slog.Logger, ready chan<- string) error {
	p, err := buildPipeline(cfg, logger, pipelineOpts{dbPath: paths.DBPath, amqp: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("close pipeline", "error", err)
		}
	}()

	if err := p.orch.SyncJobs(cfg.JobSpecs()); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	if err := WritePIDFile(paths.PIDPath, os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = RemovePIDFile(paths.PIDPath) }()

	ln, err := net.Listen("tcp", paths.AdminAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", paths.AdminAddr, err)
	}
	srv := &http.Server{
		Handler:           adminapi.Handler(p.orch, metrics.Handler(p.prom), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.sched.Run(gctx) })
	g.Go(func() error { return p.orch.Run(gctx) })
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if _, err := os.Stat(paths.ConfigPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, paths.ConfigPath, func(next *config.Config, err error) {
				if err != nil {
					logger.Error("config reload", "path", paths.ConfigPath, "error", err)
					return
				}
				if err := p.orch.SyncJobs(next.JobSpecs()); err != nil {
					logger.Error("apply reloaded jobs", "error", err)
					return
				}
				p.recorder.Record(protocol.Event{
					Kind:    protocol.EventConfigReloaded,
					Message: fmt.Sprintf("%s: %d jobs", paths.ConfigPath, len(next.Jobs)),
					At:      time.Now(),
				})
			})
		})
	}

	logger.Info("goldtier started",
		"pid", os.Getpid(),
		"admin", ln.Addr().String(),
		"db", paths.DBPath,
		"cycle_interval", cfg.CycleInterval.D(),
		"jobs", len(p.sched.Jobs()),
	)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	err = g.Wait()
	logger.Info("goldtier stopped", "events_written", p.store.Written(), "events_dropped", p.store.Dropped())
	return err
}
