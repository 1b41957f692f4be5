package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-report-runs/pkg/server"
	"github.com/jdziat/simple-report-runs/pkg/stats"
	"github.com/jdziat/simple-report-runs/pkg/worker"
)

var (
	serveNoScheduler   bool
	serveShutdownGrace time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Addr:           cfg.HTTPAddr,
			Log:            log,
			Orchestrator:   a.orch,
			Runs:           a.runReader(),
			Dashboard:      a.cache,
			Reports:        a.reportReader(),
			Stats:          a.statsReader(),
			AllowedOrigins: cfg.AllowedOrigins,
		})

		if a.stats != nil {
			collector := stats.NewCollector(a.orch, a.stats,
				stats.WithRunLister(a.store),
				stats.WithLogger(log),
			)
			go collector.Start(ctx)
		}

		errCh := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		var w *worker.Worker
		if cfg.EnableScheduler && !serveNoScheduler {
			w = worker.NewWorker(a.orch, a.resolver,
				worker.Concurrency(cfg.WorkerConcurrency),
				worker.WithLogger(log),
			)
			go func() {
				if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()
		} else {
			log.Info().Msg("scheduler disabled, runs start only on manual triggers")
		}

		var runErr error
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
		case runErr = <-errCh:
			log.Error().Err(runErr).Msg("component stopped unexpectedly")
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown")
		}
		if w != nil {
			w.Wait()
		}
		log.Info().Msg("stopped")
		return runErr
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Serve the API without firing scheduled windows")
	serveCmd.Flags().DurationVar(&serveShutdownGrace, "shutdown-grace", 30*time.Second, "How long to wait for in-flight requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}
