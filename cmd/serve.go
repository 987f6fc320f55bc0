package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/travisbrown/archivindex/pkg/catalog"
	"github.com/travisbrown/archivindex/pkg/ingest"
	"github.com/travisbrown/archivindex/pkg/prometheus"
	"github.com/travisbrown/archivindex/pkg/scheduler"
	"github.com/travisbrown/archivindex/pkg/store"
)

// serveCommand runs the ingest pipeline continuously on a cron schedule
// (component D1), the archivindex counterpart of the teacher's serve
// command running the cache's LRU eviction cron job.
func serveCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the scheduled ingest pipeline until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "patterns",
				Usage:    "path to the JSON array of pattern configs to import",
				Sources:  flagSources("ingest.patterns", "ARCHIVINDEX_INGEST_PATTERNS"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "mime-type",
				Usage:   "mime type to reconcile after each scheduled import",
				Sources: flagSources("ingest.mime-type", "ARCHIVINDEX_INGEST_MIME_TYPE"),
				Value:   "text/html",
			},
			&cli.StringFlag{
				Name:    "cron",
				Usage:   "standard cron spec for the scheduled ingest cycle",
				Sources: flagSources("serve.cron", "ARCHIVINDEX_SERVE_CRON"),
				Value:   "0 * * * *",
			},
			&cli.IntFlag{
				Name:    "parallelism",
				Usage:   "number of patterns imported concurrently per scheduled run",
				Sources: flagSources("serve.parallelism", "ARCHIVINDEX_SERVE_PARALLELISM"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := zerolog.Ctx(ctx).With().Str("cmd", "serve").Logger()
			log := &logger

			ctx = logger.WithContext(ctx)

			ctx, cancel := context.WithCancel(ctx)

			g, gctx := errgroup.WithContext(ctx)

			defer func() {
				if err := g.Wait(); err != nil {
					logger.Error().Err(err).Msg("error returned from g.Wait()")
				}
			}()

			// Reminder: defers run last to first, so cancel fires before
			// g.Wait() is reached, unblocking autoMaxProcs.
			defer cancel()

			g.Go(func() error {
				return autoMaxProcs(gctx, 30*time.Second, logger)
			})

			db, _, err := catalog.Open(cmd.Root().String("catalog-url"), nil)
			if err != nil {
				return fmt.Errorf("serve: error opening catalog: %w", err)
			}
			defer db.Close()

			if err := catalog.EnsureSchema(ctx, db); err != nil {
				return fmt.Errorf("serve: error ensuring schema: %w", err)
			}

			st, err := store.New(ctx, cmd.Root().String("store-path"))
			if err != nil {
				return fmt.Errorf("serve: error opening store: %w", err)
			}

			configs, err := ingest.LoadPatternConfigs(cmd.String("patterns"))
			if err != nil {
				return err
			}

			opts := []scheduler.Option{scheduler.WithLogger(*log)}
			if p := int(cmd.Int("parallelism")); p > 0 {
				opts = append(opts, scheduler.WithParallelism(p))
			}

			sched := scheduler.New(db, st, configs, cmd.String("mime-type"), opts...)

			if _, err := sched.AddIngestJob(cmd.String("cron")); err != nil {
				return err
			}

			sched.Start()

			log.Info().Str("cron", cmd.String("cron")).Msg("scheduler started, awaiting shutdown signal")

			var metricsSrv *http.Server

			if cmd.Root().Bool("prometheus-enabled") {
				gatherer, shutdownMetrics, err := prometheus.SetupPrometheusMetrics(ctx, cmd.Root().Name, Version)
				if err != nil {
					return fmt.Errorf("serve: error setting up prometheus metrics: %w", err)
				}

				defer func() {
					if err := shutdownMetrics(ctx); err != nil {
						log.Error().Err(err).Msg("error shutting down prometheus metrics")
					}
				}()

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

				addr := cmd.Root().String("prometheus-addr")
				metricsSrv = &http.Server{Addr: addr, Handler: mux}

				g.Go(func() error {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}

					return nil
				})

				log.Info().Str("addr", addr).Msg("prometheus metrics endpoint listening")
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-sigCtx.Done()

			log.Info().Msg("shutdown signal received, waiting for in-flight runs to finish")

			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}

			<-sched.Stop().Done()

			return nil
		},
	}
}
