package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmslite/snmppoller/internal/api"
	"github.com/nmslite/snmppoller/internal/auth"
	"github.com/nmslite/snmppoller/internal/channels"
	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/database"
	"github.com/nmslite/snmppoller/internal/globals"
	"github.com/nmslite/snmppoller/internal/metrics"
	"github.com/nmslite/snmppoller/internal/poller"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := globals.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *globals.Config) error {
	logger := globals.InitLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting snmppoller",
		"version", version,
		"targets", len(cfg.Targets),
		"database", cfg.Database.Enabled(),
		"api", cfg.Server.Enabled,
	)

	m := metrics.New("")
	targets, err := buildTargets(cfg, m, nil, logger)
	if err != nil {
		return err
	}
	var authService *auth.Service
	if cfg.Server.Enabled {
		if authService, err = auth.NewService(cfg.Auth); err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var sink poller.SampleSink
	var db api.Pinger
	if cfg.Database.Enabled() {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.RunMigrations(ctx, pool); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		db = pool

		bw := poller.NewBatchWriter(pool, cfg.Metrics, m, logger)
		sink = bw
		g.Go(func() error { return ignoreCanceled(bw.Run(gctx)) })
	}

	events := channels.NewEventChannels(ctx, channels.EventChannelsConfig{
		TargetStateBufferSize: cfg.Channel.TargetStateChannelSize,
		FirstPassBufferSize:   cfg.Channel.FirstPassChannelSize,
		CycleBufferSize:       cfg.Channel.CycleChannelSize,
	})
	channels.StartEventLogger(ctx, events, logger)

	writer := poller.NewResultWriter(logger, sink)
	scheduler := poller.NewScheduler(targets, events, writer, m, logger, cfg.Scheduler)
	g.Go(func() error { return ignoreCanceled(scheduler.Run(gctx)) })

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr: cfg.Server.Addr(),
			Handler: api.NewRouter(api.Dependencies{
				Auth:    authService,
				Targets: scheduler,
				Values:  writer,
				DB:      db,
				Metrics: m.Handler(),
				Logger:  logger,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout(),
			WriteTimeout: cfg.Server.WriteTimeout(),
		}

		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server forced to shutdown", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	// every producer has returned by now
	_ = events.Close()
	if err != nil {
		logger.Error("snmppoller stopped with error", "error", err)
		return err
	}
	logger.Info("snmppoller stopped gracefully")
	return nil
}

// buildTargets creates one collector per configured target. A nil dial
// uses the real transport.
func buildTargets(cfg *globals.Config, observer collector.Observer, dial collector.Dialer, logger *slog.Logger) ([]*poller.ScheduledTarget, error) {
	out := make([]*poller.ScheduledTarget, 0, len(cfg.Targets))
	for i := range cfg.Targets {
		t := &cfg.Targets[i]

		tc, err := t.TransportConfig(cfg.SNMP)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}
		p, err := t.BuildPlan(cfg.SNMP, logger)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Name, err)
		}

		c := collector.New(t.Name, tc, p,
			collector.WithDialer(dial),
			collector.WithObserver(observer),
			collector.WithLogger(logger),
			collector.WithPingOID(t.PingOID),
		)
		out = append(out, poller.NewScheduledTarget(c, t.PollingInterval(cfg.Scheduler.DefaultPollingIntervalSeconds)))
	}
	return out, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
