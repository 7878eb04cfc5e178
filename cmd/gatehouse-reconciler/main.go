package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/moderation"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run one reconciliation pass and exit")
	schedule = flag.String("schedule", "", "Cron schedule, overrides GATEHOUSE_RECONCILE_SCHEDULE")
	timeout  = flag.Duration("timeout", 10*time.Minute, "Upper bound for a single pass")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *schedule != "" {
		cfg.Reconciler.Schedule = *schedule
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("component", "reconciler")

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	users, err := identity.NewAdminClient(cfg.Identity.ClientConfig(), metrics)
	if err != nil {
		logrus.Fatalf("Failed to create identity admin client: %v", err)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		logrus.Fatalf("Failed to connect to profile store: %v", err)
	}
	defer conns.Close()

	reconciler := moderation.NewReconciler(users, postgres.NewProfileStore(conns, metrics),
		cfg.Reconciler.PageSize, metrics, logger)

	if *runOnce {
		if err := runPass(context.Background(), reconciler, logger); err != nil {
			conns.Close()
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Reconciler.Schedule, func() {
		runPass(ctx, reconciler, logger)
	}); err != nil {
		logrus.Fatalf("Failed to schedule reconciliation: %v", err)
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(conns.Primary(), nil))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	c.Start()
	logger.WithField("schedule", cfg.Reconciler.Schedule).Info("Reconciler started")

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		<-c.Stop().Done()
		return nil
	})
	if err := shutdown.WaitForShutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown incomplete")
	}
	logger.Info("Reconciler stopped")
}

func runPass(ctx context.Context, reconciler *moderation.Reconciler, logger *observability.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	report, err := reconciler.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Reconciliation pass aborted")
		return err
	}
	if report.Failed > 0 {
		logger.WithField("failed", report.Failed).Warn("Reconciliation pass finished with failures")
	}
	return nil
}
