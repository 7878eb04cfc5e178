package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/moderation"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/blob"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
	"github.com/platinummonkey/gatehouse/pkg/updates"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("gatehouse exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// Caller-scoped and elevated identity clients are kept apart
	publicClient, err := identity.NewPublicClient(cfg.Identity.ClientConfig(), metrics)
	if err != nil {
		return fmt.Errorf("create identity public client: %w", err)
	}
	adminClient, err := identity.NewAdminClient(cfg.Identity.ClientConfig(), metrics)
	if err != nil {
		return fmt.Errorf("create identity admin client: %w", err)
	}

	var verifier auth.Verifier = publicClient
	if cfg.Identity.Verifier == config.VerifierOIDC {
		oidcVerifier, err := identity.NewOIDCVerifier(ctx, cfg.Identity.OIDC(), metrics)
		if err != nil {
			return fmt.Errorf("create oidc verifier: %w", err)
		}
		verifier = oidcVerifier
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("connect to profile store: %w", err)
	}
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)
	profiles := postgres.NewProfileStore(conns, metrics)

	blobs, err := blob.NewS3Store(ctx, cfg.Storage, metrics)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	accessMode, err := cfg.Updates.Mode()
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	var limiter middleware.Limiter
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
		limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.Limits(), "")
		logger.Info("Using Redis rate limiter")
	} else {
		memLimiter := middleware.NewRateLimiter(cfg.RateLimit.Limits())
		memLimiter.StartCleanup(ctx, logger)
		limiter = memLimiter
		logger.Info("Using in-memory rate limiter")
	}

	server := api.NewServer(api.Dependencies{
		Verifier:     verifier,
		Authorizer:   auth.NewRoleAuthorizer(profiles, cfg.Auth.AuthorizerConfig(), metrics, logger),
		Bans:         moderation.NewMutator(adminClient, profiles, cfg.Moderation.PermanentBanDuration, metrics, logger),
		Updates:      updates.NewResolver(blobs, cfg.Updates.ResolverConfig(), metrics, logger),
		UpdateAccess: accessMode,
		Limiter:      limiter,
		Metrics:      metrics,
		Logger:       logger,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// the profile store check covers the primary and every replica
	checker := observability.NewHealthChecker(nil, redisClient)
	checker.SetVersion(version)
	checker.AddCheck("profile_store", true, profiles.HealthCheck)
	checker.AddCheck("identity", false, publicClient.HealthCheck)
	checker.AddCheck("blob_store", false, blobs.HealthCheck)

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return conns.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(map[string]interface{}{
			"addr":          apiServer.Addr,
			"update_access": string(accessMode),
			"version":       version,
		}).Info("Starting gatehouse API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("gatehouse stopped")
	return nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}
