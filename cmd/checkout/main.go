package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
	"github.com/smallbiznis/smallbiznis-checkout/internal/gateway"
	httptransport "github.com/smallbiznis/smallbiznis-checkout/internal/http"
	"github.com/smallbiznis/smallbiznis-checkout/internal/http/handler"
	"github.com/smallbiznis/smallbiznis-checkout/internal/metrics"
	apimiddleware "github.com/smallbiznis/smallbiznis-checkout/internal/middleware"
	"github.com/smallbiznis/smallbiznis-checkout/internal/repository"
	"github.com/smallbiznis/smallbiznis-checkout/internal/server"
	"github.com/smallbiznis/smallbiznis-checkout/internal/service"
	"github.com/smallbiznis/smallbiznis-checkout/internal/telemetry"
	"github.com/smallbiznis/smallbiznis-checkout/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newMetricsRegistry,
			newMetrics,
			newCredentialRepository,
			newGatewayClient,
			newTokenManager,
			newOrderService,
			newStatusService,
			handler.NewPaymentHandler,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func newCredentialRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.CredentialRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return openPostgres(ctx, lc, cfg)
	case config.StoreDriverMongo:
		return openMongo(ctx, lc, cfg)
	case config.StoreDriverBolt:
		repo, err := repository.OpenBoltCredentialRepo(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return repo.Close()
			},
		})
		return repo, nil
	case config.StoreDriverMemory:
		logger.Warn("using in-memory credential store, tokens are lost on restart")
		return repository.NewMemoryCredentialRepo(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, lc fx.Lifecycle, cfg config.Config) (repository.CredentialRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := repository.NewPostgresCredentialRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repo, nil
}

func openMongo(ctx context.Context, lc fx.Lifecycle, cfg config.Config) (repository.CredentialRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return repository.NewMongoCredentialRepo(client.Database(cfg.MongoDatabase)), nil
}

func newGatewayClient(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *gateway.Client {
	return gateway.NewClient(cfg, logger.Named("gateway"), m)
}

func newTokenManager(repo repository.CredentialRepository, client *gateway.Client, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (*token.Manager, error) {
	return token.NewManager(repo, client, cfg, logger.Named("token"), m)
}

func newOrderService(manager *token.Manager, client *gateway.Client, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *service.OrderService {
	return service.NewOrderService(manager, client, cfg, logger.Named("orders"), m)
}

func newStatusService(manager *token.Manager, client *gateway.Client, logger *zap.Logger) *service.StatusService {
	return service.NewStatusService(manager, client, logger.Named("status"))
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
