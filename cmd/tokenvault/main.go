package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/bingify/tokenvault/internal/adapter/cache"
	oauthadapter "github.com/bingify/tokenvault/internal/adapter/oauth"
	"github.com/bingify/tokenvault/internal/auth"
	"github.com/bingify/tokenvault/internal/bootstrap"
	"github.com/bingify/tokenvault/internal/config"
	"github.com/bingify/tokenvault/internal/crypto"
	httptransport "github.com/bingify/tokenvault/internal/http"
	"github.com/bingify/tokenvault/internal/http/handler"
	httpmiddleware "github.com/bingify/tokenvault/internal/http/middleware"
	apimiddleware "github.com/bingify/tokenvault/internal/middleware"
	"github.com/bingify/tokenvault/internal/repository"
	"github.com/bingify/tokenvault/internal/server"
	tokensvc "github.com/bingify/tokenvault/internal/service/token"
	"github.com/bingify/tokenvault/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newEncryptor,
			newRedisClient,
			newTokenStore,
			newCredentialCache,
			newCredentialRepo,
			newRefreshRegistry,
			newTokenService,
			newVerifier,
			newAuthMiddleware,
			newRateLimiter,
			handler.NewTokenHandler,
			newCredentialHandler,
			handler.NewHealthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, ensureSchema, startHTTPServer),
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

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newEncryptor(cfg config.Config) (*crypto.Encryptor, error) {
	return crypto.NewEncryptor(cfg.TokenEncryptionKey)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTokenStore(pool *pgxpool.Pool, enc *crypto.Encryptor, node *snowflake.Node) repository.TokenStore {
	return repository.NewPostgresTokenStore(pool, enc, node)
}

func newCredentialCache(pool *pgxpool.Pool, enc *crypto.Encryptor, client redis.UniversalClient, cfg config.Config, logger *zap.Logger) *cacheadapter.CredentialCache {
	repo := repository.NewPostgresCredentialRepo(pool, enc, config.EnvCredentials(cfg))
	return cacheadapter.NewCredentialCache(client, repo, cfg.CredentialCacheTTL, logger)
}

func newCredentialRepo(cache *cacheadapter.CredentialCache) repository.CredentialRepo {
	return cache
}

func newCredentialHandler(cache *cacheadapter.CredentialCache, logger *zap.Logger) *handler.CredentialHandler {
	return handler.NewCredentialHandler(cache, logger)
}

func newRefreshRegistry() oauthadapter.Registry {
	return oauthadapter.NewRegistry(nil)
}

func newTokenService(store repository.TokenStore, creds repository.CredentialRepo, registry oauthadapter.Registry, logger *zap.Logger) *tokensvc.Service {
	return tokensvc.NewService(store, creds, registry, logger)
}

func newVerifier(cfg config.Config) (*auth.Verifier, error) {
	return auth.NewVerifier(cfg.AuthJWTSecret)
}

func newAuthMiddleware(verifier *auth.Verifier) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Verifier: verifier}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func ensureSchema(pool *pgxpool.Pool, logger *zap.Logger) error {
	return bootstrap.EnsureSchema(pool, logger)
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
