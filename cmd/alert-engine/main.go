// Command alert-engine runs the alert generation, deduplication, lifecycle,
// and real-time delivery service. The SERVICES env var picks which modes a
// process runs (http, expiry).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/opswatch/alert-engine/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		logger.Error("invalid service configuration", "err", err)
		os.Exit(1)
	}

	db, err := bootstrap.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database", "err", closeErr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(context.Background(), db, logger); err != nil {
			logger.Error("failed to run migrations", "err", err)
			os.Exit(1)
		}
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = bootstrap.ConnectRedis(cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Error("failed to close redis client", "err", closeErr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		DB:     db,
		Redis:  redisClient,
		Config: &cfg,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to wire services", "err", err)
		os.Exit(1)
	}

	var server *http.Server
	if cfg.IsHTTPServerEnabled() {
		server, err = bootstrap.BuildHTTPServer(&bootstrap.HTTPServerConfig{
			Config:   &cfg,
			Services: services,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("failed to build http server", "err", err)
			os.Exit(1)
		}
	}

	logger.Info("starting alert engine", "services", cfg.Services)
	if err := bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:     &cfg,
		Services:   services,
		HTTPServer: server,
		Logger:     logger,
	}); err != nil {
		slog.Error("service exited with error", "err", err)
		os.Exit(1)
	}
}
