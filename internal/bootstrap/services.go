package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opswatch/alert-engine/config"
	"github.com/opswatch/alert-engine/internal/broker"
	"github.com/opswatch/alert-engine/internal/core"
	"github.com/opswatch/alert-engine/internal/data"
	"github.com/opswatch/alert-engine/internal/pubsub"
	"github.com/opswatch/alert-engine/internal/service"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds the wired services shared by all service modes.
type ServiceContainer struct {
	Alerts      core.AlertRepository
	Rules       core.AlertRuleRepository
	Ingress     *service.IngressService
	Lifecycle   *service.LifecycleService
	Preferences *service.PreferenceService
	Dedup       *service.DedupEngine
	Expiry      *service.ExpiryScheduler
	Broker      *broker.Broker
	Bus         pubsub.Bus
}

// ServiceDeps groups the external dependencies needed to build services.
type ServiceDeps struct {
	DB     *sql.DB
	Redis  redis.UniversalClient // nil when the Redis backend is disabled
	Config *config.AppConfig
	Logger *slog.Logger
}

// NewServices wires the full service graph. The pub/sub backend and rate
// counters run on Redis when it is configured, in-process otherwise.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.DB == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("db and config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	alertRepo := data.NewAlertRepo(deps.DB)
	ruleRepo := data.NewAlertRuleRepo(deps.DB)
	prefsRepo := data.NewPreferencesRepo(deps.DB)

	var bus pubsub.Bus
	var rateCounters core.RateCounterRepository
	if deps.Redis != nil {
		bus = pubsub.NewRedisBus(pubsub.RedisBusOptions{Client: deps.Redis, Logger: logger})
		rateCounters = data.NewRedisRateRepo(deps.Redis)
	} else {
		bus = pubsub.NewMemoryBus(pubsub.MemoryBusOptions{Logger: logger})
	}

	prefsSvc, err := service.NewPreferenceService(service.PreferenceServiceOptions{
		Repo:   prefsRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire preference service: %w", err)
	}

	dedup, err := service.NewDedupEngine(service.DedupEngineOptions{
		Repo:   alertRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire dedup engine: %w", err)
	}

	lifecycle, err := service.NewLifecycleService(service.LifecycleServiceOptions{
		Repo:   alertRepo,
		Prefs:  prefsRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire lifecycle service: %w", err)
	}

	b, err := broker.NewBroker(broker.BrokerOptions{
		Bus:              bus,
		Alerts:           alertRepo,
		Lifecycle:        lifecycle,
		Preferences:      prefsSvc,
		Rules:            ruleRepo,
		RateCounters:     rateCounters,
		Logger:           logger,
		SessionQueueSize: deps.Config.Broker.SessionQueueSize,
		SnapshotLimit:    deps.Config.Broker.SnapshotLimit,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire broker: %w", err)
	}
	lifecycle.SetPublisher(b)
	dedup.SetPublisher(b)

	ingress, err := service.NewIngressService(service.IngressServiceOptions{
		Repo:      alertRepo,
		Dedup:     dedup,
		Publisher: b,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire ingress service: %w", err)
	}

	expiry, err := service.NewExpiryScheduler(service.ExpirySchedulerOptions{
		Repo:      alertRepo,
		Interval:  deps.Config.Expiry.Interval,
		Publisher: b,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire expiry scheduler: %w", err)
	}

	return ServiceContainer{
		Alerts:      alertRepo,
		Rules:       ruleRepo,
		Ingress:     ingress,
		Lifecycle:   lifecycle,
		Preferences: prefsSvc,
		Dedup:       dedup,
		Expiry:      expiry,
		Broker:      b,
		Bus:         bus,
	}, nil
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config     *config.AppConfig
	Services   ServiceContainer
	HTTPServer *http.Server // nil when the http mode is disabled
	Logger     *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until a shutdown signal is received or a service
// fails, then stops everything gracefully.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)

	if cfg.HTTPServer != nil {
		go func() {
			logger.Info("http server listening", "addr", cfg.HTTPServer.Addr)
			if err := cfg.HTTPServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	var expiryDone chan struct{}
	if cfg.Config.IsExpirySchedulerEnabled() && cfg.Services.Expiry != nil {
		expiryDone = make(chan struct{})
		go func() {
			defer close(expiryDone)
			if err := cfg.Services.Expiry.Run(ctx); err != nil {
				errCh <- fmt.Errorf("expiry scheduler: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("service failed, shutting down", "err", err)
		runErr = err
	}

	cancel()

	if cfg.HTTPServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		if err := cfg.HTTPServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "err", err)
		}
		shutdownCancel()
	}

	cfg.Services.Broker.Close()
	if err := cfg.Services.Bus.Close(); err != nil {
		logger.Error("pubsub close failed", "err", err)
	}

	if expiryDone != nil {
		select {
		case <-expiryDone:
		case <-time.After(shutdownWaitTimeout):
			logger.Warn("expiry scheduler did not stop in time")
		}
	}

	logger.Info("shutdown complete")
	return runErr
}
