package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opswatch/alert-engine/config"
	"github.com/opswatch/alert-engine/internal/adapters/statictoken"
	httpx "github.com/opswatch/alert-engine/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// BuildHTTPServer builds the HTTP server with the notifications endpoint.
// The caller starts it and owns its shutdown.
func BuildHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	identity, err := statictoken.NewFromJSON(cfg.Config.HTTP.IdentityTableJSON)
	if err != nil {
		return nil, fmt.Errorf("build identity provider: %w", err)
	}

	handler, err := httpx.NewRouter(httpx.RouterOptions{
		Broker:   cfg.Services.Broker,
		Identity: identity,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &http.Server{
		Addr:              cfg.Config.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
