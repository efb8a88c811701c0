package httpx

import (
	"log/slog"
	"net/http"

	"github.com/opswatch/alert-engine/internal/broker"
)

// RouterOptions groups dependencies for NewRouter.
type RouterOptions struct {
	Broker   *broker.Broker   // Required: session broker
	Identity IdentityProvider // Required: token authentication
	Logger   *slog.Logger     // Optional: structured logger
}

// NewRouter builds the service mux: the notifications websocket endpoint
// and the health check.
func NewRouter(opts RouterOptions) (http.Handler, error) {
	wsHandler, err := NewNotificationsHandler(WSHandlerOptions{
		Broker:   opts.Broker,
		Identity: opts.Identity,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/ws/notifications", wsHandler)
	return mux, nil
}
