package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/opswatch/alert-engine/internal/broker"
	"github.com/opswatch/alert-engine/internal/domain/auth"
)

// IdentityProvider resolves a bearer token to an identity. The identity and
// role system lives outside this service; this is its only contact point.
type IdentityProvider interface {
	IdentityFromToken(ctx context.Context, token string) (auth.Identity, error)
}

// WSHandlerOptions groups dependencies for the notifications endpoint.
type WSHandlerOptions struct {
	Broker   *broker.Broker   // Required: session broker
	Identity IdentityProvider // Required: token authentication
	Logger   *slog.Logger     // Optional: structured logger
}

// notificationsHandler upgrades authenticated clients to a websocket
// session. Unauthenticated requests are rejected before the upgrade, so no
// session is ever registered for them.
type notificationsHandler struct {
	broker   *broker.Broker
	identity IdentityProvider
	logger   *slog.Logger
}

// NewNotificationsHandler builds the /ws/notifications handler.
func NewNotificationsHandler(opts WSHandlerOptions) (http.Handler, error) {
	if opts.Broker == nil {
		return nil, errors.New("Broker is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("IdentityProvider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationsHandler{
		broker:   opts.Broker,
		identity: opts.Identity,
		logger:   logger.With("component", "ws"),
	}, nil
}

func (h *notificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "validation",
			Err:     errors.New("missing bearer token"),
		})
		return
	}

	identity, err := h.identity.IdentityFromToken(r.Context(), token)
	if err != nil || !identity.Valid() {
		h.logger.InfoContext(r.Context(), "rejected websocket connect", "remote", r.RemoteAddr)
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "validation",
			Err:     errors.New("invalid token"),
		})
		return
	}

	srv := websocket.Server{
		Handler: func(ws *websocket.Conn) {
			h.serve(ws, identity)
		},
	}
	srv.ServeHTTP(w, r)
}

// serve runs the read loop for one websocket connection.
func (h *notificationsHandler) serve(ws *websocket.Conn, identity auth.Identity) {
	ctx := ws.Request().Context()

	session, err := h.broker.Connect(ctx, identity, &wsConn{ws: ws})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to register session",
			"user_id", identity.UserID, "err", err)
		_ = ws.Close()
		return
	}
	defer h.broker.Disconnect(session)

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.InfoContext(ctx, "websocket read ended",
					"session_id", session.ID, "err", err)
			}
			return
		}
		h.broker.HandleCommand(ctx, session, []byte(raw))
	}
}

// extractToken pulls the bearer token from the Authorization header, with a
// query-parameter fallback for browser websocket clients that cannot set
// headers.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// wsConn adapts a websocket connection to the broker's Conn interface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) WriteMessage(payload []byte) error {
	return websocket.Message.Send(c.ws, string(payload))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
