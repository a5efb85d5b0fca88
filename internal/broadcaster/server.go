// Package broadcaster implements the WebSocket fanout contract of
// §4.6: one connection per (workflow_id, client), piping that
// workflow's EventBus events to the socket as JSON frames. Grounded
// on the teacher's cmd/fanout/hub.go + client.go + server.go, adapted
// from a Redis-PSubscribe/per-username hub to a direct
// internal/eventbus subscription keyed by workflow id.
package broadcaster

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/logger"
)

// Authenticator validates an auth token and confirms the resulting
// subject owns workflowID, per §4.6's connect-time checks.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, workflowID uuid.UUID) (subject string, err error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades HTTP connections to WebSocket and wires each one to
// an independent EventBus subscription for its workflow id.
type Server struct {
	bus  eventbus.EventBus
	auth Authenticator
	log  *logger.Logger
}

// NewServer builds a broadcaster server over bus, authenticating
// connections via auth.
func NewServer(bus eventbus.EventBus, auth Authenticator, log *logger.Logger) *Server {
	return &Server{bus: bus, auth: auth, log: log}
}

// HandleWebSocket upgrades the connection, validates workflow
// ownership, sends the initial "connected" event, and then streams
// every subsequent event for that workflow until the client
// disconnects (§4.6). Multiple concurrent clients per workflow id are
// independent subscriptions.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request, workflowID uuid.UUID) {
	token := r.URL.Query().Get("auth-token")
	if token == "" {
		http.Error(w, "auth-token query parameter required", http.StatusUnauthorized)
		return
	}

	if _, err := s.auth.Authenticate(r.Context(), token, workflowID); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	// The request context is cancelled as soon as this handler returns,
	// so the subscription is detached from it and ended by sub.Close.
	sub, err := s.bus.Subscribe(context.WithoutCancel(r.Context()), workflowID)
	if err != nil {
		s.log.Error("event subscription failed", "workflow_id", workflowID, "error", err)
		_ = conn.Close()
		return
	}

	client := newClient(conn, sub, s.log)

	connected := eventbus.NewEvent(eventbus.KindConnected, workflowID, map[string]interface{}{"workflow_id": workflowID})
	if payload, err := json.Marshal(connected); err == nil {
		client.send <- payload
	}

	go client.writePump()
	go client.forward()
	go client.readPump(func() {
		sub.Close()
		s.log.Info("websocket client disconnected", "workflow_id", workflowID)
	})
}
