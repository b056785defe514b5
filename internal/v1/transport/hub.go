// Package transport is the thin boundary between websocket connections
// and the room engine: it exposes per-connection receive and to-room
// broadcast and nothing else, so the engine stays transport-agnostic.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/djroom/engine/internal/v1/auth"
	"github.com/djroom/engine/internal/v1/metrics"
	"github.com/djroom/engine/internal/v1/room"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TokenValidator is the slice of auth.Validator the hub needs, so tests
// can substitute auth.MockValidator without depending on JWKS.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Hub is the adapter's connection registry. It implements room.Transport
// by resolving a clientId to the *Client currently holding that
// connection, and a roomId to the registered clients attached to that
// room (the *Room is looked up in the Store).
type Hub struct {
	store          *room.Store
	validator      TokenValidator
	allowedOrigins []string
	skipAuth       bool

	mu      sync.RWMutex
	clients map[string]*Client // clientId -> connection
}

// NewHub wires a Hub to the room store it serves.
func NewHub(store *room.Store, validator TokenValidator, allowedOrigins []string, skipAuth bool) *Hub {
	return &Hub{
		store:          store,
		validator:      validator,
		allowedOrigins: auth.ExpandOrigins(allowedOrigins),
		skipAuth:       skipAuth,
		clients:        make(map[string]*Client),
	}
}

func (h *Hub) register(clientID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[clientID] = c
}

func (h *Hub) unregister(c *Client) {
	_, clientID, ok := c.attached()
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[clientID] == c {
		delete(h.clients, clientID)
	}
}

// Send implements room.Transport.
func (h *Hub) Send(clientID string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(data)
}

// Broadcast implements room.Transport: every member of roomID except
// those in exclude gets data.
func (h *Hub) Broadcast(roomID string, data []byte, exclude ...string) {
	r, ok := h.store.GetRoom(roomID)
	if !ok {
		return
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	// The room calls Broadcast while holding its own lock, so members are
	// found through the clients attached to r, never through r itself.
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for clientID, c := range h.clients {
		if excluded[clientID] {
			continue
		}
		if attachedRoom, _, ok := c.attached(); ok && attachedRoom == r {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// ServeWs authenticates the caller, upgrades to a websocket connection,
// and starts its read/write pumps. Room membership is established
// afterwards by the first CREATE_ROOM/JOIN_ROOM frame the client sends.
func (h *Hub) ServeWs(c *gin.Context) {
	token := extractToken(c)
	if token == "" && !h.skipAuth {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	if !h.skipAuth {
		if _, err := h.validator.ValidateToken(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("transport: websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	client := newClient(h, conn, connectionID)

	metrics.ActiveWebSocketConnections.Inc()
	go func() {
		defer metrics.ActiveWebSocketConnections.Dec()
		client.writePump()
	}()
	client.readPump()
}

// Shutdown shuts down every live room's background work through the
// Store; open websocket connections are not closed here.
func (h *Hub) Shutdown(ctx context.Context) {
	h.store.Shutdown(ctx)
}
