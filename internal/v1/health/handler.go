// Package health exposes liveness/readiness probes for the djroom engine.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/djroom/engine/internal/v1/logging"
	"github.com/djroom/engine/internal/v1/persistence"
)

// CatalogChecker reports whether the track catalog is reachable.
type CatalogChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	version         string
	sink            persistence.Sink
	catalog         CatalogChecker
	activeRooms     func() int
	activeClients   func() int
	persistenceName string
}

// NewHandler builds a Handler. sink and catalog may be nil: a nil sink is
// reported as persistence "disabled" and healthy, and a nil catalog is
// left out of the checks (single-instance / catalog-less mode).
func NewHandler(version string, sink persistence.Sink, catalog CatalogChecker, activeRooms, activeClients func() int) *Handler {
	name := "disabled"
	if sink != nil {
		name = "redis"
	}
	return &Handler{
		version:         version,
		sink:            sink,
		catalog:         catalog,
		activeRooms:     activeRooms,
		activeClients:   activeClients,
		persistenceName: name,
	}
}

// LivenessResponse is the liveness probe body.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Rooms       int               `json:"rooms"`
	Clients     int               `json:"clients"`
	Persistence string            `json:"persistence"`
	Checks      map[string]string `json:"checks"`
	Timestamp   string            `json:"timestamp"`
}

// Liveness always returns 200 while the process is running.
// GET /health/live
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness returns 200 only if every dependency check passes.
// GET /health/ready
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	persistenceStatus := h.checkPersistence(ctx)
	checks["persistence"] = persistenceStatus
	if persistenceStatus != "healthy" {
		allHealthy = false
	}

	if h.catalog != nil {
		catalogStatus := h.checkCatalog(ctx)
		checks["catalog"] = catalogStatus
		if catalogStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	rooms, clients := 0, 0
	if h.activeRooms != nil {
		rooms = h.activeRooms()
	}
	if h.activeClients != nil {
		clients = h.activeClients()
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:      status,
		Version:     h.version,
		Rooms:       rooms,
		Clients:     clients,
		Persistence: h.persistenceName,
		Checks:      checks,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkPersistence(ctx context.Context) string {
	if h.sink == nil {
		return "healthy"
	}
	if err := h.sink.Ping(ctx); err != nil {
		logging.Error(ctx, "persistence health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkCatalog(ctx context.Context) string {
	if err := h.catalog.Ping(ctx); err != nil {
		logging.Error(ctx, "catalog health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// MarshalJSON gives ReadinessResponse stable field ordering.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct{ *Alias }{Alias: (*Alias)(&r)})
}
