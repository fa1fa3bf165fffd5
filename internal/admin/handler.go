// Package admin exposes the read-only operational surface: queue
// depths, breaker states, session counts and cache counters. The only
// mutation is the per-service maintenance mode toggle.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/govbridge/govchat/internal/breaker"
	"github.com/govbridge/govchat/internal/cache"
	"github.com/govbridge/govchat/internal/models"
	"github.com/govbridge/govchat/internal/queue"
	"github.com/govbridge/govchat/internal/session"
)

type Handler struct {
	sessions *session.Manager
	queues   *queue.Dispatcher
	breakers *breaker.Registry
	cache    cache.Store
}

func NewHandler(sessions *session.Manager, queues *queue.Dispatcher, breakers *breaker.Registry, cacheStore cache.Store) *Handler {
	return &Handler{
		sessions: sessions,
		queues:   queues,
		breakers: breakers,
		cache:    cacheStore,
	}
}

// Register wires the admin routes onto an echo instance.
func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/v1/admin")
	g.GET("/queues", h.Queues)
	g.GET("/breakers", h.Breakers)
	g.GET("/sessions", h.Sessions)
	g.GET("/cache", h.Cache)
	g.POST("/services/:service/maintenance", h.SetMaintenance)
}

func (h *Handler) Queues(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"queues": h.queues.Depths(),
	})
}

func (h *Handler) Breakers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"breakers": h.breakers.Snapshots(),
	})
}

func (h *Handler) Sessions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	count, err := h.sessions.ActiveCount(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to count sessions"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"active_sessions": count,
	})
}

func (h *Handler) Cache(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Stats())
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

// SetMaintenance pins a service's breaker open (or releases it).
func (h *Handler) SetMaintenance(c echo.Context) error {
	service := models.Service(c.Param("service"))
	if !service.Valid() {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown service"})
	}

	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}

	h.breakers.Get(service).SetMaintenance(req.Enabled)
	return c.JSON(http.StatusOK, map[string]any{
		"service":     service,
		"maintenance": req.Enabled,
	})
}
