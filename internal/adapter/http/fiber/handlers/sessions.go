package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
)

const overviewCacheKey = "snapshot:overview"

// SessionHandler serves the read-side listings: pending starts, running and
// completed transactions, connector status and the merged overview.
type SessionHandler struct {
	registry *registry.Registry
	cache    ports.Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(reg *registry.Registry, cache ports.Cache, cacheTTL time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry: reg,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// Pending handles GET /api/v1/pending
func (h *SessionHandler) Pending(c *fiber.Ctx) error {
	pending := h.registry.PendingSessions()
	return c.JSON(fiber.Map{
		"count":   len(pending),
		"pending": pending,
	})
}

// Active handles GET /api/v1/active
func (h *SessionHandler) Active(c *fiber.Ctx) error {
	active := h.registry.ActiveSessions()
	return c.JSON(fiber.Map{
		"count":        len(active),
		"transactions": active,
	})
}

// History handles GET /api/v1/history
func (h *SessionHandler) History(c *fiber.Ctx) error {
	history := h.registry.CompletedSessions()
	return c.JSON(fiber.Map{
		"count":    len(history),
		"sessions": history,
	})
}

// Status handles GET /api/v1/status
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	connectors := h.registry.ConnectorStatuses()
	return c.JSON(fiber.Map{
		"count":      len(connectors),
		"connectors": connectors,
	})
}

// Overview handles GET /api/v1/overview. Dashboards poll this once a
// second, so the merged snapshot is cached for a short TTL.
func (h *SessionHandler) Overview(c *fiber.Ctx) error {
	if raw, err := h.cache.Get(c.Context(), overviewCacheKey); err == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(raw)
	}

	snapshot := fiber.Map{
		"stations":   h.registry.Stations(),
		"connectors": h.registry.ConnectorStatuses(),
		"pending":    h.registry.PendingSessions(),
		"active":     h.registry.ActiveSessions(),
		"time":       time.Now().UTC(),
	}

	if data, err := json.Marshal(snapshot); err == nil {
		if cerr := h.cache.Set(c.Context(), overviewCacheKey, string(data), h.cacheTTL); cerr != nil {
			h.log.Warn("overview cache write failed", zap.Error(cerr))
		}
	}

	return c.JSON(snapshot)
}
