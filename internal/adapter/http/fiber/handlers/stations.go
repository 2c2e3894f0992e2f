package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
)

// StationHandler handles station registry endpoints
type StationHandler struct {
	registry  *registry.Registry
	commander ports.StationCommander
	cache     ports.Cache
	cacheTTL  time.Duration
	log       *zap.Logger
}

// NewStationHandler creates a new station handler
func NewStationHandler(
	reg *registry.Registry,
	commander ports.StationCommander,
	cache ports.Cache,
	cacheTTL time.Duration,
	log *zap.Logger,
) *StationHandler {
	return &StationHandler{
		registry:  reg,
		commander: commander,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// CreateStationRequest represents a station registration request
type CreateStationRequest struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// Create handles POST /api/v1/stations
func (h *StationHandler) Create(c *fiber.Ctx) error {
	var req CreateStationRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}

	st := h.registry.CreateStation(req.Name, req.Location)
	h.log.Info("station registered",
		zap.String("cpid", st.Name),
		zap.Int("id", st.ID),
	)
	return c.Status(fiber.StatusCreated).JSON(st)
}

// List handles GET /api/v1/stations
func (h *StationHandler) List(c *fiber.Ctx) error {
	stations := h.registry.Stations()
	return c.JSON(fiber.Map{
		"count":    len(stations),
		"stations": stations,
	})
}

// Get handles GET /api/v1/stations/:id. Numeric ids hit the arena directly;
// anything else is tried as a charge point name.
func (h *StationHandler) Get(c *fiber.Ctx) error {
	view, err := h.lookup(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Delete handles DELETE /api/v1/stations/:id
func (h *StationHandler) Delete(c *fiber.Ctx) error {
	view, err := h.lookup(c.Params("id"))
	if err != nil {
		return err
	}
	h.registry.DeleteStation(view.ID)
	h.log.Info("station deleted", zap.String("cpid", view.Name), zap.Int("id", view.ID))
	return c.JSON(fiber.Map{"deleted": view.ID})
}

// Configuration handles GET /api/v1/stations/:id/configuration. The live
// answer is cached so a slow or briefly offline station can still be
// inspected; cached responses carry "cached": true.
func (h *StationHandler) Configuration(c *fiber.Ctx) error {
	view, err := h.lookup(c.Params("id"))
	if err != nil {
		return err
	}

	cacheKey := "config:" + view.Name
	keys, err := h.commander.Configuration(c.Context(), view.Name)
	if err != nil {
		if cached, ok := h.cachedConfiguration(c, cacheKey); ok {
			return c.JSON(fiber.Map{
				"cpid":   view.Name,
				"keys":   cached,
				"cached": true,
			})
		}
		return err
	}

	if data, merr := json.Marshal(keys); merr == nil {
		if cerr := h.cache.Set(c.Context(), cacheKey, string(data), h.cacheTTL); cerr != nil {
			h.log.Warn("configuration cache write failed", zap.String("cpid", view.Name), zap.Error(cerr))
		}
	}

	return c.JSON(fiber.Map{
		"cpid": view.Name,
		"keys": keys,
	})
}

func (h *StationHandler) cachedConfiguration(c *fiber.Ctx, key string) ([]domain.ConfigurationKey, bool) {
	raw, err := h.cache.Get(c.Context(), key)
	if err != nil {
		return nil, false
	}
	var keys []domain.ConfigurationKey
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, false
	}
	return keys, true
}

func (h *StationHandler) lookup(param string) (registry.StationView, error) {
	if id, err := strconv.Atoi(param); err == nil {
		if view, ok := h.registry.Station(id); ok {
			return view, nil
		}
		return registry.StationView{}, fmt.Errorf("station %d: %w", id, domain.ErrNotFound)
	}
	if view, ok := h.registry.StationByName(param); ok {
		return view, nil
	}
	return registry.StationView{}, fmt.Errorf("station %q: %w", param, domain.ErrNotFound)
}
