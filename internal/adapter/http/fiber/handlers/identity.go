package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// IdentityHandler handles vehicle identity resolution
type IdentityHandler struct {
	identity ports.IdentityService
	log      *zap.Logger
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(identity ports.IdentityService, log *zap.Logger) *IdentityHandler {
	return &IdentityHandler{identity: identity, log: log}
}

// Identify handles POST /api/v1/identify. The body is a UserIdentifier;
// the highest-priority populated field resolves (or allocates) the VID.
func (h *IdentityHandler) Identify(c *fiber.Ctx) error {
	var id domain.UserIdentifier
	if err := c.BodyParser(&id); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}

	vid, err := h.identity.Identify(id)
	if err != nil {
		return err
	}

	sourceType, sourceValue, _ := id.Source()
	h.log.Debug("identity resolved",
		zap.String("source_type", sourceType),
		zap.String("source_value", sourceValue),
		zap.String("vid", vid),
	)
	return c.JSON(fiber.Map{"vid": vid})
}

// Pairs handles GET /api/v1/identify. It dumps the forward identity table
// for diagnostics.
func (h *IdentityHandler) Pairs(c *fiber.Ctx) error {
	pairs := h.identity.Pairs()
	return c.JSON(fiber.Map{
		"count": len(pairs),
		"pairs": pairs,
	})
}
