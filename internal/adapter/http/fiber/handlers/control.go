package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
)

// ControlHandler handles remote charge point commands
type ControlHandler struct {
	commander ports.StationCommander
	registry  *registry.Registry
	log       *zap.Logger
}

// NewControlHandler creates a new control handler
func NewControlHandler(commander ports.StationCommander, reg *registry.Registry, log *zap.Logger) *ControlHandler {
	return &ControlHandler{
		commander: commander,
		registry:  reg,
		log:       log,
	}
}

// StartRequest represents a remote start request
type StartRequest struct {
	ChargePoint string `json:"cpid"`
	ConnectorID int    `json:"connectorId"`
	IDTag       string `json:"idTag,omitempty"`
	VID         string `json:"vid,omitempty"`
	MAC         string `json:"mac,omitempty"`
}

// Start handles POST /api/v1/start
func (h *ControlHandler) Start(c *fiber.Ctx) error {
	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.ChargePoint == "" {
		return fmt.Errorf("cpid is required: %w", domain.ErrInvalidInput)
	}
	if req.ConnectorID < 1 {
		return fmt.Errorf("connectorId must be >= 1: %w", domain.ErrInvalidInput)
	}

	err := h.commander.StartSession(c.Context(), req.ChargePoint, req.ConnectorID, req.IDTag, req.VID, req.MAC)
	if err != nil {
		h.log.Warn("remote start failed",
			zap.String("cpid", req.ChargePoint),
			zap.Int("connector", req.ConnectorID),
			zap.Error(err),
		)
		return err
	}

	return c.JSON(fiber.Map{
		"status":       "Accepted",
		"cpid":         req.ChargePoint,
		"connector_id": req.ConnectorID,
	})
}

// StopRequest represents a remote stop request. Either the transaction id
// or the connector it runs on identifies the target.
type StopRequest struct {
	ChargePoint   string `json:"cpid"`
	TransactionID int    `json:"transactionId,omitempty"`
	ConnectorID   int    `json:"connectorId,omitempty"`
}

// Stop handles POST /api/v1/stop
func (h *ControlHandler) Stop(c *fiber.Ctx) error {
	var req StopRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.ChargePoint == "" {
		return fmt.Errorf("cpid is required: %w", domain.ErrInvalidInput)
	}

	txID := req.TransactionID
	if txID == 0 {
		if req.ConnectorID == 0 {
			return fmt.Errorf("transactionId or connectorId is required: %w", domain.ErrInvalidInput)
		}
		sess, ok := h.registry.ActiveOnConnector(req.ChargePoint, req.ConnectorID)
		if !ok {
			return fmt.Errorf("no active transaction on %s connector %d: %w",
				req.ChargePoint, req.ConnectorID, domain.ErrNotFound)
		}
		txID = sess.TransactionID
	}

	if err := h.commander.StopTransaction(c.Context(), req.ChargePoint, txID); err != nil {
		h.log.Warn("remote stop failed",
			zap.String("cpid", req.ChargePoint),
			zap.Int("transaction_id", txID),
			zap.Error(err),
		)
		return err
	}

	return c.JSON(fiber.Map{
		"status":         "Accepted",
		"cpid":           req.ChargePoint,
		"transaction_id": txID,
	})
}

// ReleaseRequest represents a connector release request
type ReleaseRequest struct {
	ChargePoint string `json:"cpid"`
	ConnectorID int    `json:"connectorId"`
}

// Release handles POST /api/v1/release
func (h *ControlHandler) Release(c *fiber.Ctx) error {
	var req ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.ChargePoint == "" || req.ConnectorID < 1 {
		return fmt.Errorf("cpid and connectorId are required: %w", domain.ErrInvalidInput)
	}

	if err := h.commander.Release(c.Context(), req.ChargePoint, req.ConnectorID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":       "Released",
		"cpid":         req.ChargePoint,
		"connector_id": req.ConnectorID,
	})
}

// ResetRequest represents a station reset request
type ResetRequest struct {
	ChargePoint string `json:"cpid"`
	Type        string `json:"type"`
}

// Reset handles POST /api/v1/reset
func (h *ControlHandler) Reset(c *fiber.Ctx) error {
	var req ResetRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.ChargePoint == "" {
		return fmt.Errorf("cpid is required: %w", domain.ErrInvalidInput)
	}
	if req.Type != "Hard" && req.Type != "Soft" {
		return fmt.Errorf("type must be \"Hard\" or \"Soft\": %w", domain.ErrInvalidInput)
	}

	if err := h.commander.Reset(c.Context(), req.ChargePoint, req.Type); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "Accepted",
		"cpid":   req.ChargePoint,
		"type":   req.Type,
	})
}

// AvailabilityRequest represents a connector availability change
type AvailabilityRequest struct {
	ChargePoint string `json:"cpid"`
	ConnectorID int    `json:"connectorId"`
	Available   bool   `json:"available"`
}

// Availability handles POST /api/v1/availability
func (h *ControlHandler) Availability(c *fiber.Ctx) error {
	var req AvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.ChargePoint == "" {
		return fmt.Errorf("cpid is required: %w", domain.ErrInvalidInput)
	}

	status, err := h.commander.ChangeAvailability(c.Context(), req.ChargePoint, req.ConnectorID, req.Available)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":       status,
		"cpid":         req.ChargePoint,
		"connector_id": req.ConnectorID,
		"available":    req.Available,
	})
}
