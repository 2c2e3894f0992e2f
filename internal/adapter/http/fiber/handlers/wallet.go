package handlers

import (
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// WalletHandler handles prepaid wallet endpoints. Card top-ups go through
// the payment gateway in two steps: an intent is created, the client
// completes it, and the confirm call credits the wallet.
type WalletHandler struct {
	wallet   ports.WalletService
	identity ports.IdentityService
	gateway  ports.PaymentGateway
	currency string
	log      *zap.Logger

	mu      sync.Mutex
	intents map[string]pendingIntent
}

type pendingIntent struct {
	vid    string
	amount float64
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(
	wallet ports.WalletService,
	identity ports.IdentityService,
	gateway ports.PaymentGateway,
	currency string,
	log *zap.Logger,
) *WalletHandler {
	return &WalletHandler{
		wallet:   wallet,
		identity: identity,
		gateway:  gateway,
		currency: currency,
		log:      log,
		intents:  make(map[string]pendingIntent),
	}
}

// WalletRequest represents a balance mutation request. The identifier is
// resolved to a VID before the wallet is touched.
type WalletRequest struct {
	Identifier domain.UserIdentifier `json:"identifier"`
	Amount     float64               `json:"amount"`
}

// TopUp handles POST /api/v1/wallet/topup. A zero amount is allowed: it
// creates an empty account, which arms the zero-credit cutoff for the VID.
func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	var req WalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}

	vid, err := h.identity.Identify(req.Identifier)
	if err != nil {
		return err
	}

	balance, err := h.wallet.TopUp(vid, req.Amount)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"vid":      vid,
		"balance":  balance,
		"currency": h.currency,
	})
}

// Charge handles POST /api/v1/wallet/charge
func (h *WalletHandler) Charge(c *fiber.Ctx) error {
	var req WalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}

	vid, err := h.identity.Identify(req.Identifier)
	if err != nil {
		return err
	}

	balance, err := h.wallet.Deduct(vid, req.Amount)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"vid":      vid,
		"balance":  balance,
		"currency": h.currency,
	})
}

// Get handles GET /api/v1/wallet/:vid
func (h *WalletHandler) Get(c *fiber.Ctx) error {
	vid := c.Params("vid")

	balance, exists := h.wallet.Account(vid)
	if !exists {
		return fmt.Errorf("wallet %s: %w", vid, domain.ErrNotFound)
	}

	return c.JSON(fiber.Map{
		"vid":          vid,
		"balance":      balance,
		"currency":     h.currency,
		"transactions": h.wallet.History(vid),
	})
}

// CreateIntent handles POST /api/v1/wallet/intent. It opens a payment
// intent with the card processor; the wallet is only credited once the
// client confirms the intent.
func (h *WalletHandler) CreateIntent(c *fiber.Ctx) error {
	var req WalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", domain.ErrInvalidInput)
	}

	vid, err := h.identity.Identify(req.Identifier)
	if err != nil {
		return err
	}

	intent, err := h.gateway.CreatePaymentIntent(c.Context(), req.Amount, h.currency, vid)
	if err != nil {
		h.log.Error("payment intent creation failed", zap.String("vid", vid), zap.Error(err))
		return err
	}

	h.mu.Lock()
	h.intents[intent.ID] = pendingIntent{vid: vid, amount: req.Amount}
	h.mu.Unlock()

	h.log.Info("payment intent created",
		zap.String("vid", vid),
		zap.String("payment_id", intent.ID),
		zap.Float64("amount", req.Amount),
	)
	return c.Status(fiber.StatusCreated).JSON(intent)
}

// ConfirmIntentRequest identifies the intent to settle
type ConfirmIntentRequest struct {
	PaymentID string `json:"payment_id"`
}

// ConfirmIntent handles POST /api/v1/wallet/intent/confirm. On success the
// wallet is credited with the intent's amount.
func (h *WalletHandler) ConfirmIntent(c *fiber.Ctx) error {
	var req ConfirmIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	if req.PaymentID == "" {
		return fmt.Errorf("payment_id is required: %w", domain.ErrInvalidInput)
	}

	h.mu.Lock()
	pending, ok := h.intents[req.PaymentID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("payment intent %s: %w", req.PaymentID, domain.ErrNotFound)
	}

	if err := h.gateway.ConfirmPayment(c.Context(), req.PaymentID); err != nil {
		h.log.Error("payment confirmation failed", zap.String("payment_id", req.PaymentID), zap.Error(err))
		return err
	}

	balance, err := h.wallet.TopUp(pending.vid, pending.amount)
	if err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.intents, req.PaymentID)
	h.mu.Unlock()

	h.log.Info("payment intent settled",
		zap.String("vid", pending.vid),
		zap.String("payment_id", req.PaymentID),
		zap.Float64("amount", pending.amount),
	)
	return c.JSON(fiber.Map{
		"vid":      pending.vid,
		"balance":  balance,
		"currency": h.currency,
	})
}
