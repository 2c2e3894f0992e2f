package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// ErrorHandler maps domain sentinels onto HTTP statuses. Handlers return
// wrapped sentinels and let this do the translation, so every error body
// has the same {"detail": ...} shape.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrRejected):
			code = fiber.StatusConflict
		case errors.Is(err, domain.ErrInvalidInput):
			code = fiber.StatusBadRequest
		case errors.Is(err, domain.ErrInsufficientFunds):
			code = fiber.StatusPaymentRequired
		case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrDisconnected):
			code = fiber.StatusGatewayTimeout
		}

		if code == fiber.StatusInternalServerError {
			log.Error("internal server error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{"detail": err.Error()})
	}
}
