package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// CircuitBreaker sheds load from a route group when most requests fail.
// The wallet routes sit behind one so a dead payment provider cannot pile
// requests up.
func CircuitBreaker(name string, log *zap.Logger) fiber.Handler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return func(c *fiber.Ctx) error {
		result, err := cb.Execute(func() (interface{}, error) {
			handlerErr := c.Next()
			if serverFault(handlerErr) {
				return handlerErr, handlerErr
			}
			return handlerErr, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"detail": "service temporarily unavailable",
			})
		}
		if handlerErr, ok := result.(error); ok {
			return handlerErr
		}
		return err
	}
}

// serverFault reports whether an error should count toward tripping the
// breaker. Bad input and empty wallets are the caller's fault, not the
// service's.
func serverFault(err error) bool {
	if err == nil {
		return false
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code >= fiber.StatusInternalServerError
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrRejected):
		return false
	}
	return true
}
