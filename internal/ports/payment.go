package ports

import (
	"context"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// PaymentGateway fronts the card processor used for wallet top-ups.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount float64, currency string, vid string) (*domain.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, paymentID string) error
	RefundPayment(ctx context.Context, paymentID string) error
}
