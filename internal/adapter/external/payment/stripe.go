package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// StripeService creates card payment intents for wallet top-ups. The VID of
// the topping-up vehicle travels as intent metadata so the webhook side can
// credit the right wallet.
type StripeService struct {
	apiKey string
	log    *zap.Logger
}

func NewStripeService(apiKey string, log *zap.Logger) ports.PaymentGateway {
	stripe.Key = apiKey
	return &StripeService{
		apiKey: apiKey,
		log:    log,
	}
}

func (s *StripeService) CreatePaymentIntent(ctx context.Context, amount float64, currency string, vid string) (*domain.PaymentIntent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("top-up amount must be positive: %w", domain.ErrInvalidInput)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount * 100)),
		Currency: stripe.String(currency),
	}
	if vid != "" {
		params.AddMetadata("vid", vid)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		s.log.Error("failed to create payment intent",
			zap.String("vid", vid),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	s.log.Info("payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("vid", vid),
		zap.Float64("amount", amount),
		zap.String("currency", currency),
	)

	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       amount,
		Currency:     currency,
		Status:       string(pi.Status),
	}, nil
}

func (s *StripeService) ConfirmPayment(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return fmt.Errorf("payment id is required: %w", domain.ErrInvalidInput)
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := paymentintent.Confirm(paymentID, params)
	if err != nil {
		s.log.Error("failed to confirm payment", zap.String("payment_id", paymentID), zap.Error(err))
		return fmt.Errorf("stripe: confirm payment: %w", err)
	}

	s.log.Info("payment confirmed",
		zap.String("payment_id", pi.ID),
		zap.String("status", string(pi.Status)),
	)

	return nil
}

func (s *StripeService) RefundPayment(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return fmt.Errorf("payment id is required: %w", domain.ErrInvalidInput)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		s.log.Error("failed to refund payment", zap.String("payment_id", paymentID), zap.Error(err))
		return fmt.Errorf("stripe: refund payment: %w", err)
	}

	s.log.Info("payment refunded",
		zap.String("refund_id", r.ID),
		zap.String("status", string(r.Status)),
	)

	return nil
}
