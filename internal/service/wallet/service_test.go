package wallet

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/mocks"
)

func newTestService() *Service {
	return NewService("BRL", 0, nil, nil, zap.NewNop())
}

func TestService_Balance_UnknownVIDIsZero(t *testing.T) {
	// Arrange
	service := newTestService()

	// Act
	balance := service.Balance("VID:0000000001")

	// Assert
	if balance != 0 {
		t.Fatalf("expected 0, got %f", balance)
	}
	if _, ok := service.Account("VID:0000000001"); ok {
		t.Fatal("balance read must not create an account")
	}
}

func TestService_TopUp_CreatesAccount(t *testing.T) {
	// Arrange
	service := newTestService()

	// Act
	balance, err := service.TopUp("VEH1", 50)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50, got %f", balance)
	}
	if got, ok := service.Account("VEH1"); !ok || got != 50 {
		t.Fatalf("expected account with 50, got %f ok=%v", got, ok)
	}
}

func TestService_TopUp_ZeroOpensEmptyAccount(t *testing.T) {
	// Arrange
	service := newTestService()

	// Act
	balance, err := service.TopUp("VEH1", 0)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %f", balance)
	}
	if _, ok := service.Account("VEH1"); !ok {
		t.Fatal("expected account to exist after zero top-up")
	}
}

func TestService_TopUp_NegativeAmountRejected(t *testing.T) {
	// Arrange
	service := newTestService()

	// Act
	_, err := service.TopUp("VEH1", -1)

	// Assert
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_Deduct_InsufficientFundsLeavesBalance(t *testing.T) {
	// Arrange
	service := newTestService()
	service.TopUp("VEH1", 10)

	// Act
	_, err := service.Deduct("VEH1", 25)

	// Assert
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := service.Balance("VEH1"); got != 10 {
		t.Fatalf("expected balance unchanged at 10, got %f", got)
	}
}

func TestService_Deduct_Succeeds(t *testing.T) {
	// Arrange
	service := newTestService()
	service.TopUp("VEH1", 30)

	// Act
	balance, err := service.Deduct("VEH1", 12.5)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if balance != 17.5 {
		t.Fatalf("expected 17.5, got %f", balance)
	}
}

func TestService_DeductUpTo_ClampsToBalance(t *testing.T) {
	// Arrange
	service := newTestService()
	service.TopUp("VEH1", 5)

	// Act
	taken := service.DeductUpTo("VEH1", 8, "tx-1")

	// Assert
	if taken != 5 {
		t.Fatalf("expected 5 taken, got %f", taken)
	}
	if got := service.Balance("VEH1"); got != 0 {
		t.Fatalf("expected balance 0, got %f", got)
	}
}

func TestService_DeductUpTo_NoAccountIsNotBilled(t *testing.T) {
	// Arrange
	service := newTestService()

	// Act
	taken := service.DeductUpTo("VEH1", 8, "tx-1")

	// Assert
	if taken != 0 {
		t.Fatalf("expected 0 taken, got %f", taken)
	}
	if _, ok := service.Account("VEH1"); ok {
		t.Fatal("billing must not create an account")
	}
}

func TestService_LowBalanceWarning(t *testing.T) {
	// Arrange
	alerts := &mocks.MockAlertMailer{}
	events := &mocks.MockEventPublisher{}
	service := NewService("BRL", 10, alerts, events, zap.NewNop())
	service.TopUp("VEH1", 50)

	// Act: a deduct that stays above the mark is silent.
	service.Deduct("VEH1", 20)

	// Assert
	if got := len(events.Published()); got != 0 {
		t.Fatalf("expected no events above the mark, got %d", got)
	}

	// Act: crossing the mark warns once through both channels.
	service.Deduct("VEH1", 25)

	// Assert
	published := events.Published()
	if len(published) != 1 || published[0].Subject != domain.SubjectWalletLowBalance {
		t.Fatalf("expected one low-balance event, got %+v", published)
	}
	deadline := time.Now().Add(time.Second)
	for len(alerts.Sent()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a low-balance alert")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sent := alerts.Sent()
	if sent[0].Kind != "low_balance" || sent[0].VID != "VEH1" || sent[0].Value != 5 {
		t.Fatalf("unexpected alert %+v", sent[0])
	}
}

func TestService_History_RecordsMutations(t *testing.T) {
	// Arrange
	service := newTestService()
	service.TopUp("VEH1", 30)
	service.Deduct("VEH1", 10)

	// Act
	history := service.History("VEH1")

	// Assert
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[0].Type != "topup" || history[0].Balance != 30 {
		t.Fatalf("unexpected first record %+v", history[0])
	}
	if history[1].Type != "charge" || history[1].Balance != 20 {
		t.Fatalf("unexpected second record %+v", history[1])
	}
}
