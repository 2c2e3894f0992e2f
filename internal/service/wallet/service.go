package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
)

// Service keeps prepaid balances in memory, keyed by VID. An account only
// exists after a top-up; balance reads on unknown VIDs return zero without
// creating one. Balances never go negative: a deduct that would overdraw
// fails atomically.
type Service struct {
	mu       sync.Mutex
	accounts map[string]*domain.Wallet
	history  map[string][]domain.WalletTransaction
	currency string
	lowMark  float64
	alerts   ports.AlertMailer
	events   ports.EventPublisher
	log      *zap.Logger
}

// NewService creates an empty wallet table. alerts and events may be nil;
// lowMark <= 0 disables the low-balance warning.
func NewService(currency string, lowMark float64, alerts ports.AlertMailer, events ports.EventPublisher, log *zap.Logger) *Service {
	return &Service{
		accounts: make(map[string]*domain.Wallet),
		history:  make(map[string][]domain.WalletTransaction),
		currency: currency,
		lowMark:  lowMark,
		alerts:   alerts,
		events:   events,
		log:      log,
	}
}

var _ ports.WalletService = (*Service)(nil)

// Balance returns the current balance, zero for unknown VIDs.
func (s *Service) Balance(vid string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.accounts[vid]; ok {
		return w.Balance
	}
	return 0
}

// Account reports the balance and whether an account exists at all.
func (s *Service) Account(vid string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.accounts[vid]
	if !ok {
		return 0, false
	}
	return w.Balance, true
}

// TopUp adds credit, creating the account when needed. A zero amount is
// allowed and simply opens an empty account.
func (s *Service) TopUp(vid string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("top-up amount must not be negative: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	w := s.accountLocked(vid)
	w.Balance += amount
	w.UpdatedAt = time.Now()
	balance := w.Balance
	s.recordLocked(vid, "topup", amount, balance, "wallet top-up", "")
	s.mu.Unlock()

	s.log.Info("wallet credited",
		zap.String("vid", vid),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance),
	)
	return balance, nil
}

// Deduct removes credit. It fails with ErrInsufficientFunds when the amount
// exceeds the balance, leaving the balance unchanged.
func (s *Service) Deduct(vid string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	w, ok := s.accounts[vid]
	if !ok || w.Balance < amount {
		have := 0.0
		if ok {
			have = w.Balance
		}
		s.mu.Unlock()
		return 0, fmt.Errorf("insufficient balance: have %.2f, need %.2f: %w", have, amount, domain.ErrInsufficientFunds)
	}
	w.Balance -= amount
	w.UpdatedAt = time.Now()
	balance := w.Balance
	s.recordLocked(vid, "charge", amount, balance, "wallet charge", "")
	s.mu.Unlock()

	s.log.Info("wallet charged",
		zap.String("vid", vid),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance),
	)
	s.checkLowBalance(vid, balance)
	return balance, nil
}

// DeductUpTo takes at most amount, clamped to the balance, and returns what
// was actually taken. VIDs without an account are not billed.
func (s *Service) DeductUpTo(vid string, amount float64, reference string) float64 {
	if amount <= 0 {
		return 0
	}

	s.mu.Lock()
	w, ok := s.accounts[vid]
	if !ok || w.Balance <= 0 {
		s.mu.Unlock()
		return 0
	}
	take := amount
	if take > w.Balance {
		take = w.Balance
	}
	w.Balance -= take
	w.UpdatedAt = time.Now()
	balance := w.Balance
	s.recordLocked(vid, "charge", take, balance, "session energy", reference)
	s.mu.Unlock()

	s.log.Info("wallet charged for session",
		zap.String("vid", vid),
		zap.String("reference", reference),
		zap.Float64("amount", take),
		zap.Float64("balance", balance),
	)
	s.checkLowBalance(vid, balance)
	return take
}

// History returns a copy of the VID's wallet transactions, oldest first.
func (s *Service) History(vid string) []domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.history[vid]
	out := make([]domain.WalletTransaction, len(txs))
	copy(out, txs)
	return out
}

func (s *Service) accountLocked(vid string) *domain.Wallet {
	w, ok := s.accounts[vid]
	if !ok {
		now := time.Now()
		w = &domain.Wallet{
			VID:       vid,
			Currency:  s.currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.accounts[vid] = w
		s.log.Info("wallet created", zap.String("vid", vid))
	}
	return w
}

func (s *Service) recordLocked(vid, txType string, amount, balance float64, description, reference string) {
	s.history[vid] = append(s.history[vid], domain.WalletTransaction{
		ID:          uuid.New().String(),
		VID:         vid,
		Type:        txType,
		Amount:      amount,
		Balance:     balance,
		Description: description,
		ReferenceID: reference,
		CreatedAt:   time.Now(),
	})
}

func (s *Service) checkLowBalance(vid string, balance float64) {
	if s.lowMark <= 0 || balance >= s.lowMark {
		return
	}
	if s.events != nil {
		s.events.Publish(domain.SubjectWalletLowBalance, "", map[string]interface{}{
			"vid":     vid,
			"balance": balance,
		})
	}
	if s.alerts != nil {
		go s.alerts.LowBalance(context.Background(), vid, balance)
	}
}
