package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

// MockStationCommander is a mock implementation of ports.StationCommander
type MockStationCommander struct {
	IsConnectedFunc         func(cpid string) bool
	ConnectedFunc           func() []string
	StartSessionFunc        func(ctx context.Context, cpid string, connector int, idTag, vid, mac string) error
	StopTransactionFunc     func(ctx context.Context, cpid string, transactionID int) error
	ReleaseFunc             func(ctx context.Context, cpid string, connector int) error
	UnlockFunc              func(ctx context.Context, cpid string, connector int) (string, error)
	ResetFunc               func(ctx context.Context, cpid, resetType string) error
	ChangeAvailabilityFunc  func(ctx context.Context, cpid string, connector int, available bool) (string, error)
	ChangeConfigurationFunc func(ctx context.Context, cpid, key, value string) (string, error)
	ConfigurationFunc       func(ctx context.Context, cpid string) ([]domain.ConfigurationKey, error)
}

func (m *MockStationCommander) IsConnected(cpid string) bool {
	if m.IsConnectedFunc != nil {
		return m.IsConnectedFunc(cpid)
	}
	return false
}

func (m *MockStationCommander) Connected() []string {
	if m.ConnectedFunc != nil {
		return m.ConnectedFunc()
	}
	return nil
}

func (m *MockStationCommander) StartSession(ctx context.Context, cpid string, connector int, idTag, vid, mac string) error {
	if m.StartSessionFunc != nil {
		return m.StartSessionFunc(ctx, cpid, connector, idTag, vid, mac)
	}
	return nil
}

func (m *MockStationCommander) StopTransaction(ctx context.Context, cpid string, transactionID int) error {
	if m.StopTransactionFunc != nil {
		return m.StopTransactionFunc(ctx, cpid, transactionID)
	}
	return nil
}

func (m *MockStationCommander) Release(ctx context.Context, cpid string, connector int) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, cpid, connector)
	}
	return nil
}

func (m *MockStationCommander) Unlock(ctx context.Context, cpid string, connector int) (string, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, cpid, connector)
	}
	return "Unlocked", nil
}

func (m *MockStationCommander) Reset(ctx context.Context, cpid, resetType string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, cpid, resetType)
	}
	return nil
}

func (m *MockStationCommander) ChangeAvailability(ctx context.Context, cpid string, connector int, available bool) (string, error) {
	if m.ChangeAvailabilityFunc != nil {
		return m.ChangeAvailabilityFunc(ctx, cpid, connector, available)
	}
	return "Accepted", nil
}

func (m *MockStationCommander) ChangeConfiguration(ctx context.Context, cpid, key, value string) (string, error) {
	if m.ChangeConfigurationFunc != nil {
		return m.ChangeConfigurationFunc(ctx, cpid, key, value)
	}
	return "Accepted", nil
}

func (m *MockStationCommander) Configuration(ctx context.Context, cpid string) ([]domain.ConfigurationKey, error) {
	if m.ConfigurationFunc != nil {
		return m.ConfigurationFunc(ctx, cpid)
	}
	return nil, nil
}

// MockIdentityService is a mock implementation of ports.IdentityService
type MockIdentityService struct {
	ResolveFunc   func(sourceType, sourceValue string) string
	BindFunc      func(sourceType, sourceValue, vid string)
	MergeFunc     func(tempVID, permVID string)
	CanonicalFunc func(vid string) string
	IdentifyFunc  func(id domain.UserIdentifier) (string, error)
	PairsFunc     func() []domain.IdentityPair
}

func (m *MockIdentityService) Resolve(sourceType, sourceValue string) string {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(sourceType, sourceValue)
	}
	return ""
}

func (m *MockIdentityService) Bind(sourceType, sourceValue, vid string) {
	if m.BindFunc != nil {
		m.BindFunc(sourceType, sourceValue, vid)
	}
}

func (m *MockIdentityService) Merge(tempVID, permVID string) {
	if m.MergeFunc != nil {
		m.MergeFunc(tempVID, permVID)
	}
}

func (m *MockIdentityService) Canonical(vid string) string {
	if m.CanonicalFunc != nil {
		return m.CanonicalFunc(vid)
	}
	return vid
}

func (m *MockIdentityService) Identify(id domain.UserIdentifier) (string, error) {
	if m.IdentifyFunc != nil {
		return m.IdentifyFunc(id)
	}
	if _, _, ok := id.Source(); !ok {
		return "", errors.New("empty identifier")
	}
	return "VID:0000000001", nil
}

func (m *MockIdentityService) Pairs() []domain.IdentityPair {
	if m.PairsFunc != nil {
		return m.PairsFunc()
	}
	return nil
}

// MockWalletService is a mock implementation of ports.WalletService
type MockWalletService struct {
	BalanceFunc    func(vid string) float64
	AccountFunc    func(vid string) (float64, bool)
	TopUpFunc      func(vid string, amount float64) (float64, error)
	DeductFunc     func(vid string, amount float64) (float64, error)
	DeductUpToFunc func(vid string, amount float64, reference string) float64
	HistoryFunc    func(vid string) []domain.WalletTransaction
}

func (m *MockWalletService) Balance(vid string) float64 {
	if m.BalanceFunc != nil {
		return m.BalanceFunc(vid)
	}
	return 0
}

func (m *MockWalletService) Account(vid string) (float64, bool) {
	if m.AccountFunc != nil {
		return m.AccountFunc(vid)
	}
	return 0, false
}

func (m *MockWalletService) TopUp(vid string, amount float64) (float64, error) {
	if m.TopUpFunc != nil {
		return m.TopUpFunc(vid, amount)
	}
	return amount, nil
}

func (m *MockWalletService) Deduct(vid string, amount float64) (float64, error) {
	if m.DeductFunc != nil {
		return m.DeductFunc(vid, amount)
	}
	return 0, nil
}

func (m *MockWalletService) DeductUpTo(vid string, amount float64, reference string) float64 {
	if m.DeductUpToFunc != nil {
		return m.DeductUpToFunc(vid, amount, reference)
	}
	return amount
}

func (m *MockWalletService) History(vid string) []domain.WalletTransaction {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(vid)
	}
	return nil
}

// MockPaymentGateway is a mock implementation of ports.PaymentGateway
type MockPaymentGateway struct {
	CreatePaymentIntentFunc func(ctx context.Context, amount float64, currency string, vid string) (*domain.PaymentIntent, error)
	ConfirmPaymentFunc      func(ctx context.Context, paymentID string) error
	RefundPaymentFunc       func(ctx context.Context, paymentID string) error
}

func (m *MockPaymentGateway) CreatePaymentIntent(ctx context.Context, amount float64, currency string, vid string) (*domain.PaymentIntent, error) {
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, amount, currency, vid)
	}
	return &domain.PaymentIntent{
		ID:           "pi_mock",
		ClientSecret: "pi_mock_secret",
		Amount:       amount,
		Currency:     currency,
		Status:       "requires_confirmation",
	}, nil
}

func (m *MockPaymentGateway) ConfirmPayment(ctx context.Context, paymentID string) error {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, paymentID)
	}
	return nil
}

func (m *MockPaymentGateway) RefundPayment(ctx context.Context, paymentID string) error {
	if m.RefundPaymentFunc != nil {
		return m.RefundPaymentFunc(ctx, paymentID)
	}
	return nil
}

// PublishedEvent is one captured EventPublisher.Publish call
type PublishedEvent struct {
	Subject     string
	ChargePoint string
	Payload     interface{}
}

// MockEventPublisher records published events for assertions
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

func (m *MockEventPublisher) Publish(subject, cpid string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{Subject: subject, ChargePoint: cpid, Payload: payload})
}

// Published returns a snapshot of the captured events
func (m *MockEventPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.Events))
	copy(out, m.Events)
	return out
}

// SentAlert is one captured AlertMailer call
type SentAlert struct {
	Kind        string // faulted, low_balance, cutoff
	ChargePoint string
	Connector   int
	VID         string
	Value       float64
	Transaction int
}

// MockAlertMailer records alerts for assertions
type MockAlertMailer struct {
	mu     sync.Mutex
	Alerts []SentAlert
}

func (m *MockAlertMailer) ConnectorFaulted(ctx context.Context, cpid string, connector int, errorCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, SentAlert{Kind: "faulted", ChargePoint: cpid, Connector: connector})
}

func (m *MockAlertMailer) LowBalance(ctx context.Context, vid string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, SentAlert{Kind: "low_balance", VID: vid, Value: balance})
}

func (m *MockAlertMailer) ZeroCreditCutoff(ctx context.Context, vid string, transactionID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, SentAlert{Kind: "cutoff", VID: vid, Transaction: transactionID})
}

// Sent returns a snapshot of the captured alerts
func (m *MockAlertMailer) Sent() []SentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentAlert, len(m.Alerts))
	copy(out, m.Alerts)
	return out
}

// MockCache is a map-backed implementation of ports.Cache. TTLs are
// accepted and ignored.
type MockCache struct {
	mu      sync.Mutex
	entries map[string]string

	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string]string)}
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return v, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	s, ok := value.(string)
	if !ok {
		return errors.New("mock cache only stores strings")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = s
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MockCache) Ping() error { return nil }

func (m *MockCache) Close() error { return nil }
