package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/cache"
	"github.com/seu-repo/ocpp-central/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/ocpp-central/internal/adapter/ocpp/v16"
	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/service/events"
	"github.com/seu-repo/ocpp-central/internal/service/health"
	"github.com/seu-repo/ocpp-central/internal/service/identity"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
	"github.com/seu-repo/ocpp-central/internal/service/wallet"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

const (
	testAPIKey   = "test-key"
	testCurrency = "BRL"
	testRate     = 0.5

	// Short enough that the idle-connector test finishes quickly, long
	// enough that the other scenarios never trip it by accident.
	testWatchdog = time.Second
)

// TestEnv runs the whole control plane in-process: the OCPP listener sits
// behind an httptest server so stations dial a random port, and the HTTP
// API is exercised through app.Test without a listener at all.
type TestEnv struct {
	Registry  *registry.Registry
	Identity  *identity.Service
	Wallet    *wallet.Service
	Publisher *events.Publisher
	OCPP      *v16.Server
	App       *fiber.App

	// OCPPURL is the ws:// base; append /<cpid> to dial a station.
	OCPPURL string

	Log *zap.Logger
}

func newTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	logger := zap.NewNop()

	cfg := &config.Config{}
	cfg.App.Name = "ocpp-central-test"
	cfg.App.Version = "test"
	cfg.HTTP.APIKey = testAPIKey
	cfg.HTTP.ReadTimeout = 10 * time.Second
	cfg.HTTP.WriteTimeout = 10 * time.Second
	cfg.Wallet.Currency = testCurrency
	cfg.Wallet.LowBalanceMark = 10
	cfg.Pricing.PerKWh = testRate
	cfg.Redis.StatusTTL = 2 * time.Second

	reg := registry.New(logger)
	identitySvc := identity.NewService(logger)
	publisher := events.NewPublisher(queue.NewNoopQueue(), logger)
	walletSvc := wallet.NewService(testCurrency, cfg.Wallet.LowBalanceMark, nil, publisher, logger)
	localCache := cache.NewLocalCache(time.Minute, logger)

	ocppServer := v16.NewServer(v16.Config{
		HeartbeatInterval: 300 * time.Second,
		WatchdogTimeout:   testWatchdog,
		CallTimeout:       2 * time.Second,
		QRBaseURL:         "https://pay.example.com/qr",
		RatePerKWh:        testRate,
		Currency:          testCurrency,
	}, v16.Services{
		Registry: reg,
		Identity: identitySvc,
		Wallet:   walletSvc,
		Events:   publisher,
	}, logger)

	ts := httptest.NewServer(ocppServer.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(ocppServer.Stop)
	t.Cleanup(publisher.Close)

	healthSvc := health.NewService(&health.Config{
		Version:   cfg.App.Version,
		Cache:     localCache,
		Bus:       queue.NewNoopQueue(),
		Commander: ocppServer,
	}, logger)

	app := handlers.NewApp(handlers.Deps{
		Config:    cfg,
		Registry:  reg,
		Commander: ocppServer,
		Identity:  identitySvc,
		Wallet:    walletSvc,
		Cache:     localCache,
		Health:    healthSvc,
		Log:       logger,
	})

	return &TestEnv{
		Registry:  reg,
		Identity:  identitySvc,
		Wallet:    walletSvc,
		Publisher: publisher,
		OCPP:      ocppServer,
		App:       app,
		OCPPURL:   "ws" + strings.TrimPrefix(ts.URL, "http") + "/ocpp",
		Log:       logger,
	}
}

// api performs an in-process HTTP request with the test API key attached.
// The generous timeout covers endpoints that wait on an OCPP round trip.
func (env *TestEnv) api(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Api-Key", testAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.App.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// decode drains and closes the response body into out.
func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}
