package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/cache"
)

// startRedis boots a throwaway Redis and returns its URL. The test is
// skipped when Docker is unavailable, which keeps the suite runnable on
// machines without a daemon.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis connection string: %v", err)
	}
	return url
}

// TestRedisCache runs the cache adapter against a real Redis.
func TestRedisCache(t *testing.T) {
	url := startRedis(t)

	c, err := cache.NewRedisCache(url, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()

	t.Run("SetGet", func(t *testing.T) {
		if err := c.Set(ctx, "status:CP1", "Available", time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := c.Get(ctx, "status:CP1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "Available" {
			t.Errorf("Get = %q, want Available", got)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		_, err := c.Get(ctx, "status:CP-UNKNOWN")
		if !errors.Is(err, cache.ErrMiss) {
			t.Errorf("Get unknown key = %v, want ErrMiss", err)
		}
	})

	t.Run("Expiration", func(t *testing.T) {
		if err := c.Set(ctx, "snapshot:overview", `{"stations":[]}`, 500*time.Millisecond); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, err := c.Get(ctx, "snapshot:overview"); err != nil {
			t.Fatalf("Get before expiry failed: %v", err)
		}

		time.Sleep(time.Second)

		_, err := c.Get(ctx, "snapshot:overview")
		if !errors.Is(err, cache.ErrMiss) {
			t.Errorf("Get after expiry = %v, want ErrMiss", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := c.Set(ctx, "config:CP1", `[{"key":"HeartbeatInterval"}]`, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := c.Delete(ctx, "config:CP1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		_, err := c.Get(ctx, "config:CP1")
		if !errors.Is(err, cache.ErrMiss) {
			t.Errorf("Get after delete = %v, want ErrMiss", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := c.Set(ctx, "status:CP2", "Preparing", time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := c.Set(ctx, "status:CP2", "Charging", time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := c.Get(ctx, "status:CP2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "Charging" {
			t.Errorf("Get = %q, want Charging", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
