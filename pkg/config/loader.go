package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("http.api_key", "API_KEY", "APP_HTTP_API_KEY")
	viper.BindEnv("ocpp.port", "OCPP_PORT", "APP_OCPP_PORT")
	viper.BindEnv("ocpp.qr_base_url", "QR_BASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("queue.driver", "QUEUE_DRIVER")
	viper.BindEnv("queue.url", "QUEUE_URL", "NATS_URL")
	viper.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	viper.BindEnv("vault.address", "VAULT_ADDR")
	viper.BindEnv("vault.token", "VAULT_TOKEN")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file is fine, env vars and defaults carry it
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "ocpp-central")
	viper.SetDefault("app.version", "v1.0.0")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 15*time.Second)
	viper.SetDefault("http.write_timeout", 15*time.Second)

	viper.SetDefault("ocpp.port", 9000)
	viper.SetDefault("ocpp.heartbeat_interval", 300)
	viper.SetDefault("ocpp.watchdog_timeout", 90*time.Second)
	viper.SetDefault("ocpp.call_timeout", 10*time.Second)

	viper.SetDefault("wallet.currency", "BRL")
	viper.SetDefault("wallet.low_balance_mark", 10.0)
	viper.SetDefault("pricing.per_kwh", 0.0)

	viper.SetDefault("redis.status_ttl", 2*time.Second)
	viper.SetDefault("queue.driver", "none")

	viper.SetDefault("email.provider", "smtp")
	viper.SetDefault("email.smtp_port", 1025)
	viper.SetDefault("email.base_url", "http://localhost:3000")

	viper.SetDefault("telemetry.service_name", "ocpp-central")
	viper.SetDefault("telemetry.jaeger_endpoint", "http://localhost:14268/api/traces")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.max_requests", 100)
	viper.SetDefault("rate_limiting.window", time.Minute)
}
