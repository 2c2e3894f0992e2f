package config

import (
	"time"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	OCPP         OCPPConfig         `mapstructure:"ocpp"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Email        EmailConfig        `mapstructure:"email"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Vault        VaultConfig        `mapstructure:"vault"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type OCPPConfig struct {
	Port              int           `mapstructure:"port"`
	HeartbeatInterval int           `mapstructure:"heartbeat_interval"` // seconds, advertised in BootNotification replies
	WatchdogTimeout   time.Duration `mapstructure:"watchdog_timeout"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	QRBaseURL         string        `mapstructure:"qr_base_url"`
}

type WalletConfig struct {
	Currency       string  `mapstructure:"currency"`
	LowBalanceMark float64 `mapstructure:"low_balance_mark"`
}

type PricingConfig struct {
	PerKWh float64 `mapstructure:"per_kwh"`
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	StatusTTL time.Duration `mapstructure:"status_ttl"` // cache TTL for /status and /overview
}

type QueueConfig struct {
	Driver string `mapstructure:"driver"` // nats, rabbitmq or none
	URL    string `mapstructure:"url"`
}

type EmailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Provider       string `mapstructure:"provider"` // sendgrid or smtp
	From           string `mapstructure:"from"`
	FromName       string `mapstructure:"from_name"`
	OpsEmail       string `mapstructure:"ops_email"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	SMTPHost       string `mapstructure:"smtp_host"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	SMTPUsername   string `mapstructure:"smtp_username"`
	SMTPPassword   string `mapstructure:"smtp_password"`
	SMTPUseTLS     bool   `mapstructure:"smtp_use_tls"`
	BaseURL        string `mapstructure:"base_url"` // console link base in alert bodies
}

type StripeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SecretKey string `mapstructure:"secret_key"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplerParam   float64 `mapstructure:"sampler_param"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposeHeaders  []string `mapstructure:"expose_headers"`
	MaxAge         int      `mapstructure:"max_age"`
	Credentials    bool     `mapstructure:"credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type RateLimitingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}
