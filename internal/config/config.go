package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	PromoServiceURL     string `env:"PROMO_SERVICE_URL,required"`
	InventoryServiceURL string `env:"INVENTORY_SERVICE_URL,required"`
	AlertWebhookURL     string `env:"ALERT_WEBHOOK_URL"`

	WorkerCount     int           `env:"WORKER_COUNT" envDefault:"4"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	MinRetryBackoff time.Duration `env:"MIN_RETRY_BACKOFF" envDefault:"30s"`
	MaxRetryBackoff time.Duration `env:"MAX_RETRY_BACKOFF" envDefault:"10m"`

	ShopifyHTTPTimeout time.Duration `env:"SHOPIFY_HTTP_TIMEOUT" envDefault:"30s"`
	RateLimitDelay     time.Duration `env:"RATE_LIMIT_DELAY" envDefault:"2500ms"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
