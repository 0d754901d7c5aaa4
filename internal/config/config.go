// Package config содержит логику чтения конфигурации сервиса оформления заказов.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	RedisAddress   string `env:"REDIS_ADDRESS"`
	GatewayAddress string `env:"PAYMENT_GATEWAY_ADDRESS"`
	GatewayKey     string `env:"PAYMENT_GATEWAY_KEY"`
	WebhookSecret  string `env:"PAYMENT_WEBHOOK_SECRET"`
	AuthSecret     string `env:"AUTH_SECRET"`

	ServiceFeeCents int64 `env:"SERVICE_FEE_CENTS"`

	BookingPollAttempts int           `env:"BOOKING_POLL_ATTEMPTS"`
	BookingPollInterval time.Duration `env:"BOOKING_POLL_INTERVAL"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Заданная переменная окружения имеет приоритет над флагом.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "localhost:6379", "redis address for cart storage")
	flag.StringVar(&cfg.GatewayAddress, "g", "https://api.stripe.com", "payment gateway address")
	flag.StringVar(&cfg.GatewayKey, "k", "", "payment gateway secret key")
	flag.StringVar(&cfg.WebhookSecret, "w", "", "payment webhook signing secret")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")
	flag.Int64Var(&cfg.ServiceFeeCents, "f", 15000, "per-item service fee in cents")
	flag.IntVar(&cfg.BookingPollAttempts, "booking-poll-attempts", 3, "booking confirmation poll attempts")
	flag.DurationVar(&cfg.BookingPollInterval, "booking-poll-interval", 5*time.Second, "interval between booking confirmation polls")
	flag.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", 20, "requests per second allowed per client IP, 0 disables limiting")
	flag.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", 40, "request burst allowed per client IP")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.ServiceFeeCents < 0 {
		return nil, fmt.Errorf("service fee must not be negative: %d", cfg.ServiceFeeCents)
	}
	if cfg.BookingPollAttempts < 1 {
		return nil, fmt.Errorf("booking poll attempts must be positive: %d", cfg.BookingPollAttempts)
	}

	return cfg, nil
}
