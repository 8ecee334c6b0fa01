// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultKafkaTopic      = "appointments"
	defaultNotifyQueueSize = 256
	defaultRateLimitRPS    = 20
	defaultRateLimitBurst  = 40
	defaultEnvironment     = "development"
)

// Config содержит параметры конфигурации сервиса бронирования.
type Config struct {
	RunAddress           string  `env:"RUN_ADDRESS"`
	DatabaseURI          string  `env:"DATABASE_URI"`
	AuthSecret           string  `env:"AUTH_SECRET"`
	GatewaySecret        string  `env:"GATEWAY_SECRET"`
	NotifyWebhookURL     string  `env:"NOTIFY_WEBHOOK_URL"`
	KafkaBrokers         string  `env:"KAFKA_BROKERS"`
	KafkaTopic           string  `env:"KAFKA_TOPIC"`
	NotifyQueueSize      int     `env:"NOTIFY_QUEUE_SIZE"`
	RedisAddr            string  `env:"REDIS_ADDR"`
	RateLimitRPS         int     `env:"RATE_LIMIT_RPS"`
	RateLimitBurst       int     `env:"RATE_LIMIT_BURST"`
	DefaultFeePercentage float64 `env:"DEFAULT_FEE_PERCENTAGE"`
	SettlementDedup      bool    `env:"SETTLEMENT_DEDUP"`
	Environment          string  `env:"ENV"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения, в том числе загруженные из файла .env, имеют приоритет над флагами.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.StringVar(&cfg.GatewaySecret, "g", "", "shared secret of the payment gateway signing settlement requests")
	flag.StringVar(&cfg.NotifyWebhookURL, "w", "", "webhook URL for appointment notifications")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma separated Kafka brokers for appointment notifications")
	flag.StringVar(&cfg.KafkaTopic, "t", defaultKafkaTopic, "Kafka topic for appointment notifications")
	flag.IntVar(&cfg.NotifyQueueSize, "q", defaultNotifyQueueSize, "notification queue size")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "Redis address for distributed rate limiting")
	flag.IntVar(&cfg.RateLimitRPS, "rps", defaultRateLimitRPS, "requests per second allowed per client")
	flag.IntVar(&cfg.RateLimitBurst, "burst", defaultRateLimitBurst, "request burst allowed per client")
	flag.Float64Var(&cfg.DefaultFeePercentage, "fee", 0, "platform fee percentage applied when a settlement omits it")
	flag.BoolVar(&cfg.SettlementDedup, "dedup", false, "reject repeated settlements of the same source reference")
	flag.StringVar(&cfg.Environment, "env", defaultEnvironment, "environment: development or production")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = defaultKafkaTopic
	}
	if cfg.NotifyQueueSize <= 0 {
		cfg.NotifyQueueSize = defaultNotifyQueueSize
	}
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}

	if cfg.DefaultFeePercentage < 0 || cfg.DefaultFeePercentage > 100 {
		return nil, fmt.Errorf("default fee percentage %v out of range [0, 100]", cfg.DefaultFeePercentage)
	}

	return cfg, nil
}

// Production сообщает, запущен ли сервис в производственном окружении.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}
