package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	DBSource   string `mapstructure:"DB_SOURCE"`
	Port       string `mapstructure:"SERVER_PORT"`
	Env        string `mapstructure:"ENVIRONMENT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	Timezone   string `mapstructure:"LEDGER_TIMEZONE"`
	DBMaxConns int    `mapstructure:"DB_MAX_CONNS"`

	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange   string `mapstructure:"NOTIFICATION_EXCHANGE"`
	NotificationRoutingKey string `mapstructure:"NOTIFICATION_ROUTING_KEY"`
	NotifyTimeoutSeconds   int    `mapstructure:"NOTIFY_TIMEOUT_SECONDS"`

	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RedeemRateLimitPerMinute int    `mapstructure:"REDEEM_RATE_LIMIT_PER_MINUTE"`

	ReferenceMaxAttempts int `mapstructure:"REFERENCE_MAX_ATTEMPTS"`

	// Location is resolved from Timezone by Load.
	Location *time.Location `mapstructure:"-"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                  "8080",
	"ENVIRONMENT":                  "development",
	"LOG_LEVEL":                    "info",
	"LEDGER_TIMEZONE":              "UTC",
	"DB_MAX_CONNS":                 20,
	"MIGRATE_ON_START":             false,
	"NOTIFICATION_EXCHANGE":        "flexpay.notifications",
	"NOTIFICATION_ROUTING_KEY":     "push.transfer.received",
	"NOTIFY_TIMEOUT_SECONDS":       5,
	"REDIS_RATE_LIMIT_PREFIX":      "flexpay:rate_limit",
	"REDEEM_RATE_LIMIT_PER_MINUTE": 30,
	"REFERENCE_MAX_ATTEMPTS":       8,
}

// Load reads the environment, optionally overlaid on a .env file found in path.
func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	for _, key := range []string{"DB_SOURCE", "RABBITMQ_URL", "REDIS_URL"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logrus.WithError(err).Warn("Failed to read config file; using environment values")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.DBSource = strings.TrimSpace(cfg.DBSource)
	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	cfg.RabbitMQURL = strings.TrimSpace(cfg.RabbitMQURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.RedisRateLimitPrefix = strings.TrimSpace(cfg.RedisRateLimitPrefix)
	if cfg.RedisRateLimitPrefix == "" {
		cfg.RedisRateLimitPrefix = "flexpay:rate_limit"
	}
	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 20
	}
	if cfg.NotifyTimeoutSeconds <= 0 {
		cfg.NotifyTimeoutSeconds = 5
	}
	if cfg.RedeemRateLimitPerMinute < 0 {
		cfg.RedeemRateLimitPerMinute = 0
	}
	if cfg.ReferenceMaxAttempts <= 0 {
		cfg.ReferenceMaxAttempts = 8
	}

	return &cfg, nil
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
