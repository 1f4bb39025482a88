package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	MigrateOnStart        bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AuthIssuer            string
	ManagerPIN            string
	StoreName             string
	StoreAddress          string
	ReceiptFooter         string
	StoreTimezone         string
	OversellPolicy        string
	IdempotencyTTLSeconds int
	LowStockCron          string
	CounterRetentionDays  int
	LogLevel              string
	LogFormat             string
	LogFile               string
}

// Load reads an optional config.yaml and lets environment variables with the
// same (upper-cased) names override it.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kasirpos")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		MigrateOnStart:        v.GetBool("migrate_on_start"),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AuthIssuer:            strings.TrimSpace(v.GetString("auth_issuer")),
		ManagerPIN:            strings.TrimSpace(v.GetString("manager_pin")),
		StoreName:             v.GetString("store_name"),
		StoreAddress:          v.GetString("store_address"),
		ReceiptFooter:         v.GetString("receipt_footer"),
		StoreTimezone:         v.GetString("store_timezone"),
		OversellPolicy:        strings.ToLower(strings.TrimSpace(v.GetString("oversell_policy"))),
		IdempotencyTTLSeconds: v.GetInt("idempotency_ttl_seconds"),
		LowStockCron:          v.GetString("low_stock_cron"),
		CounterRetentionDays:  v.GetInt("counter_retention_days"),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		LogFile:               v.GetString("log_file"),
	}

	if cfg.IdempotencyTTLSeconds < 1 {
		cfg.IdempotencyTTLSeconds = 86400
	}
	if cfg.CounterRetentionDays < 2 {
		cfg.CounterRetentionDays = 35
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("migrate_on_start", true)
	v.SetDefault("redis_db", 0)
	v.SetDefault("auth_issuer", "")
	v.SetDefault("store_name", "POS Store")
	v.SetDefault("store_address", "")
	v.SetDefault("receipt_footer", "Thank you for shopping with us")
	v.SetDefault("store_timezone", "Asia/Jakarta")
	v.SetDefault("oversell_policy", "clamp")
	v.SetDefault("idempotency_ttl_seconds", 86400)
	v.SetDefault("low_stock_cron", "0 0 7 * * *")
	v.SetDefault("counter_retention_days", 35)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
