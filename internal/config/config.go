package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string `validate:"required"`
	Environment    string `validate:"oneof=development staging production test"`
	Database       DatabaseConfig
	Redis          RedisConfig
	EasyOrders     EasyOrdersConfig
	Worker         WorkerConfig
	Admin          AdminConfig
	TrustedProxies []string
	LogLevel       string
}

type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the connection URL used by golang-migrate
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// RedisConfig configures the shared rate limiter and task locks.
// An empty Addr disables Redis and falls back to process-local state.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// Enabled reports whether Redis is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type EasyOrdersConfig struct {
	BaseURL                   string `validate:"required,url"`
	OrderDetailsPath          string `validate:"required"`
	ProductsPath              string `validate:"required"`
	OrderStatusPath           string `validate:"required"`
	IPAllowlist               []string
	PricePolicy               string `validate:"oneof=trust_external reprice_from_internal"`
	PushStatusAfterImport     bool
	AutoImportOnValidate      bool
	MainShopID                string `validate:"omitempty,uuid"`
	RateLimitPerMinute        int    `validate:"gte=1"`
	WaitForOnlinePayment      bool
	OnlinePaymentTimeout      time.Duration `validate:"gt=0"`
	OnlinePaymentPollInterval time.Duration `validate:"gte=1s"`
	OrderTimeout              time.Duration `validate:"gt=0"`
	ProductTimeout            time.Duration `validate:"gt=0"`
}

type WorkerConfig struct {
	Concurrency  int           `validate:"gte=1"`
	PollInterval time.Duration `validate:"gt=0"`
	BatchSize    int           `validate:"gte=1"`
	Lease        time.Duration `validate:"gt=0"`
	MaxAttempts  int           `validate:"gte=1"`
}

type AdminConfig struct {
	// APIKeyHash is the bcrypt hash of the dashboard admin key
	APIKeyHash string
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	pollInterval := getIntOrViper("EASYORDERS_ONLINE_PAYMENT_POLL_INTERVAL_SECONDS", 60)
	if pollInterval < 1 {
		pollInterval = 1
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "easyorders"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrViper("REDIS_ADDR", ""),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       getIntOrViper("REDIS_DB", 0),
		},
		EasyOrders: EasyOrdersConfig{
			BaseURL:                   strings.TrimSuffix(getEnvOrViper("EASYORDERS_BASE_URL", "https://api.easy-orders.net/api/v1"), "/"),
			OrderDetailsPath:          strings.Trim(getEnvOrViper("EASYORDERS_ORDER_DETAILS_PATH", "external-apps/orders"), "/"),
			ProductsPath:              strings.Trim(getEnvOrViper("EASYORDERS_PRODUCTS_PATH", "external-apps/products"), "/"),
			OrderStatusPath:           strings.Trim(getEnvOrViper("EASYORDERS_ORDER_STATUS_PATH", "external-apps/orders/%s/status"), "/"),
			IPAllowlist:               splitList(getEnvOrViper("EASYORDERS_IP_ALLOWLIST", "")),
			PricePolicy:               getEnvOrViper("EASYORDERS_PRICE_POLICY", "trust_external"),
			PushStatusAfterImport:     getBoolOrViper("EASYORDERS_PUSH_STATUS", false),
			AutoImportOnValidate:      getBoolOrViper("EASYORDERS_AUTO_IMPORT", false),
			MainShopID:                getEnvOrViper("EASYORDERS_MAIN_SHOP_ID", ""),
			RateLimitPerMinute:        getIntOrViper("EASYORDERS_RATE_LIMIT_PER_MINUTE", 40),
			WaitForOnlinePayment:      getBoolOrViper("EASYORDERS_WAIT_FOR_ONLINE_PAYMENT", true),
			OnlinePaymentTimeout:      time.Duration(getIntOrViper("EASYORDERS_ONLINE_PAYMENT_TIMEOUT_MINUTES", 30)) * time.Minute,
			OnlinePaymentPollInterval: time.Duration(pollInterval) * time.Second,
			OrderTimeout:              time.Duration(getIntOrViper("EASYORDERS_ORDER_TIMEOUT_SECONDS", 10)) * time.Second,
			ProductTimeout:            time.Duration(getIntOrViper("EASYORDERS_PRODUCT_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:  getIntOrViper("WORKER_CONCURRENCY", 4),
			PollInterval: time.Duration(getIntOrViper("WORKER_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
			BatchSize:    getIntOrViper("WORKER_BATCH_SIZE", 10),
			Lease:        time.Duration(getIntOrViper("WORKER_LEASE_SECONDS", 120)) * time.Second,
			MaxAttempts:  getIntOrViper("WORKER_MAX_ATTEMPTS", 10),
		},
		Admin: AdminConfig{
			APIKeyHash: getEnvOrViper("ADMIN_API_KEY_HASH", ""),
		},
		TrustedProxies: splitList(getEnvOrViper("TRUSTED_PROXIES", "")),
		LogLevel:       getEnvOrViper("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags of the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntOrViper(key string, defaultValue int) int {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return val
}

func getBoolOrViper(key string, defaultValue bool) bool {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue
	}
	return val
}

// splitList parses a comma-separated list, dropping empty entries
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
