package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.easy-orders.net/api/v1", cfg.EasyOrders.BaseURL)
	assert.Equal(t, "external-apps/orders", cfg.EasyOrders.OrderDetailsPath)
	assert.Equal(t, "trust_external", cfg.EasyOrders.PricePolicy)
	assert.Equal(t, 40, cfg.EasyOrders.RateLimitPerMinute)
	assert.True(t, cfg.EasyOrders.WaitForOnlinePayment)
	assert.Equal(t, 30*time.Minute, cfg.EasyOrders.OnlinePaymentTimeout)
	assert.Equal(t, 60*time.Second, cfg.EasyOrders.OnlinePaymentPollInterval)
	assert.Equal(t, 10*time.Second, cfg.EasyOrders.OrderTimeout)
	assert.Empty(t, cfg.EasyOrders.IPAllowlist)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EASYORDERS_IP_ALLOWLIST", " 10.0.0.1, ,10.0.0.2 ")
	t.Setenv("EASYORDERS_PRICE_POLICY", "reprice_from_internal")
	t.Setenv("EASYORDERS_ONLINE_PAYMENT_POLL_INTERVAL_SECONDS", "0")
	t.Setenv("EASYORDERS_AUTO_IMPORT", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.EasyOrders.IPAllowlist)
	assert.Equal(t, "reprice_from_internal", cfg.EasyOrders.PricePolicy)
	assert.Equal(t, time.Second, cfg.EasyOrders.OnlinePaymentPollInterval, "poll interval is clamped to one second")
	assert.True(t, cfg.EasyOrders.AutoImportOnValidate)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_InvalidPricePolicy(t *testing.T) {
	t.Setenv("EASYORDERS_PRICE_POLICY", "whatever")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_URL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "easyorders", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/easyorders?sslmode=disable", db.URL())
	assert.Contains(t, db.DSN(), "dbname=easyorders")
}
