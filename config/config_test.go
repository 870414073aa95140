package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
http:
  address: ":9090"
database:
  host: db
  port: 5432
  user: rental
  password: secret
  name: rental
  ssl_mode: disable
kafka:
  brokers: ["kafka:9092"]
booking:
  hold_ttl_minutes: 45
  timezone: Europe/Lisbon
  add_on_prices_cents:
    pickup: 10000
payments:
  checkout_success_url: https://example.com/ok
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, 45*time.Minute, cfg.HoldTTL())
	assert.Equal(t, "postgres://rental:secret@db:5432/rental?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "whsec_test", cfg.Payments.WebhookSecret)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout())
	assert.Equal(t, "booking-notifications", cfg.Kafka.NotificationsTopic)
	assert.Equal(t, map[string]int64{"pickup": 10000}, cfg.Booking.AddOnPricesCents)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", loc.String())
}

func TestParse_EnvOverridesDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/x")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/x", cfg.Database.DSN())
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "bad timezone", yaml: "booking:\n  timezone: Mars/Olympus\n"},
		{name: "zero hold", yaml: "booking:\n  hold_ttl_minutes: 0\n"},
		{name: "discount above 100", yaml: "booking:\n  discount_percentage: 120\n"},
		{name: "not yaml", yaml: "http: [:"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
