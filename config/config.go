package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Payments PaymentsConfig `yaml:"payments"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	// URL overrides the individual fields when set.
	URL string `yaml:"url"`
}

// DSN returns a postgres:// URL usable by both pgxpool and golang-migrate.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes         int     `yaml:"hold_ttl_minutes"`
	AvailabilityTTLSeconds int     `yaml:"availability_cache_ttl_seconds"`
	Timezone               string  `yaml:"timezone"`
	VATPercent             float64 `yaml:"vat_percent"`
	Currency               string  `yaml:"currency"`
	DiscountPercentage     float64 `yaml:"discount_percentage"`
	// AddOnPricesCents lists flat add-on prices. A selectable add-on missing
	// here is quoted later and priced as pending.
	AddOnPricesCents map[string]int64 `yaml:"add_on_prices_cents"`
}

type PaymentsConfig struct {
	SecretKey             string `yaml:"-"`
	WebhookSecret         string `yaml:"-"`
	GatewayTimeoutSeconds int    `yaml:"gateway_timeout_seconds"`
	WebhookTimeoutSeconds int    `yaml:"webhook_timeout_seconds"`
	CheckoutSuccessURL    string `yaml:"checkout_success_url"`
	CheckoutCancelURL     string `yaml:"checkout_cancel_url"`
	BalanceSuccessURL     string `yaml:"balance_success_url"`
	BalanceCancelURL      string `yaml:"balance_cancel_url"`
}

type WorkerConfig struct {
	ExpirationSweep string `yaml:"expiration_sweep"`
	OpsEmail        string `yaml:"ops_email"`
}

func (c *Config) HoldTTL() time.Duration {
	return time.Duration(c.Booking.HoldTTLMinutes) * time.Minute
}

func (c *Config) AvailabilityTTL() time.Duration {
	return time.Duration(c.Booking.AvailabilityTTLSeconds) * time.Second
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Payments.GatewayTimeoutSeconds) * time.Second
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Payments.WebhookTimeoutSeconds) * time.Second
}

// Location is the business timezone every civil day is expressed in.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Booking.Timezone)
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, overlays environment variables and fills defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env lists the settings that may come from the environment. Secrets are
// only ever read from here.
type env struct {
	HTTPAddress         string   `envconfig:"HTTP_ADDRESS"`
	AllowedOrigins      []string `envconfig:"HTTP_ALLOWED_ORIGINS"`
	LogLevel            string   `envconfig:"LOG_LEVEL"`
	LogFormat           string   `envconfig:"LOG_FORMAT"`
	DatabaseURL         string   `envconfig:"DATABASE_URL"`
	DatabasePassword    string   `envconfig:"DATABASE_PASSWORD"`
	RedisAddr           string   `envconfig:"REDIS_ADDR"`
	RedisPassword       string   `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers        []string `envconfig:"KAFKA_BROKERS"`
	StripeSecretKey     string   `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string   `envconfig:"STRIPE_WEBHOOK_SECRET"`
	OpsEmail            string   `envconfig:"OPS_EMAIL"`
}

func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	setString(&c.HTTP.Address, e.HTTPAddress)
	setString(&c.Log.Level, e.LogLevel)
	setString(&c.Log.Format, e.LogFormat)
	setString(&c.Database.URL, e.DatabaseURL)
	setString(&c.Database.Password, e.DatabasePassword)
	setString(&c.Redis.Addr, e.RedisAddr)
	setString(&c.Redis.Password, e.RedisPassword)
	setString(&c.Payments.SecretKey, e.StripeSecretKey)
	setString(&c.Payments.WebhookSecret, e.StripeWebhookSecret)
	setString(&c.Worker.OpsEmail, e.OpsEmail)
	if len(e.AllowedOrigins) > 0 {
		c.HTTP.AllowedOrigins = e.AllowedOrigins
	}
	if len(e.KafkaBrokers) > 0 {
		c.Kafka.Brokers = e.KafkaBrokers
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Address: ":8080"},
		Log:  LogConfig{Level: "info", Format: "json"},
		Kafka: KafkaConfig{
			NotificationsTopic: "booking-notifications",
			GroupID:            "booking-notifier",
		},
		Booking: BookingConfig{
			HoldTTLMinutes:         30,
			AvailabilityTTLSeconds: 60,
			Timezone:               "Europe/Lisbon",
			VATPercent:             23,
			Currency:               "eur",
		},
		Payments: PaymentsConfig{
			GatewayTimeoutSeconds: 15,
			WebhookTimeoutSeconds: 10,
		},
		Worker: WorkerConfig{ExpirationSweep: "@every 1m"},
	}
}

func (c *Config) validate() error {
	if c.Booking.HoldTTLMinutes <= 0 {
		return fmt.Errorf("booking.hold_ttl_minutes must be positive")
	}
	if c.Booking.DiscountPercentage < 0 || c.Booking.DiscountPercentage > 100 {
		return fmt.Errorf("booking.discount_percentage must be within [0, 100]")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	if c.Payments.GatewayTimeoutSeconds <= 0 || c.Payments.WebhookTimeoutSeconds <= 0 {
		return fmt.Errorf("payments timeouts must be positive")
	}
	return nil
}
