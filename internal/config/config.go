// Package config loads the service configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StaffTransportTelegram = "telegram"
	StaffTransportWhatsApp = "whatsapp"
	StaffTransportAMQP     = "amqp"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// DatabaseDriver is "postgres" or "sqlite3".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`

	MaxAttempts   int    `mapstructure:"MAX_ATTEMPTS"`
	RetryInterval string `mapstructure:"RETRY_INTERVAL"`
	// RetryBackoff is a comma-separated list of durations indexed by failures so far.
	RetryBackoff string `mapstructure:"RETRY_BACKOFF"`
	SweepTimeout string `mapstructure:"SWEEP_TIMEOUT"`
	// PendingGrace is how old a PENDING delivery must be before the sweep takes it over.
	PendingGrace  string `mapstructure:"PENDING_GRACE"`
	SenderTimeout string `mapstructure:"SENDER_TIMEOUT"`

	SMTPHost          string `mapstructure:"SMTP_HOST"`
	SMTPPort          int    `mapstructure:"SMTP_PORT"`
	SMTPUser          string `mapstructure:"SMTP_USER"`
	SMTPPass          string `mapstructure:"SMTP_PASS"`
	MailFrom          string `mapstructure:"MAIL_FROM"`
	NotificationEmail string `mapstructure:"NOTIFICATION_EMAIL"`

	CRMURL        string `mapstructure:"CRM_URL"`
	KommoAPIToken string `mapstructure:"KOMMO_API_TOKEN"`
	KommoBaseURL  string `mapstructure:"KOMMO_BASE_URL"`
	KommoStatusID int    `mapstructure:"KOMMO_STATUS_ID"`

	StaffTransport   string `mapstructure:"STAFF_TRANSPORT"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIURL   string `mapstructure:"TELEGRAM_API_URL"`
	StaffChannelID   string `mapstructure:"STAFF_CHANNEL_ID"`

	WhatsAppAccessToken string `mapstructure:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneID     string `mapstructure:"WHATSAPP_PHONE_ID"`
	WhatsAppBaseURL     string `mapstructure:"WHATSAPP_BASE_URL"`
	WhatsAppStaffPhone  string `mapstructure:"WHATSAPP_STAFF_PHONE"`
	WhatsAppTemplate    string `mapstructure:"WHATSAPP_TEMPLATE"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"HTTP_ADDR", "DATABASE_DRIVER", "DATABASE_URL",
	"MAX_ATTEMPTS", "RETRY_INTERVAL", "RETRY_BACKOFF", "SWEEP_TIMEOUT", "PENDING_GRACE", "SENDER_TIMEOUT",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "MAIL_FROM", "NOTIFICATION_EMAIL",
	"CRM_URL", "KOMMO_API_TOKEN", "KOMMO_BASE_URL", "KOMMO_STATUS_ID",
	"STAFF_TRANSPORT", "TELEGRAM_BOT_TOKEN", "TELEGRAM_API_URL", "STAFF_CHANNEL_ID",
	"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_ID", "WHATSAPP_BASE_URL", "WHATSAPP_STAFF_PHONE", "WHATSAPP_TEMPLATE",
	"RABBITMQ_URL", "CORS_ORIGINS",
}

// Load reads .env (if present) and builds a validated Config from the environment.
// Environment variables win over .env values.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only need the channel settings.
func Read() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine (CI, containers)

	v := viper.New()
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_INTERVAL", "60s")
	v.SetDefault("RETRY_BACKOFF", "2s,4s,8s")
	v.SetDefault("SWEEP_TIMEOUT", "50s")
	v.SetDefault("PENDING_GRACE", "60s")
	v.SetDefault("SENDER_TIMEOUT", "10s")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("KOMMO_STATUS_ID", 0)
	v.SetDefault("STAFF_TRANSPORT", StaffTransportTelegram)
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com/v18.0")
	v.SetDefault("WHATSAPP_TEMPLATE", "staff_new_lead")
	v.SetDefault("CORS_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite3" {
		return fmt.Errorf("config: DATABASE_DRIVER must be postgres or sqlite3, got %q", c.DatabaseDriver)
	}
	if c.MaxAttempts < 1 {
		return errors.New("config: MAX_ATTEMPTS must be at least 1")
	}
	if _, err := parseBackoff(c.RetryBackoff); err != nil {
		return err
	}
	switch c.StaffTransport {
	case StaffTransportTelegram, StaffTransportWhatsApp, StaffTransportAMQP:
	default:
		return fmt.Errorf("config: STAFF_TRANSPORT must be telegram, whatsapp or amqp, got %q", c.StaffTransport)
	}
	if c.StaffTransport == StaffTransportAMQP && c.RabbitMQURL == "" {
		return errors.New("config: RABBITMQ_URL is required when STAFF_TRANSPORT=amqp")
	}
	return nil
}

// RetryEvery is the sweep cadence. Returns 60s if unset or invalid.
func (c *Config) RetryEvery() time.Duration {
	return durationOr(c.RetryInterval, 60*time.Second)
}

// SweepDeadline bounds a single sweep. Returns 50s if unset or invalid.
func (c *Config) SweepDeadline() time.Duration {
	return durationOr(c.SweepTimeout, 50*time.Second)
}

// PendingGracePeriod is how long a first attempt may stay unrecorded. Returns 60s if unset or invalid.
func (c *Config) PendingGracePeriod() time.Duration {
	return durationOr(c.PendingGrace, 60*time.Second)
}

// SendTimeout bounds a single channel send. Returns 10s if unset or invalid.
func (c *Config) SendTimeout() time.Duration {
	return durationOr(c.SenderTimeout, 10*time.Second)
}

// Backoff returns the retry backoff table. Falls back to 2s,4s,8s.
func (c *Config) Backoff() []time.Duration {
	table, err := parseBackoff(c.RetryBackoff)
	if err != nil {
		return []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	}
	return table
}

// AllowedOrigins splits CORS_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

func parseBackoff(raw string) ([]time.Duration, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, errors.New("config: RETRY_BACKOFF must list at least one duration")
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("config: invalid RETRY_BACKOFF entry %q", p)
		}
		out = append(out, d)
	}
	return out, nil
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
