// Package config loads runtime configuration from the environment.
//
// Every setting has an envconfig tag; main loads a .env file first so
// local development works without exporting anything. Billing transport
// credentials (client certificate and key) can come either from PEM
// files on disk or inline through BILLING_CERT_PEM / BILLING_KEY_PEM,
// which is how they are injected on the hosting platform. The private
// key must be unencrypted PEM.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"billsync/internal/logger"
)

type Config struct {
	// Store (tabular record store) configuration
	StoreBaseURL string `envconfig:"STORE_BASE_URL"`
	StoreToken   string `envconfig:"STORE_TOKEN"`
	StoreTableID string `envconfig:"STORE_TABLE_ID"`

	// Billing provider configuration
	BillingBaseURL  string `envconfig:"BILLING_BASE_URL"`
	BillingClientID string `envconfig:"BILLING_CLIENT_ID"`
	BillingCertFile string `envconfig:"BILLING_CERT_FILE" default:"certs/certificate.pem"`
	BillingKeyFile  string `envconfig:"BILLING_KEY_FILE" default:"certs/private-key.key"`
	BillingCertPEM  string `envconfig:"BILLING_CERT_PEM"`
	BillingKeyPEM   string `envconfig:"BILLING_KEY_PEM"`

	// Date window for the import pass
	WindowStart string `envconfig:"SYNC_WINDOW_START" default:"2025-01-01"`
	WindowEnd   string `envconfig:"SYNC_WINDOW_END" default:"2026-12-31"`

	// Notification channels
	ChatAPIBaseURL  string `envconfig:"CHAT_API_BASE_URL" default:"https://graph.facebook.com/v17.0"`
	ChatToken       string `envconfig:"CHAT_TOKEN"`
	ChatSenderID    string `envconfig:"CHAT_SENDER_ID"`
	EmailAPIBaseURL string `envconfig:"EMAIL_API_BASE_URL" default:"https://api.resend.com"`
	EmailAPIKey     string `envconfig:"EMAIL_API_KEY"`
	EmailFrom       string `envconfig:"EMAIL_FROM"`
	ReportRecipient string `envconfig:"REPORT_RECIPIENT"`

	// Delay between consecutive notification sends
	NotifyDelay time.Duration `envconfig:"NOTIFY_DELAY" default:"1s"`

	// Postal-code lookup
	PostalAPIBaseURL string `envconfig:"POSTAL_API_BASE_URL" default:"https://viacep.com.br"`

	// Trigger server
	ListenAddr   string        `envconfig:"LISTEN_ADDR" default:":3333"`
	APISecret    string        `envconfig:"API_SECRET"`
	RunLogPath   string        `envconfig:"RUN_LOG_PATH" default:"run-log.txt"`
	StatusWindow time.Duration `envconfig:"STATUS_WINDOW" default:"2h"`

	// Logging configuration
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"console"`
	LogTimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02T15:04:05Z07:00"`
	LogOutput     string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.StoreBaseURL == "" {
		return fmt.Errorf("STORE_BASE_URL is required")
	}
	if c.StoreToken == "" {
		return fmt.Errorf("STORE_TOKEN is required")
	}
	if c.StoreTableID == "" {
		return fmt.Errorf("STORE_TABLE_ID is required")
	}
	if c.BillingBaseURL == "" {
		return fmt.Errorf("BILLING_BASE_URL is required")
	}
	if c.BillingClientID == "" {
		return fmt.Errorf("BILLING_CLIENT_ID is required")
	}
	if _, err := time.Parse("2006-01-02", c.WindowStart); err != nil {
		return fmt.Errorf("SYNC_WINDOW_START must be YYYY-MM-DD: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.WindowEnd); err != nil {
		return fmt.Errorf("SYNC_WINDOW_END must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// Window returns the configured import date window.
func (c *Config) Window() (time.Time, time.Time) {
	start, _ := time.Parse("2006-01-02", c.WindowStart)
	end, _ := time.Parse("2006-01-02", c.WindowEnd)
	return start, end
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
