package config

import (
	"fmt"
	"os"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	CodeSalt    string
	CronSecret  string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// DevMode runs without Postgres or Twilio: in-memory stores, a
	// log-only SMS transport, and a fixed dashboard sign-in code.
	DevMode bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    "8080", // default port
		DevMode: os.Getenv("DEV_MODE") == "true",
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.CodeSalt = os.Getenv("CODE_SALT")
	if cfg.CodeSalt == "" {
		return nil, fmt.Errorf("CODE_SALT environment variable is required")
	}

	// CRON_SECRET guards the digest trigger; leaving it unset disables
	// the endpoint rather than leaving it open.
	cfg.CronSecret = os.Getenv("CRON_SECRET")

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioPhoneNumber = os.Getenv("TWILIO_PHONE_NUMBER")

	return cfg, nil
}

// TwilioConfigured reports whether outbound SMS credentials look usable.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}
