// Package config loads runtime settings for the ERP API.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	Session   Session   `yaml:"session"`
	Stripe    Stripe    `yaml:"stripe"`
	Alerts    Alerts    `yaml:"alerts"`
	Bootstrap Bootstrap `yaml:"bootstrap"`
	Logging   Logging   `yaml:"logging"`
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RateBurst       int           `yaml:"rate_burst"`
	RatePerSecond   int           `yaml:"rate_per_second"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Postgres holds the database connection. An empty DSN selects in-memory stores.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Session configures admin session tokens.
type Session struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// Stripe configures the payment provider.
type Stripe struct {
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Tolerance     time.Duration `yaml:"tolerance"`
}

// Alerts configures where reconciliation failures are reported.
type Alerts struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Bootstrap creates the owner account on first start when both fields are set.
type Bootstrap struct {
	OwnerEmail    string `yaml:"owner_email"`
	OwnerPassword string `yaml:"owner_password"`
	OwnerName     string `yaml:"owner_name"`
}

// Logging holds log settings.
type Logging struct {
	Level string `yaml:"level"`
}

// Defaults returns a Config with sensible values.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateBurst:       100,
			RatePerSecond:   50,
		},
		Postgres: Postgres{
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 15 * time.Minute,
		},
		Session: Session{
			TTL: 24 * time.Hour,
		},
		Stripe: Stripe{
			Tolerance: 5 * time.Minute,
		},
		Bootstrap: Bootstrap{
			OwnerName: "Owner",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}
