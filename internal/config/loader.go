package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "erp.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := strings.TrimSpace(os.Getenv("ERP_CONFIG")); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom loads the YAML file at yamlPath (optional) over the defaults and
// applies environment overrides.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "ERP_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "ERP_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "ERP_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "ERP_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.MaxBodyBytes, "ERP_MAX_BODY_BYTES")
	setInt(&cfg.Server.RateBurst, "ERP_RATE_BURST")
	setInt(&cfg.Server.RatePerSecond, "ERP_RATE_RPS")
	setList(&cfg.Server.AllowedOrigins, "ERP_ALLOWED_ORIGINS")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt(&cfg.Postgres.MaxOpenConns, "ERP_PG_MAX_OPEN_CONNS")
	setInt(&cfg.Postgres.MaxIdleConns, "ERP_PG_MAX_IDLE_CONNS")
	setDuration(&cfg.Postgres.ConnMaxLifetime, "ERP_PG_CONN_MAX_LIFETIME")

	setString(&cfg.Session.Secret, "ERP_SESSION_SECRET")
	setDuration(&cfg.Session.TTL, "ERP_SESSION_TTL")

	setString(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setDuration(&cfg.Stripe.Tolerance, "STRIPE_WEBHOOK_TOLERANCE")

	setString(&cfg.Alerts.SlackWebhookURL, "ERP_SLACK_WEBHOOK_URL")

	setString(&cfg.Bootstrap.OwnerEmail, "ERP_OWNER_EMAIL")
	setString(&cfg.Bootstrap.OwnerPassword, "ERP_OWNER_PASSWORD")
	setString(&cfg.Bootstrap.OwnerName, "ERP_OWNER_NAME")

	setString(&cfg.Logging.Level, "ERP_LOG_LEVEL")
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if cfg.Server.RateBurst <= 0 || cfg.Server.RatePerSecond <= 0 {
		return errors.New("server rate limit must be positive")
	}
	if cfg.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if strings.TrimSpace(cfg.Session.Secret) == "" {
		return errors.New("session.secret is required (ERP_SESSION_SECRET)")
	}
	if cfg.Stripe.Tolerance <= 0 {
		return errors.New("stripe.tolerance must be positive")
	}
	if (cfg.Bootstrap.OwnerEmail == "") != (cfg.Bootstrap.OwnerPassword == "") {
		return errors.New("bootstrap owner email and password must be set together")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.Logging.Level)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
