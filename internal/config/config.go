// Package config loads storefront settings from defaults, an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all storefront configuration.
type Config struct {
	Port       string        `yaml:"port"`
	ModuleName string        `yaml:"module_name"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`

	Database DatabaseConfig `yaml:"database"`
	Identity IdentityConfig `yaml:"identity"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Site     SiteConfig     `yaml:"site"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig configures the relational store. An empty URL and Host leaves the
// store in memory mode.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxIdle     time.Duration `yaml:"conn_max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the connection string, building one from the discrete fields when
// URL is not set.
func (d DatabaseConfig) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" {
		return "", errors.New("missing DATABASE_URL or DB_HOST")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode), nil
}

// IdentityConfig configures the identity provider admin API and session token checks.
type IdentityConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Realm         string        `yaml:"realm"`
	ClientID      string        `yaml:"client_id"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassword string        `yaml:"admin_password"`
	PublicKeyPEM  string        `yaml:"public_key"`
	HMACSecret    string        `yaml:"hmac_secret"`
	Issuer        string        `yaml:"issuer"`
	Timeout       time.Duration `yaml:"timeout"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
	Currency  string `yaml:"currency"`
}

type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Development  bool   `yaml:"development"`
	RedactErrors bool   `yaml:"redact_errors"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		Port:       "8080",
		ModuleName: "ERP-eCommerce",
		CacheTTL:   45 * time.Second,
		Database: DatabaseConfig{
			Port:            "5432",
			User:            "postgres",
			Password:        "postgres",
			Name:            "phone_storefront",
			SSLMode:         "disable",
			MaxOpenConns:    60,
			MaxIdleConns:    20,
			ConnMaxIdle:     5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Identity: IdentityConfig{
			Realm:    "storefront",
			ClientID: "admin-cli",
			Timeout:  10 * time.Second,
		},
		Stripe:  StripeConfig{Currency: "usd"},
		Site:    SiteConfig{BaseURL: "http://localhost:3000"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds a Config. path may be empty; a missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = env("PORT", cfg.Port)
	cfg.ModuleName = env("MODULE_NAME", cfg.ModuleName)
	cfg.CacheTTL = durationEnv("CACHE_TTL", cfg.CacheTTL)

	db := &cfg.Database
	db.URL = env("DATABASE_URL", db.URL)
	db.Host = env("DB_HOST", db.Host)
	db.Port = env("DB_PORT", db.Port)
	db.User = env("DB_USER", db.User)
	db.Password = env("DB_PASSWORD", db.Password)
	db.Name = env("DB_NAME", db.Name)
	db.SSLMode = env("DB_SSLMODE", db.SSLMode)
	db.MaxOpenConns = intEnv("DB_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = intEnv("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxIdle = durationEnv("DB_CONN_MAX_IDLE", db.ConnMaxIdle)
	db.ConnMaxLifetime = durationEnv("DB_CONN_MAX_LIFETIME", db.ConnMaxLifetime)

	id := &cfg.Identity
	id.BaseURL = strings.TrimRight(env("IDP_BASE_URL", id.BaseURL), "/")
	id.Realm = env("IDP_REALM", id.Realm)
	id.ClientID = env("IDP_CLIENT_ID", id.ClientID)
	id.AdminUser = env("IDP_ADMIN_USER", id.AdminUser)
	id.AdminPassword = env("IDP_ADMIN_PASSWORD", id.AdminPassword)
	id.PublicKeyPEM = env("IDP_PUBLIC_KEY", id.PublicKeyPEM)
	id.HMACSecret = env("IDP_HMAC_SECRET", id.HMACSecret)
	id.Issuer = env("IDP_ISSUER", id.Issuer)
	id.Timeout = durationEnv("IDP_TIMEOUT", id.Timeout)

	cfg.Stripe.SecretKey = env("STRIPE_SECRET_KEY", cfg.Stripe.SecretKey)
	cfg.Stripe.Currency = strings.ToLower(env("STRIPE_CURRENCY", cfg.Stripe.Currency))
	cfg.Site.BaseURL = strings.TrimRight(env("SITE_BASE_URL", cfg.Site.BaseURL), "/")

	cfg.Logging.Level = env("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Development = boolEnv("LOG_DEVELOPMENT", cfg.Logging.Development)
	cfg.Logging.RedactErrors = boolEnv("REDACT_ERRORS", cfg.Logging.RedactErrors)
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func boolEnv(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
