// Package config loads the server configuration. Values come from defaults,
// then an optional YAML file, then NAJDBE_* environment variables; the
// command line may override the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erazemk/najdbe/internal/auth"
	"github.com/erazemk/najdbe/internal/matching"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Authentication modes.
const (
	AuthJWT  = "jwt"
	AuthOIDC = "oidc"
)

// Config holds all server configuration values.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// Backend selects where reports are kept: sqlite, redis or memory.
	// Accounts always live in the SQLite database.
	Backend string `yaml:"backend"`

	// DBPath is the path to the SQLite database file.
	DBPath string `yaml:"db"`

	Redis RedisConfig `yaml:"redis"`

	// LogPath, when set, also writes logs to this file.
	LogPath string `yaml:"log"`

	// AdminUsername names the account created on first run.
	AdminUsername string `yaml:"admin_username"`

	// PageSize is the default number of reports per page, capped at MaxPageSize.
	PageSize    int `yaml:"page_size"`
	MaxPageSize int `yaml:"max_page_size"`

	// PhotoMaxDimension bounds the longer side of stored photos in pixels.
	PhotoMaxDimension int `yaml:"photo_max_dimension"`

	Auth AuthConfig `yaml:"auth"`

	// Policy sets the roles allowed to make each report transition.
	Policy matching.Policy `yaml:"policy"`
}

// RedisConfig locates the Redis server used by the redis backend.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	// Mode is jwt for local accounts or oidc for campus single sign-on.
	Mode     string          `yaml:"mode"`
	TokenTTL time.Duration   `yaml:"token_ttl"`
	OIDC     auth.OIDCConfig `yaml:"oidc"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:              ":8080",
		Backend:           BackendSQLite,
		DBPath:            "najdbe.db",
		Redis:             RedisConfig{Addr: "localhost:6379", Prefix: "najdbe"},
		AdminUsername:     "admin",
		PageSize:          20,
		MaxPageSize:       100,
		PhotoMaxDimension: 1024,
		Auth: AuthConfig{
			Mode:     AuthJWT,
			TokenTTL: auth.TokenExpiry,
			OIDC:     auth.OIDCConfig{RolesClaim: "roles", NameClaim: "name"},
		},
		Policy: matching.DefaultPolicy(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Addr = envOr("NAJDBE_ADDR", c.Addr)
	c.Backend = envOr("NAJDBE_BACKEND", c.Backend)
	c.DBPath = envOr("NAJDBE_DB", c.DBPath)
	c.Redis.Addr = envOr("NAJDBE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Prefix = envOr("NAJDBE_REDIS_PREFIX", c.Redis.Prefix)
	c.LogPath = envOr("NAJDBE_LOG", c.LogPath)
	c.Auth.Mode = envOr("NAJDBE_AUTH_MODE", c.Auth.Mode)
	c.Auth.OIDC.IssuerURL = envOr("NAJDBE_OIDC_ISSUER", c.Auth.OIDC.IssuerURL)
	c.Auth.OIDC.ClientID = envOr("NAJDBE_OIDC_CLIENT_ID", c.Auth.OIDC.ClientID)

	var err error
	if c.Redis.DB, err = envInt("NAJDBE_REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.PageSize, err = envInt("NAJDBE_PAGE_SIZE", c.PageSize); err != nil {
		return err
	}
	if c.MaxPageSize, err = envInt("NAJDBE_MAX_PAGE_SIZE", c.MaxPageSize); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the redis backend")
	}
	if c.PageSize <= 0 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("page size must be positive and at most max page size (got %d, %d)", c.PageSize, c.MaxPageSize)
	}
	if c.PhotoMaxDimension <= 0 {
		return fmt.Errorf("photo max dimension must be positive")
	}
	switch c.Auth.Mode {
	case AuthJWT:
	case AuthOIDC:
		if c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("oidc mode requires issuer and client id")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
