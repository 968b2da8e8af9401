// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and applies defaults and bounds.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 5
	defaultRefill         = time.Second
	defaultSendBuffer     = 256
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultShutdown       = 10 * time.Second
	defaultDemoUsers      = 4

	// DevelopmentSecret signs tokens when JWT_SECRET is unset.
	DevelopmentSecret = "development-secret-change-in-production"
)

// Seconds is a duration read either as whole seconds ("5") or as a Go
// duration string ("1500ms").
type Seconds time.Duration

// Decode implements envconfig.Decoder.
func (s *Seconds) Decode(value string) error {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		*s = Seconds(time.Duration(n) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	*s = Seconds(d)
	return nil
}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration.
type Config struct {
	Environment    string   `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	Port           string   `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080,http://localhost:3000"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`

	RateLimitBurst          int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RateLimitRefillInterval Seconds `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1"`

	SendBufferSize  int     `envconfig:"SEND_BUFFER_SIZE" default:"256"`
	JWTSecret       string  `envconfig:"JWT_SECRET"`
	TokenTTL        Seconds `envconfig:"TOKEN_TTL" default:"168h"`
	BadgerPath      string  `envconfig:"BADGER_PATH"`
	SupersedePolicy string  `envconfig:"SUPERSEDE_POLICY" default:"close"`
	ShutdownTimeout Seconds `envconfig:"SHUTDOWN_TIMEOUT" default:"10"`
	DemoUsers       int     `envconfig:"DEMO_USERS" default:"4"`
}

// Default returns a sanitized configuration without reading the environment.
func Default() Config {
	return Config{
		Environment:             "development",
		LogLevel:                "info",
		AllowedOrigins:          []string{"http://localhost:8080", "http://localhost:3000"},
		RateLimitRefillInterval: Seconds(defaultRefill),
		DemoUsers:               defaultDemoUsers,
	}.Sanitize()
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg.Sanitize(), nil
}

// Sanitize replaces unset or out-of-range values with defaults.
func (c Config) Sanitize() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaultBurst
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = Seconds(defaultRefill)
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBuffer
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DevelopmentSecret
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = Seconds(defaultTokenTTL)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = Seconds(defaultShutdown)
	}
	if c.DemoUsers < 0 {
		c.DemoUsers = defaultDemoUsers
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	for i := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(c.AllowedOrigins[i])
	}
	return c
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool {
	return c.Environment == "production"
}

// RateLimit returns the per-connection limiter settings.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{
		Burst:          c.RateLimitBurst,
		RefillInterval: time.Duration(c.RateLimitRefillInterval),
	}
}
