package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/caarlos0/env/v11"
)

// serverConfig is read from the environment.
type serverConfig struct {
	ListenAddr      string        `env:"IDENTITY_LISTEN_ADDR"      envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"IDENTITY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"IDENTITY_LOG_LEVEL"        envDefault:"info"`

	Issuer     string        `env:"ISSUER_URL,required,notEmpty"`
	Audience   string        `env:"IDENTITY_TOKEN_AUDIENCE"   envDefault:"gamebackend"`
	AccessTTL  time.Duration `env:"IDENTITY_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL time.Duration `env:"IDENTITY_REFRESH_TTL"      envDefault:"144h"`

	KeyRefreshInterval time.Duration `env:"IDENTITY_KEY_REFRESH_INTERVAL" envDefault:"15m"`
	// JWKSURL switches verification keys to an HTTP fetch instead of
	// reading the published set from Redis.
	JWKSURL string `env:"IDENTITY_JWKS_URL"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`
	KeyPrefix     string `env:"IDENTITY_REDIS_PREFIX" envDefault:"gi"`

	// DirectoryBackend is "redis" or "sqlite".
	DirectoryBackend string `env:"IDENTITY_DIRECTORY"   envDefault:"redis"`
	SQLitePath       string `env:"IDENTITY_SQLITE_PATH" envDefault:"identity.db"`

	ProvidersFile string `env:"IDENTITY_PROVIDERS_FILE"`

	AuditLog          bool `env:"IDENTITY_AUDIT_LOG"           envDefault:"false"`
	LatencyHistograms bool `env:"IDENTITY_LATENCY_HISTOGRAMS"  envDefault:"true"`
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DirectoryBackend = strings.ToLower(strings.TrimSpace(cfg.DirectoryBackend))
	switch cfg.DirectoryBackend {
	case "redis", "sqlite":
	default:
		return serverConfig{}, fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
	if cfg.ShutdownTimeout <= 0 {
		return serverConfig{}, errors.New("IDENTITY_SHUTDOWN_TIMEOUT must be > 0")
	}
	return cfg, nil
}

// engineConfig maps the environment onto the Engine configuration.
func (c serverConfig) engineConfig() goIdentity.Config {
	cfg := goIdentity.DefaultConfig()
	cfg.Token.Issuer = c.Issuer
	cfg.Token.Audience = c.Audience
	cfg.Token.AccessTTL = c.AccessTTL
	cfg.Token.RefreshTTL = c.RefreshTTL
	cfg.Keys.RefreshInterval = c.KeyRefreshInterval
	cfg.Keys.JWKSURL = c.JWKSURL
	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistograms
	return cfg
}

func (c serverConfig) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
