package goIdentity

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/secret"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/keys"
)

// Config is the complete Engine configuration. Start from DefaultConfig
// and override fields; Build validates the result.
type Config struct {
	Token    TokenConfig
	Keys     KeyConfig
	Identity IdentityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls token claims and lifetimes.
type TokenConfig struct {
	// Issuer is the iss claim and the base of the published key set URL.
	Issuer string
	// Audience is the access token aud claim.
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Leeway tolerates clock skew on exp, nbf and iat checks.
	Leeway time.Duration
}

/*
====================================
KEY CONFIG
====================================
*/

// KeyConfig controls the signing key and key set caches.
type KeyConfig struct {
	RefreshInterval time.Duration
	// JWKSURL overrides <Issuer>/.well-known/jwks.json for the default
	// HTTP key set source.
	JWKSURL     string
	JWKSTimeout time.Duration
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig controls user resolution and guest secrets.
type IdentityConfig struct {
	MaxCreateAttempts int
	GuestSecret       GuestSecretConfig
}

// GuestSecretConfig holds Argon2id parameters for guest secret hashes.
type GuestSecretConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a Config with production defaults. Token.Issuer is
// left empty and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	gs := secret.DefaultConfig()
	return Config{
		Token: TokenConfig{
			Audience:   jwt.DefaultAudience,
			AccessTTL:  jwt.DefaultAccessTTL,
			RefreshTTL: jwt.DefaultRefreshTTL,
		},
		Keys: KeyConfig{
			RefreshInterval: keys.DefaultRefreshInterval,
			JWKSTimeout:     5 * time.Second,
		},
		Identity: IdentityConfig{
			MaxCreateAttempts: flows.DefaultMaxCreateAttempts,
			GuestSecret: GuestSecretConfig{
				Memory:      gs.Memory,
				Time:        gs.Time,
				Parallelism: gs.Parallelism,
				SaltLength:  gs.SaltLength,
				KeyLength:   gs.KeyLength,
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Issuer = strings.TrimSpace(cfg.Token.Issuer)
	out.Token.Audience = strings.TrimSpace(cfg.Token.Audience)
	out.Keys.JWKSURL = strings.TrimSpace(cfg.Keys.JWKSURL)
	return out
}

func (c GuestSecretConfig) secretConfig() secret.Config {
	return secret.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

// JWKSURL returns the key set URL derived from the config.
func (c *Config) JWKSURL() string {
	if c.Keys.JWKSURL != "" {
		return c.Keys.JWKSURL
	}
	return strings.TrimRight(c.Token.Issuer, "/") + "/.well-known/jwks.json"
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Token
	if strings.TrimSpace(c.Token.Issuer) == "" {
		return errors.New("Token Issuer must be set")
	}
	if strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must be set")
	}
	if c.Token.Audience == jwt.RefreshAudience {
		return errors.New("Token Audience must differ from the refresh audience")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Keys
	if c.Keys.RefreshInterval <= 0 {
		return errors.New("Keys RefreshInterval must be > 0")
	}
	if c.Keys.JWKSTimeout <= 0 {
		return errors.New("Keys JWKSTimeout must be > 0")
	}

	// Identity
	if c.Identity.MaxCreateAttempts <= 0 {
		return errors.New("Identity MaxCreateAttempts must be > 0")
	}
	if _, err := secret.NewArgon2(c.Identity.GuestSecret.secretConfig()); err != nil {
		return errors.New("Identity GuestSecret: " + err.Error())
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if !c.Metrics.Enabled && c.Metrics.EnableLatencyHistograms {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
