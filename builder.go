package goIdentity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/directory"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/keys"
	"github.com/MrEthical07/goIdentity/provider"
	"github.com/google/uuid"
)

const auditEmitTimeout = 5 * time.Second

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config

	directory  directory.Store
	secrets    keys.SecretStore
	jwks       keys.JWKSSource
	keyManager *keys.Manager
	providers  *provider.Registry

	auditSink AuditSink
	logger    *slog.Logger
	newUserID func() string

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDirectory sets the user directory. Required.
func (b *Builder) WithDirectory(store directory.Store) *Builder {
	b.directory = store
	return b
}

// WithKeys sets where the private signing key and the published key set
// come from. A nil jwks uses an HTTP source at Config.JWKSURL.
func (b *Builder) WithKeys(secrets keys.SecretStore, jwks keys.JWKSSource) *Builder {
	b.secrets = secrets
	b.jwks = jwks
	return b
}

// WithKeyManager shares an existing key manager instead of building one.
// It takes precedence over WithKeys.
func (b *Builder) WithKeyManager(m *keys.Manager) *Builder {
	b.keyManager = m
	return b
}

// WithProviders registers provider validators. A guest validator backed by
// the directory is added when the registry has none.
func (b *Builder) WithProviders(r *provider.Registry) *Builder {
	b.providers = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithUserIDGenerator replaces uuid.NewString for new user ids.
func (b *Builder) WithUserIDGenerator(fn func() string) *Builder {
	b.newUserID = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. Nothing is
// fetched from the key store until the first token operation.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("directory store required")
	}
	if b.keyManager == nil && b.secrets == nil {
		return nil, errors.New("signing key source required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
	}

	// -------- KEYS --------
	km := b.keyManager
	if km == nil {
		jwks := b.jwks
		if jwks == nil {
			jwks = keys.NewHTTPJWKSSource(cfg.JWKSURL(), cfg.Keys.JWKSTimeout)
		}
		var err error
		km, err = keys.NewManager(keys.Config{
			Secrets:         b.secrets,
			JWKS:            jwks,
			RefreshInterval: cfg.Keys.RefreshInterval,
			OnRefresh:       engine.observeKeyRefresh,
		})
		if err != nil {
			return nil, err
		}
	}
	engine.keys = km

	codec, err := jwt.NewCodec(km, jwt.Config{
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Leeway:     cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	// -------- PROVIDERS --------
	registry := provider.NewRegistry()
	if b.providers != nil {
		for _, name := range b.providers.Names() {
			v, _ := b.providers.Lookup(name)
			registry.Register(v)
		}
	}
	if _, ok := registry.Lookup(provider.Guest); !ok {
		guest, err := provider.NewGuestValidator(b.directory, cfg.Identity.GuestSecret.secretConfig())
		if err != nil {
			return nil, err
		}
		registry.Register(guest)
	}
	engine.providers = registry

	// -------- FLOWS --------
	newUserID := b.newUserID
	if newUserID == nil {
		newUserID = uuid.NewString
	}
	engine.flow = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Validators: registry,
			Resolve: flows.ResolveDeps{
				Store: b.directory,
				VerifyLinkingToken: func(ctx context.Context, token string) (string, error) {
					claims, err := codec.Verify(ctx, token, cfg.Token.Audience)
					if err != nil {
						return "", err
					}
					return claims.Subject, nil
				},
				NewUserID:         newUserID,
				MaxCreateAttempts: cfg.Identity.MaxCreateAttempts,
				Warn:              logger.Warn,
			},
			IssuePair: codec.IssuePair,
		},
		Refresh: flows.RefreshDeps{
			Verify:    codec.Verify,
			IssuePair: codec.IssuePair,
		},
	})

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: auditEmitTimeout,
		OnDrop: func(ev audit.Event) {
			logger.Warn("goIdentity: audit event dropped", "event", ev.EventType, "user_id", ev.UserID)
		},
	}, b.auditSink)

	b.built = true

	return engine, nil
}
