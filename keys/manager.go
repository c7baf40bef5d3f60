package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeyUnavailable means no usable signing key could be obtained.
	ErrKeyUnavailable = errors.New("signing key unavailable")
	// ErrUnknownKey means a kid is not present in the published key set,
	// even after a refresh.
	ErrUnknownKey = errors.New("unknown signing key")
)

// DefaultRefreshInterval is how long a fetched private key is used before
// the secret store is consulted again.
const DefaultRefreshInterval = 900 * time.Second

// RefreshKind names the cache a refresh hook fired for.
type RefreshKind string

const (
	RefreshSigningKey RefreshKind = "signing_key"
	RefreshJWKS       RefreshKind = "jwks"
)

// Config wires a Manager.
type Config struct {
	Secrets         SecretStore
	JWKS            JWKSSource
	RefreshInterval time.Duration
	// OnRefresh, when set, observes every refresh attempt.
	OnRefresh func(kind RefreshKind, err error)
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager caches the current signing key and the published key set. A
// Manager is safe for concurrent use; each process keeps its own caches.
type Manager struct {
	secrets         SecretStore
	jwks            JWKSSource
	refreshInterval time.Duration
	onRefresh       func(RefreshKind, error)
	now             func() time.Time

	mu        sync.RWMutex
	signing   *SigningKey
	fetchedAt time.Time

	setMu sync.RWMutex
	set   map[string]crypto.PublicKey

	group singleflight.Group
}

// NewManager validates cfg and returns an empty Manager. Nothing is fetched
// until the first call.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secrets == nil {
		return nil, errors.New("keys: secret store required")
	}
	if cfg.JWKS == nil {
		return nil, errors.New("keys: jwks source required")
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.RefreshInterval < 0 {
		return nil, errors.New("keys: refresh interval must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		secrets:         cfg.Secrets,
		jwks:            cfg.JWKS,
		refreshInterval: cfg.RefreshInterval,
		onRefresh:       cfg.OnRefresh,
		now:             cfg.Now,
	}, nil
}

// CurrentSigningKey returns the cached private key, refreshing it from the
// secret store when the cache is empty or older than the refresh interval.
// A failed refresh returns ErrKeyUnavailable; the expired cached key is not
// used as a fallback.
func (m *Manager) CurrentSigningKey(ctx context.Context) (*SigningKey, error) {
	m.mu.RLock()
	key, fetchedAt := m.signing, m.fetchedAt
	m.mu.RUnlock()
	if key != nil && m.now().Sub(fetchedAt) <= m.refreshInterval {
		return key, nil
	}

	v, err, _ := m.group.Do("signing", func() (any, error) {
		return m.refreshSigningKey(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SigningKey), nil
}

func (m *Manager) refreshSigningKey(ctx context.Context) (*SigningKey, error) {
	raw, err := m.secrets.CurrentPrivateKey(ctx)
	if err == nil && len(raw) == 0 {
		err = errors.New("secret store returned empty key")
	}
	var key *SigningKey
	if err == nil {
		key, err = ParsePrivateJWK(raw)
	}
	m.observe(RefreshSigningKey, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	m.mu.Lock()
	m.signing = key
	m.fetchedAt = m.now()
	m.mu.Unlock()
	return key, nil
}

// PublicKeySet returns the published verification keys by kid, normally the
// current key and the one it replaced. The set is fetched on first use.
func (m *Manager) PublicKeySet(ctx context.Context) (map[string]crypto.PublicKey, error) {
	m.setMu.RLock()
	set := m.set
	m.setMu.RUnlock()

	if set == nil {
		var err error
		if set, err = m.refreshJWKS(ctx); err != nil {
			return nil, err
		}
	}

	out := make(map[string]crypto.PublicKey, len(set))
	for kid, k := range set {
		out[kid] = k
	}
	return out, nil
}

// VerificationKey returns the public key for kid. An unknown kid triggers at
// most one JWKS refresh for this call; concurrent refreshes are shared.
func (m *Manager) VerificationKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty kid", ErrUnknownKey)
	}

	m.setMu.RLock()
	key, ok := m.set[kid]
	m.setMu.RUnlock()
	if ok {
		return key, nil
	}

	set, err := m.refreshJWKS(ctx)
	if err != nil {
		return nil, errors.Join(ErrUnknownKey, err)
	}
	if key, ok := set[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

func (m *Manager) refreshJWKS(ctx context.Context) (map[string]crypto.PublicKey, error) {
	v, err, _ := m.group.Do("jwks", func() (any, error) {
		doc, err := m.jwks.FetchJWKS(ctx)
		if err != nil {
			m.observe(RefreshJWKS, err)
			return nil, err
		}

		set := make(map[string]crypto.PublicKey, len(doc.Keys))
		for _, k := range doc.Keys {
			pub, err := k.PublicKey()
			if err != nil {
				continue
			}
			set[k.KID] = pub
		}
		m.observe(RefreshJWKS, nil)

		m.setMu.Lock()
		m.set = set
		m.setMu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]crypto.PublicKey), nil
}

func (m *Manager) observe(kind RefreshKind, err error) {
	if m.onRefresh != nil {
		m.onRefresh(kind, err)
	}
}
