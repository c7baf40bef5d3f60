package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SecretWriter reads and replaces the active private key.
type SecretWriter interface {
	SecretStore
	PutPrivateKey(ctx context.Context, jwk []byte) error
}

// Publisher reads and writes the public documents served under
// /.well-known/.
type Publisher interface {
	PublishedJWKS(ctx context.Context) (*JWKSet, error)
	PublishJWKS(ctx context.Context, set *JWKSet) error
	PublishOpenIDConfiguration(ctx context.Context, doc OpenIDConfiguration) error
}

// OpenIDConfiguration is the discovery document describing the issuer.
type OpenIDConfiguration struct {
	Issuer                 string   `json:"issuer"`
	JWKSURI                string   `json:"jwks_uri"`
	SigningAlgValues       []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported        []string `json:"scopes_supported"`
	SubjectTypesSupported  []string `json:"subject_types_supported,omitempty"`
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`
}

// Rotator performs one key rotation step.
type Rotator struct {
	Secrets   SecretWriter
	Publisher Publisher
	Algorithm string
	Issuer    string
	Scopes    []string
	// NewKeyID defaults to a random uuid.
	NewKeyID func() string
}

// Rotate generates a new key, publishes a JWKS holding the new key and the
// currently active key, then stores the new private key. Publishing first
// keeps every token signed with the new key verifiable. The active key is
// taken from the secret store, so a rotation that failed after publishing
// does not push the signing key out of the set.
func (r *Rotator) Rotate(ctx context.Context) (string, error) {
	if r.Secrets == nil || r.Publisher == nil {
		return "", errors.New("keys: rotator requires secret writer and publisher")
	}
	issuer := strings.TrimRight(r.Issuer, "/")
	if issuer == "" {
		return "", errors.New("keys: rotator requires issuer")
	}
	newKID := r.NewKeyID
	if newKID == nil {
		newKID = uuid.NewString
	}
	alg := r.Algorithm
	if alg == "" {
		alg = AlgorithmRS256
	}

	kid := newKID()
	priv, err := Generate(alg, kid)
	if err != nil {
		return "", err
	}

	previous, err := r.Publisher.PublishedJWKS(ctx)
	if err != nil {
		return "", fmt.Errorf("read published jwks: %w", err)
	}

	active, err := r.activeKeyID(ctx)
	if err != nil {
		return "", err
	}

	next := &JWKSet{Keys: []JWK{priv.Public()}}
	if kept, ok := retained(previous, active); ok {
		next.Keys = append(next.Keys, kept.Public())
	}
	if err := r.Publisher.PublishJWKS(ctx, next); err != nil {
		return "", fmt.Errorf("publish jwks: %w", err)
	}

	raw, err := json.Marshal(priv)
	if err != nil {
		return "", fmt.Errorf("encode private jwk: %w", err)
	}
	if err := r.Secrets.PutPrivateKey(ctx, raw); err != nil {
		return "", fmt.Errorf("store private key: %w", err)
	}

	scopes := r.Scopes
	if len(scopes) == 0 {
		scopes = []string{"guest", "authenticated"}
	}
	doc := OpenIDConfiguration{
		Issuer:                 issuer,
		JWKSURI:                issuer + "/.well-known/jwks.json",
		SigningAlgValues:       []string{alg},
		ScopesSupported:        scopes,
		SubjectTypesSupported:  []string{"public"},
		ResponseTypesSupported: []string{"token"},
	}
	if err := r.Publisher.PublishOpenIDConfiguration(ctx, doc); err != nil {
		return "", fmt.Errorf("publish openid configuration: %w", err)
	}

	return kid, nil
}

// activeKeyID returns the kid of the stored private key, or "" when none has
// been stored yet.
func (r *Rotator) activeKeyID(ctx context.Context) (string, error) {
	raw, err := r.Secrets.CurrentPrivateKey(ctx)
	if errors.Is(err, ErrNoPrivateKey) || (err == nil && len(raw) == 0) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read active private key: %w", err)
	}
	key, err := ParsePrivateJWK(raw)
	if err != nil {
		return "", fmt.Errorf("parse active private key: %w", err)
	}
	return key.KeyID, nil
}

// retained picks the public key to publish next to a new one: the active
// key when it is in the set, else the newest published key.
func retained(set *JWKSet, active string) (JWK, bool) {
	if set == nil || len(set.Keys) == 0 {
		return JWK{}, false
	}
	if active != "" {
		if k, ok := set.Find(active); ok {
			return k, true
		}
	}
	return set.Keys[0], true
}
