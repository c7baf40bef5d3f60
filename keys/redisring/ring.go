// Package redisring keeps the active private key and the published key
// documents in Redis. A Ring satisfies keys.SecretStore, keys.SecretWriter,
// keys.Publisher and keys.JWKSSource, so one process can rotate keys while
// others sign with them.
package redisring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/keys"
	"github.com/redis/go-redis/v9"
)

// ErrNotPublished is returned when a requested document has never been
// written.
var ErrNotPublished = errors.New("document not published")

// Ring is a Redis-backed key ring.
type Ring struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Ring storing its keys under prefix.
func New(client redis.UniversalClient, prefix string) *Ring {
	if prefix == "" {
		prefix = "gi"
	}
	return &Ring{redis: client, prefix: prefix}
}

func (r *Ring) privateKey() string { return r.prefix + ":keys:private" }
func (r *Ring) jwksKey() string    { return r.prefix + ":keys:jwks" }
func (r *Ring) openIDKey() string  { return r.prefix + ":keys:openid" }

// CurrentPrivateKey implements keys.SecretStore.
func (r *Ring) CurrentPrivateKey(ctx context.Context) ([]byte, error) {
	raw, err := r.redis.Get(ctx, r.privateKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %w", keys.ErrNoPrivateKey, ErrNotPublished)
	}
	return raw, err
}

// PutPrivateKey implements keys.SecretWriter.
func (r *Ring) PutPrivateKey(ctx context.Context, jwk []byte) error {
	return r.redis.Set(ctx, r.privateKey(), jwk, 0).Err()
}

// PublishedJWKS implements keys.Publisher. A ring that has never been
// rotated returns an empty set.
func (r *Ring) PublishedJWKS(ctx context.Context) (*keys.JWKSet, error) {
	raw, err := r.JWKSDocument(ctx)
	if errors.Is(err, ErrNotPublished) {
		return &keys.JWKSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	var set keys.JWKSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode published jwks: %w", err)
	}
	return &set, nil
}

// FetchJWKS implements keys.JWKSSource for in-cluster verification without
// an HTTP hop.
func (r *Ring) FetchJWKS(ctx context.Context) (*keys.JWKSet, error) {
	return r.PublishedJWKS(ctx)
}

// PublishJWKS implements keys.Publisher.
func (r *Ring) PublishJWKS(ctx context.Context, set *keys.JWKSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, r.jwksKey(), raw, 0).Err()
}

// PublishOpenIDConfiguration implements keys.Publisher.
func (r *Ring) PublishOpenIDConfiguration(ctx context.Context, doc keys.OpenIDConfiguration) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, r.openIDKey(), raw, 0).Err()
}

// JWKSDocument returns the raw published JWKS JSON.
func (r *Ring) JWKSDocument(ctx context.Context) ([]byte, error) {
	return r.document(ctx, r.jwksKey())
}

// OpenIDDocument returns the raw openid-configuration JSON.
func (r *Ring) OpenIDDocument(ctx context.Context) ([]byte, error) {
	return r.document(ctx, r.openIDKey())
}

func (r *Ring) document(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotPublished
	}
	return raw, err
}
