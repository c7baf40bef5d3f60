package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoPrivateKey is wrapped by a SecretStore that has never stored a key.
var ErrNoPrivateKey = errors.New("no private key stored")

// SecretStore returns the single currently active private key as a JWK JSON
// document. Rotation scheduling belongs to the store's owner.
type SecretStore interface {
	CurrentPrivateKey(ctx context.Context) ([]byte, error)
}

// JWKSSource returns the published public key set.
type JWKSSource interface {
	FetchJWKS(ctx context.Context) (*JWKSet, error)
}

const maxJWKSBytes = 1 << 20

// HTTPJWKSSource fetches a JWKS document with a plain GET.
type HTTPJWKSSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPJWKSSource returns a source for url with a bounded client timeout.
func NewHTTPJWKSSource(url string, timeout time.Duration) *HTTPJWKSSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPJWKSSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

// FetchJWKS implements JWKSSource.
func (s *HTTPJWKSSource) FetchJWKS(ctx context.Context) (*JWKSet, error) {
	if s == nil || s.URL == "" {
		return nil, errors.New("jwks url not configured")
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}

	var set JWKSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return &set, nil
}
