package provider

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/keys"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Default endpoints for JWKS-backed providers.
const (
	AppleIssuer  = "https://appleid.apple.com"
	AppleKeysURL = "https://appleid.apple.com/auth/keys"

	// Credential fields.
	FieldAppleToken   = "apple_auth_token"
	FieldCognitoToken = "access_token"
)

// DefaultKeySetTTL is how long a fetched provider key set is trusted.
const DefaultKeySetTTL = 900 * time.Second

// JWKSConfig configures a JWKSAssertionVerifier.
type JWKSConfig struct {
	// TokenField is the credential field holding the JWT.
	TokenField string
	Issuer     string
	// Audience is checked when set.
	Audience string
	// ClientID, when set, must match the client_id claim. Cognito access
	// tokens carry it instead of aud.
	ClientID string
	Source   keys.JWKSSource
	TTL      time.Duration
	Now      func() time.Time
}

// JWKSAssertionVerifier verifies provider-signed JWTs against the
// provider's published key set. The set is cached for TTL and refetched
// when a token names an unknown kid.
type JWKSAssertionVerifier struct {
	cfg JWKSConfig

	mu        sync.RWMutex
	set       map[string]crypto.PublicKey
	fetchedAt time.Time
	group     singleflight.Group
}

// NewJWKSAssertionVerifier validates cfg and returns a verifier.
func NewJWKSAssertionVerifier(cfg JWKSConfig) (*JWKSAssertionVerifier, error) {
	if cfg.TokenField == "" {
		return nil, errors.New("provider: jwks verifier requires a token field")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("provider: jwks verifier requires an issuer")
	}
	if cfg.Source == nil {
		return nil, errors.New("provider: jwks verifier requires a key source")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultKeySetTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWKSAssertionVerifier{cfg: cfg}, nil
}

// NewAppleVerifier verifies Sign in with Apple identity tokens issued for
// appID.
func NewAppleVerifier(appID string, timeout time.Duration) (*JWKSAssertionVerifier, error) {
	if appID == "" {
		return nil, errors.New("provider: apple app id required")
	}
	return NewJWKSAssertionVerifier(JWKSConfig{
		TokenField: FieldAppleToken,
		Issuer:     AppleIssuer,
		Audience:   appID,
		Source:     keys.NewHTTPJWKSSource(AppleKeysURL, timeout),
	})
}

// CognitoIssuer returns the issuer URL of a Cognito user pool.
func CognitoIssuer(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
}

// NewCognitoVerifier verifies access tokens from a Cognito user pool. When
// clientID is set it must match the token's client_id.
func NewCognitoVerifier(region, poolID, clientID string, timeout time.Duration) (*JWKSAssertionVerifier, error) {
	if region == "" || poolID == "" {
		return nil, errors.New("provider: cognito region and pool id required")
	}
	issuer := CognitoIssuer(region, poolID)
	return NewJWKSAssertionVerifier(JWKSConfig{
		TokenField: FieldCognitoToken,
		Issuer:     issuer,
		ClientID:   clientID,
		Source:     keys.NewHTTPJWKSSource(issuer+"/.well-known/jwks.json", timeout),
	})
}

type assertionClaims struct {
	ClientID string `json:"client_id,omitempty"`
	TokenUse string `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

// VerifyAssertion implements AssertionVerifier.
func (v *JWKSAssertionVerifier) VerifyAssertion(ctx context.Context, cred Credential) (string, error) {
	raw, err := cred.Require(v.cfg.TokenField)
	if err != nil {
		return "", err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.AlgorithmRS256}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(v.cfg.Audience))
	}

	var claims assertionClaims
	_, err = jwt.NewParser(options...).ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	})
	if err != nil {
		return "", rejectf("verify assertion: %w", err)
	}
	if v.cfg.ClientID != "" && claims.ClientID != v.cfg.ClientID && !containsAudience(claims.Audience, v.cfg.ClientID) {
		return "", rejectf("assertion issued for another client")
	}
	return claims.Subject, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func (v *JWKSAssertionVerifier) key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("assertion has no kid")
	}

	v.mu.RLock()
	k, ok := v.set[kid]
	fresh := v.cfg.Now().Sub(v.fetchedAt) <= v.cfg.TTL
	v.mu.RUnlock()
	if ok && fresh {
		return k, nil
	}

	set, err := v.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := set[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (v *JWKSAssertionVerifier) refresh(ctx context.Context) (map[string]crypto.PublicKey, error) {
	out, err, _ := v.group.Do("jwks", func() (any, error) {
		doc, err := v.cfg.Source.FetchJWKS(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch provider keys: %w", err)
		}
		set := make(map[string]crypto.PublicKey, len(doc.Keys))
		for _, k := range doc.Keys {
			if pub, err := k.PublicKey(); err == nil {
				set[k.KID] = pub
			}
		}
		v.mu.Lock()
		v.set = set
		v.fetchedAt = v.cfg.Now()
		v.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(map[string]crypto.PublicKey), nil
}
