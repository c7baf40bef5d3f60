package jwt

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/keys"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnknownKey       = errors.New("token signed by unknown key")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrBadSignature     = errors.New("token signature invalid")
	ErrMalformed        = errors.New("token malformed")
)

const (
	DefaultAudience   = "gamebackend"
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 6 * 24 * time.Hour
)

// KeyProvider supplies signing and verification keys. *keys.Manager
// satisfies it.
type KeyProvider interface {
	CurrentSigningKey(ctx context.Context) (*keys.SigningKey, error)
	VerificationKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Config configures a Codec.
type Config struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	Now        func() time.Time
}

// Codec signs and verifies tokens. It holds no mutable state.
type Codec struct {
	keys       KeyProvider
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

// IssueRequest describes a single token to sign.
type IssueRequest struct {
	UserID   string
	Scope    string
	Audience string
	TTL      time.Duration
	// FixedExpiry, when > 0, is used as exp instead of now+TTL.
	FixedExpiry      int64
	AccessTokenScope string
}

// Pair is an access token together with its refresh token.
type Pair struct {
	AccessToken      string
	AccessExpiresIn  int64
	RefreshToken     string
	RefreshExpiresIn int64
	// RefreshExpiry is the absolute refresh exp in unix seconds.
	RefreshExpiry int64
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(kp KeyProvider, cfg Config) (*Codec, error) {
	if kp == nil {
		return nil, errors.New("jwt: key provider required")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		return nil, errors.New("jwt: issuer required")
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.Audience == RefreshAudience {
		return nil, errors.New("jwt: access audience must differ from refresh audience")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < time.Second || cfg.RefreshTTL < time.Second {
		return nil, errors.New("jwt: token TTLs must be at least one second")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Codec{
		keys:       kp,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        cfg.Now,
	}, nil
}

// Issuer returns the configured iss value.
func (c *Codec) Issuer() string { return c.issuer }

// Audience returns the access-token audience.
func (c *Codec) Audience() string { return c.audience }

// Issue signs one token with the current signing key and returns it with
// its remaining lifetime in seconds. A key that cannot be obtained fails
// with keys.ErrKeyUnavailable.
func (c *Codec) Issue(ctx context.Context, req IssueRequest) (string, int64, error) {
	token, exp, now, err := c.issue(ctx, req)
	if err != nil {
		return "", 0, err
	}
	return token, exp - now, nil
}

func (c *Codec) issue(ctx context.Context, req IssueRequest) (string, int64, int64, error) {
	if req.UserID == "" {
		return "", 0, 0, errors.New("jwt: subject required")
	}
	if req.Audience == "" {
		return "", 0, 0, errors.New("jwt: audience required")
	}

	key, err := c.keys.CurrentSigningKey(ctx)
	if err != nil {
		return "", 0, 0, err
	}
	method, err := signingMethod(key.Algorithm)
	if err != nil {
		return "", 0, 0, err
	}

	now := c.now().Truncate(time.Second)
	exp := now.Add(req.TTL).Unix()
	if req.FixedExpiry > 0 {
		exp = req.FixedExpiry
	}
	if exp <= now.Unix() {
		return "", 0, 0, ErrExpired
	}

	claims := Claims{
		Scope:            req.Scope,
		KeyID:            key.KeyID,
		AccessTokenScope: req.AccessTokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{req.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(time.Unix(exp, 0)),
		},
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID
	signed, err := token.SignedString(key.Private)
	if err != nil {
		return "", 0, 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, now.Unix(), nil
}

// IssuePair signs an access token and a refresh token for userID. When
// priorRefreshExpiry > 0 the refresh token keeps that exp instead of
// starting a new window.
func (c *Codec) IssuePair(ctx context.Context, userID, scope string, priorRefreshExpiry int64) (Pair, error) {
	access, accessIn, err := c.Issue(ctx, IssueRequest{
		UserID:   userID,
		Scope:    scope,
		Audience: c.audience,
		TTL:      c.accessTTL,
	})
	if err != nil {
		return Pair{}, err
	}

	refresh, refreshExp, now, err := c.issue(ctx, IssueRequest{
		UserID:           userID,
		Scope:            RefreshScope,
		Audience:         RefreshAudience,
		TTL:              c.refreshTTL,
		FixedExpiry:      priorRefreshExpiry,
		AccessTokenScope: scope,
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		AccessExpiresIn:  accessIn,
		RefreshToken:     refresh,
		RefreshExpiresIn: refreshExp - now,
		RefreshExpiry:    refreshExp,
	}, nil
}

// Verify checks signature, issuer, audience and time bounds. The issuer is
// compared before any key lookup so foreign tokens never trigger a key set
// fetch.
func (c *Codec) Verify(ctx context.Context, token, audience string) (*Claims, error) {
	if audience == "" {
		audience = c.audience
	}

	var unverified Claims
	_, parts, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, &unverified)
	if err != nil {
		return nil, ErrMalformed
	}
	if unverified.Issuer != c.issuer {
		return nil, ErrIssuerMismatch
	}
	if len(parts) != 3 || !canonicalSignature(parts[2]) {
		return nil, ErrBadSignature
	}

	options := []jwt.ParserOption{
		jwt.WithStrictDecoding(),
		jwt.WithValidMethods([]string{keys.AlgorithmRS256, keys.AlgorithmEdDSA}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}

	var claims Claims
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return c.keys.VerificationKey(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return &claims, nil
}

// canonicalSignature reports whether seg is unpadded base64url with zero
// trailing bits, so no two token strings share one signature.
func canonicalSignature(seg string) bool {
	if seg == "" {
		return false
	}
	_, err := base64.RawURLEncoding.Strict().DecodeString(seg)
	return err == nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, keys.ErrUnknownKey):
		return ErrUnknownKey
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	default:
		return ErrMalformed
	}
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case keys.AlgorithmRS256:
		return jwt.SigningMethodRS256, nil
	case keys.AlgorithmEdDSA:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", keys.ErrKeyUnavailable, alg)
	}
}
