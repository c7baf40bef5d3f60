package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// RefreshAudience is the audience of every refresh token.
const RefreshAudience = "refresh"

// RefreshScope is the scope claim of every refresh token. The scope of the
// access token it renews travels in AccessTokenScope.
const RefreshScope = "refresh"

// Claims is the payload of both token kinds.
type Claims struct {
	Scope string `json:"scope"`
	KeyID string `json:"kid,omitempty"`
	// AccessTokenScope is set on refresh tokens only. It is the scope the
	// next access token is issued with.
	AccessTokenScope string `json:"access_token_scope,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// ExpiresAtUnix returns exp in whole seconds, or 0 when unset.
func (c *Claims) ExpiresAtUnix() int64 {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}
