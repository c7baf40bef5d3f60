package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureScope
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	Scope   string
	Pair    jwt.Pair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Verify    func(ctx context.Context, token, audience string) (*jwt.Claims, error)
	IssuePair func(ctx context.Context, userID, scope string, priorRefreshExpiry int64) (jwt.Pair, error)
}

// RunRefresh verifies a refresh token and issues a new pair for the same
// user. The new refresh token keeps the original expiry, so a refresh chain
// never outlives its first token.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Verify(ctx, refreshToken, jwt.RefreshAudience)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	if claims.AccessTokenScope == "" {
		return RefreshResult{
			Failure: RefreshFailureScope,
			Err:     errors.New("refresh token carries no access_token_scope"),
			UserID:  claims.Subject,
		}
	}

	pair, err := deps.IssuePair(ctx, claims.Subject, claims.AccessTokenScope, claims.ExpiresAtUnix())
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: claims.Subject}
	}
	return RefreshResult{UserID: claims.Subject, Scope: claims.AccessTokenScope, Pair: pair}
}
