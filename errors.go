package goIdentity

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/keys"
)

var (
	// ErrAuthenticationFailed is returned for any rejected provider
	// credential. It never says which check failed.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrCredentialIncomplete means the credential names an existing account
	// without the proof required to use it.
	ErrCredentialIncomplete = errors.New("credential incomplete")
	// ErrLinkingTokenInvalid means the access token presented for linking
	// did not verify.
	ErrLinkingTokenInvalid = errors.New("linking token invalid")
	// ErrLinkTargetMissing means the linking token names a user that does
	// not exist.
	ErrLinkTargetMissing = errors.New("link target user not found")
	// ErrLinkConflict means the target user is already linked to a
	// different identity of the same provider.
	ErrLinkConflict = errors.New("provider already linked to a different identity")
	// ErrUserCreationExhausted means every candidate user id collided.
	ErrUserCreationExhausted = errors.New("user creation attempts exhausted")
	// ErrKeyUnavailable means no signing key could be loaded.
	ErrKeyUnavailable = keys.ErrKeyUnavailable
	// ErrRefreshInvalid is returned for any refresh token that cannot be
	// exchanged.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrUnknownProvider means no validator is registered for the provider.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrDirectoryUnavailable means the user directory could not be reached.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Token verification errors.
var (
	ErrUnknownKey       = jwt.ErrUnknownKey
	ErrIssuerMismatch   = jwt.ErrIssuerMismatch
	ErrAudienceMismatch = jwt.ErrAudienceMismatch
	ErrExpired          = jwt.ErrExpired
	ErrNotYetValid      = jwt.ErrNotYetValid
	ErrBadSignature     = jwt.ErrBadSignature
	ErrMalformedToken   = jwt.ErrMalformed
)

// StatusCode maps an Engine error to the HTTP status a transport should
// answer with. Unrecognized errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrLinkingTokenInvalid),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrUnknownKey),
		errors.Is(err, ErrIssuerMismatch),
		errors.Is(err, ErrAudienceMismatch),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrNotYetValid),
		errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrMalformedToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrLinkTargetMissing),
		errors.Is(err, ErrCredentialIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, ErrLinkConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
