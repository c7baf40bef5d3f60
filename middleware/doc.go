// Package middleware exposes HTTP middleware that protects backend routes
// with access tokens issued by goIdentity.Engine.
//
// # Guards
//
//   - [Guard]: verifies the bearer access token and injects its claims.
//   - [RequireScope]: rejects requests whose token scope is not allowed.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// token verification itself; every decision is delegated to Engine.Verify.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Reveal why a token was rejected in the response body.
//   - Make authorization decisions beyond the opaque scope string.
package middleware
