// Package jwt issues and verifies the engine's access and refresh tokens.
//
// Tokens are signed with the current key from a KeyProvider and verified
// against the published key set, so a token signed by the key that was just
// replaced keeps verifying until it expires. Every claim the engine relies
// on (sub, iss, aud, scope, kid, iat, nbf, exp) is carried in the payload;
// kid is also set in the header.
//
// # What this package must NOT do
//
//   - Cache keys itself. Key caching belongs to keys.Manager.
//   - Leak parser diagnostics. Every failure maps to one of the sentinel errors.
package jwt
