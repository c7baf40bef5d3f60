// Package keys owns the signing key material used by the token codec.
//
// A [Manager] caches the current private key fetched from a [SecretStore] and,
// separately, the published public key set (JWKS) fetched from a [JWKSSource].
// The private key cache is refreshed after a fixed interval; the JWKS cache is
// refreshed lazily, only when a token names a kid the cache does not know.
//
// # Architecture boundaries
//
// The package consumes key material; it does not schedule rotation. [Rotator]
// performs a single rotation step and is meant to be driven by an external
// scheduler (see cmd/identity-rotate).
//
// # What this package must NOT do
//
//   - Sign or parse tokens (package jwt does that).
//   - Keep key material in package-level variables.
//   - Sign with a cached key after its refresh interval has lapsed and the
//     secret store cannot be reached.
package keys
