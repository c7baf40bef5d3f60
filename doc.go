// Package goIdentity is an identity engine for game backends. It verifies
// a credential from an external identity provider, resolves it to exactly
// one canonical backend user, and issues a short-lived access token plus a
// refresh token signed with a rotating asymmetric key.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([LoginResult], [MetricsSnapshot], [AuditEvent]). Flow
// orchestration, audit dispatch and secret hashing live under internal/.
// Keys, tokens, provider validators and user directories are public
// sub-packages so deployments can supply their own implementations.
//
// # What this package must NOT do
//
//   - Return provider diagnostics to callers; rejected credentials are
//     always [ErrAuthenticationFailed].
//   - Keep caches in package globals; all caches belong to a keys.Manager.
//   - Import any sub-package that re-imports goIdentity.
//
// # Uniqueness contract
//
// Two concurrent first logins with the same provider identity converge on
// one user. This relies only on the directory's atomic conditional writes,
// never on in-process locking.
package goIdentity
