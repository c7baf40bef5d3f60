// Package provider verifies credentials issued by external identity
// providers and turns them into a provider-scoped Identity.
//
// Three validator shapes cover every supported provider:
//
//   - GuestValidator checks a backend-minted guest secret, or mints one.
//   - AssertionValidator checks a client-held assertion through an
//     AssertionVerifier (remote JWKS, Graph API, OAuth2 code exchange).
//   - TicketValidator asks a provider authority to vouch for a ticket and
//     retries transient failures with a bounded policy.
//
// # What this package must NOT do
//
//   - Touch the provider identity index. Resolution belongs to the engine.
//   - Return provider diagnostics to clients. Every failure wraps
//     ErrValidation and callers collapse it to one public error.
package provider
