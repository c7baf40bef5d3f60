// Package internal groups helpers that are private to goIdentity.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: login, resolve and refresh orchestration behind the Engine
//   - retry: bounded retry policy for transient provider failures
//   - secret: Argon2id hashing for guest secrets
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
