// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunResolve, RunRefresh) accepts a typed
// dependency struct and returns a result carrying either the outcome or a
// failure kind. The root package maps failure kinds to public errors, audit
// events and metrics.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to provider validators, the user
// directory and the token codec. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
