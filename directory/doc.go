// Package directory defines the user directory: canonical users and the
// provider identity index that maps (provider, subject) to exactly one user.
//
// # Atomicity
//
// Implementations must write a user row together with its index entries in
// a single atomic step. A reader that finds an index entry can always load
// the owning user.
//
// # Implementations
//
//   - redisstore: go-redis with Lua scripts
//   - sqlitestore: modernc.org/sqlite with transactions
package directory
