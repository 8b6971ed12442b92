// Package session provides client-local persistence of the credential pair
// (access + refresh token) and the compact binary encoding used to store it.
//
// # Storage model
//
// Both tokens are written as one versioned blob, so a [Store.Set] is a single
// replace on the underlying [Backend]: a reader observes either the old pair,
// the new pair, or nothing, never half of each.
//
// # Backends
//
//   - [FileBackend]: a 0600 file under the user config directory, optionally
//     age-encrypted at rest.
//   - [RedisBackend]: a single Redis key, for processes that share a session.
//   - [MemoryBackend]: process memory.
//   - [Unavailable]: no persistent storage at all; reads are always absent.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Credential] model. It does NOT call the
// backend API or validate tokens. Deciding whether a session is still valid
// belongs to the gate package.
//
// # What this package must NOT do
//
//   - Perform network calls other than to its configured storage backend.
//   - Return an error or panic from [Store.Get]; unreadable storage is absent.
//   - Persist one token without the other.
package session
