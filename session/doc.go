// Package session provides Redis-backed session persistence and compact
// binary session encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary blob (schema v1). The
// encoder is append-only: new versions add trailing fields but never
// reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session]
// model. It does NOT decode opaque tokens, compare secrets, or resolve
// users — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authgate (no upward imports).
//   - Store plaintext token secrets; only their hashes.
//   - Make authentication decisions.
package session
