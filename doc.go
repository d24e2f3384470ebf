// Package authgate implements the full email/password authentication
// lifecycle: durable credential storage, opaque session tokens backed by
// Redis, single-use verification tokens, and a default-deny HTTP guard.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types ([Identity], [LoginResult], [VerificationClaim]). Session
// encoding, token codecs, and audit dispatch live under internal/ and are
// never exported. Durable user storage is pluggable through [UserStore];
// the userstore package provides the SQLite implementation.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Log. The engine emits audit events; callers decide what to log.
//   - Return a different error for "no such user" and "wrong password"
//     from [Engine.Login]. Both are [ErrInvalidCredentials].
package authgate
