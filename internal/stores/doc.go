// Package stores provides the Redis-backed, short-lived record store for
// single-use verification tokens (email confirmation and password reset).
//
// # Design
//
// Each record is persisted as a versioned binary blob with a Redis TTL.
// Consume uses a Lua script so validate-and-delete is one atomic step:
// under concurrent consumption of the same token, exactly one caller
// succeeds. Secret comparisons use constant-time compare.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Decide what a consumed token authorizes — that is Engine policy.
package stores
