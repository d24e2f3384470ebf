package authgate

import (
	"errors"
	"time"
)

// Config holds every tunable for the engine. Fill it once, pass it to
// [Builder.WithConfig], and treat it as immutable afterwards.
type Config struct {
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session token issuance and expiry.
type SessionConfig struct {
	// TTL is how long a session lives after login. Default 7 days.
	TTL time.Duration

	// SlidingExpiration, when true, renews a session's expiry to now+TTL
	// on every successful Validate, so an actively used session stays
	// alive indefinitely. The default is OFF, meaning a session expires
	// exactly TTL after login regardless of activity.
	SlidingExpiration bool

	// RedisPrefix namespaces session keys. Default "ag:s".
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost parameters and the input
// policy. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum password length in bytes. Default 10.
	MinLength int

	// MaxConcurrentHashes bounds how many argon2id computations may run
	// at once, so CPU-bound hashing cannot starve unrelated requests.
	// Default 4.
	MaxConcurrentHashes int

	// UpgradeOnLogin rehashes a credential after a successful login when
	// the stored hash was produced with weaker parameters than configured.
	UpgradeOnLogin bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls single-use verification tokens
// (email confirmation and password reset).
type VerificationConfig struct {
	// TTL is the token lifetime. Expired tokens are swept by Redis key
	// expiry; no application-level sweeper is needed. Default 30 minutes.
	TTL time.Duration

	// RedisPrefix namespaces verification keys. Default "ag:v".
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when
	// the buffer is saturated. The drop count is observable through
	// [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the engine ships with: 7-day
// fixed-expiry sessions, argon2id at 64 MB / t=3 / p=2, 30-minute
// verification tokens, audit and metrics enabled.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:               7 * 24 * time.Hour,
			SlidingExpiration: false,
			RedisPrefix:       "ag:s",
		},
		Password: PasswordConfig{
			Memory:              64 * 1024,
			Time:                3,
			Parallelism:         2,
			SaltLength:          16,
			KeyLength:           32,
			MinLength:           10,
			MaxConcurrentHashes: 4,
			UpgradeOnLogin:      true,
		},
		Verification: VerificationConfig{
			TTL:         30 * time.Minute,
			RedisPrefix: "ag:v",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix must not be empty")
	}
	if c.Verification.TTL <= 0 {
		return errors.New("verification TTL must be positive")
	}
	if c.Verification.RedisPrefix == "" {
		return errors.New("verification redis prefix must not be empty")
	}
	if c.Verification.RedisPrefix == c.Session.RedisPrefix {
		return errors.New("verification and session redis prefixes must differ")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password min length must be >= 8")
	}
	if c.Password.MaxConcurrentHashes < 1 {
		return errors.New("password max concurrent hashes must be >= 1")
	}
	return nil
}
