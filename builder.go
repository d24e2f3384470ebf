package authgate

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/hexlattice/authgate/internal/stores"
	"github.com/hexlattice/authgate/password"
	"github.com/hexlattice/authgate/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users  UserStore
	sink   AuditSink
	sender TokenSender

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing sessions and verification
// tokens.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable credential store.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithAuditSink sets the audit event consumer. Without one, audit events
// are dispatched to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithTokenSender sets the delivery channel for verification tokens.
// Optional; without one, tokens are only returned to the caller.
func (b *Builder) WithTokenSender(sender TokenSender) *Builder {
	b.sender = sender
	return b
}

// Build validates the configuration and wires the engine. A Builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: b.config,
		users:  b.users,
		sessions: session.NewStore(
			b.redis,
			b.config.Session.RedisPrefix,
			b.config.Session.TTL,
			b.config.Session.SlidingExpiration,
		),
		verifications: stores.NewVerificationStore(b.redis, b.config.Verification.RedisPrefix),
		hasher:        hasher,
		audit:         newAuditDispatcher(b.config.Audit, b.sink),
		metrics:       NewMetrics(b.config.Metrics),
		sender:        b.sender,
		hashGate:      make(chan struct{}, b.config.Password.MaxConcurrentHashes),
		dummyHash:     dummyHash,
	}

	b.built = true

	return engine, nil
}

// newDummyHash produces a hash of a random throwaway secret, verified
// against on logins for unknown emails so both failure paths cost one
// argon2id computation.
func newDummyHash(hasher *password.Hasher) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hasher.Hash(base64.RawStdEncoding.EncodeToString(raw))
}
