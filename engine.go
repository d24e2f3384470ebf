package authgate

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/hexlattice/authgate/internal/stores"
	"github.com/hexlattice/authgate/password"
	"github.com/hexlattice/authgate/session"
)

// Engine orchestrates the authentication lifecycle. Build one through
// [Builder.Build]; all methods are then safe for concurrent use.
type Engine struct {
	config        Config
	users         UserStore
	sessions      *session.Store
	verifications *stores.VerificationStore
	hasher        *password.Hasher
	audit         *auditDispatcher
	metrics       *Metrics
	sender        TokenSender

	// hashGate bounds concurrent argon2id computations so credential
	// hashing cannot starve unrelated request goroutines.
	hashGate chan struct{}

	// dummyHash is verified against when login targets an unknown email,
	// keeping the failure path's cost independent of user existence.
	dummyHash string
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// hashPassword runs argon2id under the concurrency gate.
func (e *Engine) hashPassword(ctx context.Context, plaintext string) (string, error) {
	if err := e.acquireHashSlot(ctx); err != nil {
		return "", err
	}
	defer e.releaseHashSlot()

	return e.hasher.Hash(plaintext)
}

// verifyPassword runs argon2id verification under the concurrency gate.
func (e *Engine) verifyPassword(ctx context.Context, plaintext, encodedHash string) (bool, error) {
	if err := e.acquireHashSlot(ctx); err != nil {
		return false, err
	}
	defer e.releaseHashSlot()

	return e.hasher.Verify(plaintext, encodedHash)
}

func (e *Engine) acquireHashSlot(ctx context.Context) error {
	select {
	case e.hashGate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releaseHashSlot() {
	<-e.hashGate
}

// Ping verifies the session backend is reachable. Health endpoints call
// it to distinguish a serving process from one whose Redis is gone; a
// failure reports [ErrStoreUnavailable].
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

// normalizeEmail lowercases and trims an email so lookups and the
// storage-layer uniqueness constraint agree on case-insensitive compare.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject the display-name form; only a bare address is an email here.
	return addr.Address == email
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
