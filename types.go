package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/hexlattice/authgate/internal/audit"
)

// User is the canonical account record. The credential hash never leaves
// the backend; callers exposing a User over the wire must project it down
// to the public fields first.
type User struct {
	ID             string
	Email          string
	Name           string
	CredentialHash string
	EmailVerified  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserStore is the interface the engine requires from durable credential
// storage. The userstore package provides the SQLite implementation.
//
// Email uniqueness must be enforced by the store itself (constraint or
// equivalent), not by callers: two concurrent CreateUser calls with the
// same email must resolve to one success and one [ErrEmailInUse].
// Implementations return [ErrUserNotFound] for expected absence and wrap
// infrastructure failures in [ErrStoreUnavailable].
type UserStore interface {
	CreateUser(ctx context.Context, email, name, credentialHash string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateCredential(ctx context.Context, id, newHash string) error
	SetEmailVerified(ctx context.Context, id string) error
}

// Identity is returned by [Engine.Validate]: the owning user of a live
// session plus the session's own coordinates.
type Identity struct {
	User      User
	SessionID string
	ExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login]. Token is the opaque session
// token the client presents on subsequent requests; it is shown exactly
// once and is not recoverable from the server afterwards.
type LoginResult struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

// SessionInfo is a read-only session descriptor returned by
// [Engine.SessionsForUser]. IP and UserAgent are audit metadata captured
// at login and carry no enforcement semantics.
type SessionInfo struct {
	SessionID string
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Purpose tags a verification token with the single follow-up action it
// authorizes.
type Purpose uint8

const (
	// PurposeEmailVerify authorizes setting EmailVerified on the owning user.
	PurposeEmailVerify Purpose = iota + 1
	// PurposePasswordReset authorizes replacing the owning user's credential.
	PurposePasswordReset
)

func (p Purpose) String() string {
	switch p {
	case PurposeEmailVerify:
		return "email-verify"
	case PurposePasswordReset:
		return "password-reset"
	default:
		return "unknown"
	}
}

// VerificationClaim is the decoded outcome of a successful
// [Engine.ConsumeVerification]. By the time a claim is returned the token
// has already been atomically deleted and can never validate again.
type VerificationClaim struct {
	UserID  string
	Purpose Purpose
}

// TokenSender delivers a freshly issued verification token to the user,
// typically over email. The mailer package provides the SMTP
// implementation; a nil sender means tokens are only returned to the
// caller.
type TokenSender interface {
	SendToken(ctx context.Context, email string, purpose Purpose, token string) error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
