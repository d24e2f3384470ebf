package authgate

import "errors"

var (
	// ErrInvalidInput reports a client-correctable validation failure
	// (malformed email, password below policy length, missing field).
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailInUse is returned by registration when the email is already
	// taken. The credential store enforces uniqueness at the storage layer,
	// so concurrent registrations resolve to exactly one winner.
	ErrEmailInUse = errors.New("email already in use")
	// ErrInvalidCredentials is deliberately identical for "no such user"
	// and "wrong password" to resist account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized reports a missing, malformed, or unresolvable
	// session at a request boundary.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionNotFound reports an unknown or revoked session token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired reports a session past its expiry instant.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidOrExpiredToken reports a verification token that is
	// unknown, already consumed, expired, or bound to another purpose.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired verification token")
	// ErrUserNotFound reports an absent user record. Expected absence is a
	// value, never a panic.
	ErrUserNotFound = errors.New("user not found")
	// ErrStoreUnavailable wraps infrastructure failures of the credential
	// or session store. It surfaces as a 5xx at the HTTP boundary and
	// never leaks backend detail.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or un-built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
