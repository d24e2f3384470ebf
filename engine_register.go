package authgate

import (
	"context"
	"errors"
	"strings"

	internalaudit "github.com/hexlattice/authgate/internal/audit"
)

// Register creates a user from an email, a plaintext password, and a
// display name. The password is hashed with argon2id before it reaches
// the credential store; the plaintext is never persisted.
//
// Returns [ErrInvalidInput] for a malformed email or a password below
// the policy length, and [ErrEmailInUse] when the store reports a
// duplicate. Uniqueness is decided by the store's own constraint, so two
// concurrent registrations with the same email yield exactly one user.
func (e *Engine) Register(ctx context.Context, email, plaintext, name string) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		e.metricInc(MetricRegisterInvalid)
		return nil, ErrInvalidInput
	}
	if len(plaintext) < e.config.Password.MinLength {
		e.metricInc(MetricRegisterInvalid)
		return nil, ErrInvalidInput
	}
	if name = normalizeName(name); name == "" {
		e.metricInc(MetricRegisterInvalid)
		return nil, ErrInvalidInput
	}

	hash, err := e.hashPassword(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	user, err := e.users.CreateUser(ctx, email, name, hash)
	if err != nil {
		if errors.Is(err, ErrEmailInUse) {
			e.metricInc(MetricRegisterDuplicate)
			e.audit.emit(ctx, internalaudit.Event{
				EventType: EventRegister,
				Email:     email,
				Success:   false,
				Error:     "duplicate email",
			})
			return nil, ErrEmailInUse
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventRegister,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
	})

	return user, nil
}

func normalizeName(name string) string {
	const maxNameLen = 128

	name = strings.TrimSpace(name)
	if len(name) > maxNameLen {
		return ""
	}
	return name
}
