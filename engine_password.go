package authgate

import (
	"context"
	"errors"

	internalaudit "github.com/hexlattice/authgate/internal/audit"
)

// ChangePassword replaces the credential of an authenticated user after
// re-verifying the current password. Every other session of the user is
// revoked; the session that performed the change must sign in again as
// well, since sessions are not re-keyed in place.
//
// Returns [ErrInvalidCredentials] when the current password does not
// verify and [ErrInvalidInput] when the new password is below the policy
// length.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPlaintext, newPlaintext string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	if len(newPlaintext) < e.config.Password.MinLength {
		return ErrInvalidInput
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return storeErr(err)
	}

	ok, err := e.verifyPassword(ctx, currentPlaintext, user.CredentialHash)
	if err != nil {
		return err
	}
	if !ok {
		e.audit.emit(ctx, internalaudit.Event{
			EventType: EventPasswordChange,
			UserID:    user.ID,
			Success:   false,
			Error:     "invalid credentials",
		})
		return ErrInvalidCredentials
	}

	newHash, err := e.hashPassword(ctx, newPlaintext)
	if err != nil {
		return err
	}

	if err := e.users.UpdateCredential(ctx, user.ID, newHash); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return storeErr(err)
	}

	if err := e.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventPasswordChange,
		UserID:    user.ID,
		Success:   true,
	})

	return nil
}
