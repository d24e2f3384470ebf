package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/hexlattice/authgate/internal"
	internalaudit "github.com/hexlattice/authgate/internal/audit"
	"github.com/hexlattice/authgate/internal/stores"
)

// RequestVerification issues a single-use verification token for a user
// and purpose. The token is returned to the caller and, when a
// [TokenSender] is configured, delivered to the user's email as well.
// Delivery failures are audited but do not void the token.
func (e *Engine) RequestVerification(ctx context.Context, userID string, purpose Purpose) (string, error) {
	if e == nil || e.users == nil {
		return "", ErrEngineNotReady
	}
	if purpose != PurposeEmailVerify && purpose != PurposePasswordReset {
		return "", ErrInvalidInput
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return "", err
		}
		return "", storeErr(err)
	}

	vid, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return "", err
	}

	record := &stores.VerificationRecord{
		UserID:     user.ID,
		Purpose:    uint8(purpose),
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  time.Now().Add(e.config.Verification.TTL).Unix(),
	}

	if err := e.verifications.Save(ctx, vid.String(), record, e.config.Verification.TTL); err != nil {
		return "", storeErr(err)
	}

	token := internal.EncodeToken(vid, secret)

	e.metricInc(MetricVerificationIssued)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventVerificationIssue,
		UserID:    user.ID,
		Email:     user.Email,
		Success:   true,
		Metadata:  map[string]string{"purpose": purpose.String()},
	})

	if e.sender != nil {
		if sendErr := e.sender.SendToken(ctx, user.Email, purpose, token); sendErr != nil {
			e.audit.emit(ctx, internalaudit.Event{
				EventType: EventTokenDelivery,
				UserID:    user.ID,
				Email:     user.Email,
				Success:   false,
				Error:     sendErr.Error(),
				Metadata:  map[string]string{"purpose": purpose.String()},
			})
		}
	}

	return token, nil
}

// ConsumeVerification spends a verification token. The token is deleted
// atomically with validation, so of two concurrent consumers exactly one
// receives the claim and the other gets [ErrInvalidOrExpiredToken]. A
// consumed or expired token never validates again.
func (e *Engine) ConsumeVerification(ctx context.Context, token string) (*VerificationClaim, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	vid, secret, err := internal.DecodeToken(token)
	if err != nil {
		e.metricInc(MetricVerificationRejected)
		return nil, ErrInvalidOrExpiredToken
	}

	record, err := e.verifications.Consume(ctx, vid.String(), internal.HashSecret(secret))
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrVerificationNotFound),
			errors.Is(err, stores.ErrVerificationSecretMismatch):
			e.metricInc(MetricVerificationRejected)
			e.audit.emit(ctx, internalaudit.Event{
				EventType: EventVerificationSpend,
				Success:   false,
				Error:     "invalid or expired token",
			})
			return nil, ErrInvalidOrExpiredToken
		default:
			return nil, storeErr(err)
		}
	}

	purpose := Purpose(record.Purpose)

	e.metricInc(MetricVerificationConsumed)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventVerificationSpend,
		UserID:    record.UserID,
		Success:   true,
		Metadata:  map[string]string{"purpose": purpose.String()},
	})

	return &VerificationClaim{
		UserID:  record.UserID,
		Purpose: purpose,
	}, nil
}

// VerifyEmail spends an email-verification token and marks the owning
// user verified. The token delete is the serialization point; the flag
// write that follows is idempotent, so the double-spend window closes at
// the store, not here.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	claim, err := e.ConsumeVerification(ctx, token)
	if err != nil {
		return err
	}
	if claim.Purpose != PurposeEmailVerify {
		return ErrInvalidOrExpiredToken
	}

	if err := e.users.SetEmailVerified(ctx, claim.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return storeErr(err)
	}

	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventEmailVerified,
		UserID:    claim.UserID,
		Success:   true,
	})

	return nil
}

// RequestPasswordReset issues a password-reset token for the user owning
// an email. Callers exposing this over the wire must not reveal whether
// the email exists; the HTTP layer answers 202 either way and swallows
// [ErrUserNotFound].
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.users == nil {
		return "", ErrEngineNotReady
	}

	user, err := e.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return "", err
		}
		return "", storeErr(err)
	}

	return e.RequestVerification(ctx, user.ID, PurposePasswordReset)
}

// ResetPassword spends a password-reset token, replaces the credential,
// and revokes every session of the user. Sessions issued under the old
// credential must not outlive it.
func (e *Engine) ResetPassword(ctx context.Context, token, newPlaintext string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	if len(newPlaintext) < e.config.Password.MinLength {
		return ErrInvalidInput
	}

	claim, err := e.ConsumeVerification(ctx, token)
	if err != nil {
		return err
	}
	if claim.Purpose != PurposePasswordReset {
		return ErrInvalidOrExpiredToken
	}

	newHash, err := e.hashPassword(ctx, newPlaintext)
	if err != nil {
		return err
	}

	if err := e.users.UpdateCredential(ctx, claim.UserID, newHash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidOrExpiredToken
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return storeErr(err)
	}

	if err := e.RevokeAllForUser(ctx, claim.UserID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetCompleted)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventPasswordReset,
		UserID:    claim.UserID,
		Success:   true,
	})

	return nil
}
