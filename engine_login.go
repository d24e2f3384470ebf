package authgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/hexlattice/authgate/internal"
	internalaudit "github.com/hexlattice/authgate/internal/audit"
	"github.com/hexlattice/authgate/session"
)

// Login authenticates an email/password pair and issues a new session.
//
// The failure mode is deliberately uniform: an unknown email and a wrong
// password both return [ErrInvalidCredentials], and the unknown-email
// path still burns one argon2id verification against a throwaway hash so
// response timing does not reveal account existence.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.verifyPassword(ctx, plaintext, e.dummyHash)
			e.metricInc(MetricLoginFailure)
			e.audit.emit(ctx, internalaudit.Event{
				EventType: EventLogin,
				Email:     email,
				Success:   false,
				Error:     "invalid credentials",
			})
			return nil, ErrInvalidCredentials
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	ok, err := e.verifyPassword(ctx, plaintext, user.CredentialHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.audit.emit(ctx, internalaudit.Event{
			EventType: EventLogin,
			UserID:    user.ID,
			Email:     email,
			Success:   false,
			Error:     "invalid credentials",
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user, plaintext)
	}

	token, sess, err := e.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventLogin,
		UserID:    user.ID,
		Email:     email,
		SessionID: sess.SessionID,
		Success:   true,
	})

	return &LoginResult{
		Token:     token,
		User:      *user,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// maybeUpgradeHash rehashes the credential when the stored hash is
// weaker than the configured parameters. Best effort: a failure here
// must not fail a login that already verified.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *User, plaintext string) {
	needs, err := e.hasher.NeedsRehash(user.CredentialHash)
	if err != nil || !needs {
		return
	}

	newHash, err := e.hashPassword(ctx, plaintext)
	if err != nil {
		return
	}
	_ = e.users.UpdateCredential(ctx, user.ID, newHash)
}

func (e *Engine) createSession(ctx context.Context, userID string) (string, *session.Session, error) {
	sid, err := internal.NewTokenID()
	if err != nil {
		return "", nil, err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:  sid.String(),
		UserID:     userID,
		SecretHash: internal.HashSecret(secret),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(e.config.Session.TTL).Unix(),
		IP:         clientIPFromContext(ctx),
		UserAgent:  truncate(userAgentFromContext(ctx), 512),
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		return "", nil, err
	}

	return internal.EncodeToken(sid, secret), sess, nil
}

// Validate resolves an opaque session token to its owning user.
//
// Expiry is checked against the session's recorded instant: a token is
// accepted until that instant and rejected strictly after, yielding
// [ErrSessionExpired]. Unknown, revoked, and secret-mismatched tokens
// yield [ErrSessionNotFound]. With Session.SlidingExpiration enabled a
// successful Validate renews the expiry to now+TTL.
func (e *Engine) Validate(ctx context.Context, token string) (*Identity, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeToken(token)
	if err != nil {
		e.metricInc(MetricValidateNotFound)
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessions.Get(ctx, sid.String())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			e.metricInc(MetricValidateNotFound)
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrExpired):
			e.metricInc(MetricValidateExpired)
			// Expiry removes the session, so this fires once per
			// session lifetime; later attempts are plain not-found.
			e.audit.emit(ctx, internalaudit.Event{
				EventType: EventValidate,
				SessionID: sid.String(),
				Success:   false,
				Error:     "session expired",
			})
			return nil, ErrSessionExpired
		case errors.Is(err, session.ErrRedisUnavailable):
			return nil, storeErr(err)
		}
		return nil, err
	}

	providedHash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(providedHash[:], sess.SecretHash[:]) != 1 {
		e.metricInc(MetricValidateNotFound)
		return nil, ErrSessionNotFound
	}

	user, err := e.users.FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Foreign-key hygiene: a session must reference an existing
			// user. Drop the orphan instead of resurrecting it.
			_ = e.sessions.Delete(ctx, sess.SessionID)
			e.metricInc(MetricValidateNotFound)
			return nil, ErrSessionNotFound
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricValidateSuccess)

	return &Identity{
		User:      *user,
		SessionID: sess.SessionID,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// Revoke deletes the session behind a token. It is idempotent: revoking
// an absent, expired, or even malformed token returns nil. A revoked
// token can never validate again; session IDs are random per login and
// never reissued.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sid, _, err := internal.DecodeToken(token)
	if err != nil {
		return nil
	}

	if err := e.sessions.Delete(ctx, sid.String()); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricRevoke)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventRevoke,
		SessionID: sid.String(),
		Success:   true,
	})

	return nil
}

// RevokeAllForUser deletes every session owned by a user, e.g. after a
// password reset.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricRevokeAll)
	e.audit.emit(ctx, internalaudit.Event{
		EventType: EventRevokeAll,
		UserID:    userID,
		Success:   true,
	})

	return nil
}

// SessionsForUser lists a user's live sessions for introspection.
func (e *Engine) SessionsForUser(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ids, err := e.sessions.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	sessions, err := e.sessions.GetManyReadOnly(ctx, ids)
	if err != nil {
		return nil, storeErr(err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			SessionID: sess.SessionID,
			CreatedAt: time.Unix(sess.CreatedAt, 0),
			ExpiresAt: time.Unix(sess.ExpiresAt, 0),
			IP:        sess.IP,
			UserAgent: sess.UserAgent,
		})
	}

	return infos, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
