package authgate

import (
	"context"
	"time"

	internalaudit "github.com/hexlattice/authgate/internal/audit"
)

// Audit event types emitted by the engine.
const (
	EventRegister          = "register"
	EventLogin             = "login"
	EventValidate          = "validate"
	EventRevoke            = "revoke"
	EventRevokeAll         = "revoke_all"
	EventVerificationIssue = "verification_issue"
	EventVerificationSpend = "verification_spend"
	EventEmailVerified     = "email_verified"
	EventPasswordReset     = "password_reset"
	EventPasswordChange    = "password_change"
	EventTokenDelivery     = "token_delivery"
)

type auditDispatcher struct {
	dispatcher *internalaudit.Dispatcher
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	return &auditDispatcher{
		dispatcher: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Enabled,
			BufferSize: cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
		}, sink),
	}
}

func (a *auditDispatcher) emit(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	a.dispatcher.Emit(ctx, event)
}

func (a *auditDispatcher) Close() {
	if a == nil {
		return
	}
	a.dispatcher.Close()
}

func (a *auditDispatcher) Dropped() uint64 {
	if a == nil {
		return 0
	}
	return a.dispatcher.Dropped()
}
