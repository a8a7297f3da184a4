package trustgate

import (
	"context"
	"time"

	"github.com/trustgate-io/trustgate/internal/audit"
)

// Audit event type names emitted by the Gate.
const (
	EventAuthSuccess        = "auth.success"
	EventAuthFailure        = "auth.failure"
	EventAuthRateLimited    = "auth.rate_limited"
	EventAuthLockout        = "auth.lockout"
	EventMFAChallenge       = "mfa.challenge"
	EventMFASuccess         = "mfa.success"
	EventMFAFailure         = "mfa.failure"
	EventMFAEnabled         = "mfa.enabled"
	EventMFADisabled        = "mfa.disabled"
	EventRecoveryCodeUsed   = "mfa.recovery_code_used"
	EventRecoveryRegenerate = "mfa.recovery_regenerated"
	EventSessionOpened      = "session.opened"
	EventSessionClosed      = "session.closed"
	EventSessionRevoked     = "session.revoked"
	EventValidateRejected   = "session.validate_rejected"
	EventStatusChanged      = "account.status_changed"
	EventAccountUnlocked    = "account.unlocked"
	EventRegisterSuccess    = "account.registered"
	EventRegisterRejected   = "account.register_rejected"
	EventResetRequested     = "reset.requested"
	EventResetCompleted     = "reset.completed"
	EventResetRejected      = "reset.rejected"
)

// emitAudit queues an event on the async dispatcher. It is a no-op when
// auditing is disabled.
func (g *Gate) emitAudit(ctx context.Context, eventType string, success bool, principalID, username, clientKey string, failure error, metadata map[string]string) {
	if g.auditDispatcher == nil {
		return
	}

	event := audit.Event{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		Username:    username,
		ClientKey:   clientKey,
		Success:     success,
		Metadata:    metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}

	g.auditDispatcher.Emit(ctx, event)
}
