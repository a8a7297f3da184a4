package trustgate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// recordFailedAttempt bumps the principal's failed-attempt counter and, at
// the configured threshold, moves the account to BLOCKED. The re-read,
// increment, threshold check, and write run under the principal's stripe
// lock so two concurrent failures cannot both observe the pre-threshold
// count.
func (g *Gate) recordFailedAttempt(ctx context.Context, principalID string) (locked bool, err error) {
	lockErr := g.principalLocks.WithLock(principalID, func() error {
		principal, err := g.store.FindByID(ctx, principalID)
		if err != nil {
			return err
		}
		if principal.Status == StatusBlocked {
			locked = true
			return nil
		}

		attempts := principal.FailedAttempts + 1
		now := time.Now()
		update := PrincipalUpdate{
			FailedAttempts: &attempts,
			LastFailedAt:   &now,
		}

		if attempts >= g.cfg.Security.MaxFailedAttempts {
			blocked := StatusBlocked
			reason := fmt.Sprintf("Account locked due to %d failed login attempts", attempts)
			update.Status = &blocked
			update.StatusReason = &reason
			locked = true
		}

		_, err = g.store.Save(ctx, principalID, update)
		return err
	})
	if lockErr != nil {
		return false, wrapBackend(lockErr)
	}
	return locked, nil
}

// registerAuthFailure is the common wrong-password path. The attempt that
// crosses the threshold reports the lockout instead of a generic
// credential failure.
func (g *Gate) registerAuthFailure(ctx context.Context, principal PrincipalRecord, clientKey string) error {
	locked, err := g.recordFailedAttempt(ctx, principal.ID)
	if err != nil {
		return err
	}

	g.metrics.Inc(MetricAuthFailure)
	if locked {
		g.metrics.Inc(MetricLockoutTriggered)
		g.emitAudit(ctx, EventAuthLockout, false, principal.ID, principal.Username, clientKey, ErrAccountBlocked, nil)
		// A blocked principal keeps no live session.
		if existed, closeErr := g.sessions.CloseForPrincipal(ctx, principal.ID); closeErr == nil && existed {
			g.metrics.Inc(MetricSessionClosed)
		}
		return ErrAccountBlocked
	}

	g.emitAudit(ctx, EventAuthFailure, false, principal.ID, principal.Username, clientKey, ErrBadCredentials, nil)
	return ErrBadCredentials
}

// registerMFAFailure handles a second-factor rejection. A code that is not
// even shaped like a TOTP code was tried as a recovery code; whether that
// counts toward lockout is a policy knob, off by default.
func (g *Gate) registerMFAFailure(ctx context.Context, principal PrincipalRecord, code, clientKey string) error {
	g.metrics.Inc(MetricMFAFailure)
	g.emitAudit(ctx, EventMFAFailure, false, principal.ID, principal.Username, clientKey, ErrInvalidMFACode, nil)

	malformed := !g.totp.LooksLikeCode(code)
	if malformed && !g.cfg.Security.CountMalformedMFACode {
		return ErrInvalidMFACode
	}

	locked, err := g.recordFailedAttempt(ctx, principal.ID)
	if err != nil {
		return err
	}
	if locked {
		g.metrics.Inc(MetricLockoutTriggered)
		g.emitAudit(ctx, EventAuthLockout, false, principal.ID, principal.Username, clientKey, ErrAccountBlocked, nil)
		if existed, closeErr := g.sessions.CloseForPrincipal(ctx, principal.ID); closeErr == nil && existed {
			g.metrics.Inc(MetricSessionClosed)
		}
		return ErrAccountBlocked
	}
	return ErrInvalidMFACode
}

// resetFailedAttempts clears the counter after a fully successful login.
func (g *Gate) resetFailedAttempts(ctx context.Context, principal PrincipalRecord) error {
	if principal.FailedAttempts == 0 && principal.LastFailedAt.IsZero() {
		return nil
	}

	err := g.principalLocks.WithLock(principal.ID, func() error {
		zero := 0
		_, err := g.store.Save(ctx, principal.ID, PrincipalUpdate{
			FailedAttempts:    &zero,
			ClearLastFailedAt: true,
		})
		return err
	})
	if err != nil {
		return wrapBackend(err)
	}
	return nil
}

// AdminSetStatus changes a principal's lifecycle status with an operator
// supplied reason. Principals holding an elevated role cannot be targeted.
// Moving a principal to BLOCKED force-closes its live session so the change
// takes effect immediately rather than at next validation.
func (g *Gate) AdminSetStatus(ctx context.Context, principalID string, status AccountStatus, reason string) error {
	if err := g.ready(); err != nil {
		return err
	}
	if status != StatusActive && status != StatusSuspended && status != StatusBlocked {
		return errors.New("unknown account status")
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrPrincipalNotFound
		}
		return wrapBackend(err)
	}
	if HasRole(principal.Roles, RoleAdmin) {
		return ErrForbiddenAdminTarget
	}

	err = g.principalLocks.WithLock(principalID, func() error {
		update := PrincipalUpdate{
			Status:       &status,
			StatusReason: &reason,
		}
		if status == StatusActive {
			zero := 0
			update.FailedAttempts = &zero
			update.ClearLastFailedAt = true
		}
		_, err := g.store.Save(ctx, principalID, update)
		return err
	})
	if err != nil {
		return wrapBackend(err)
	}

	if status == StatusBlocked {
		if existed, closeErr := g.sessions.CloseForPrincipal(ctx, principalID); closeErr == nil && existed {
			g.metrics.Inc(MetricSessionClosed)
			g.emitAudit(ctx, EventSessionRevoked, true, principalID, principal.Username, clientKey, nil, nil)
		}
	}

	g.metrics.Inc(MetricStatusChanged)
	g.emitAudit(ctx, EventStatusChanged, true, principalID, principal.Username, clientKey, nil,
		map[string]string{"status": status.String(), "reason": reason})
	return nil
}

// AdminUnlock returns a BLOCKED or SUSPENDED principal to ACTIVE, clears the
// failure counter, and pushes the account expiry one extension period into
// the future so an unlock on a lapsed account actually restores access.
func (g *Gate) AdminUnlock(ctx context.Context, principalID string) error {
	if err := g.ready(); err != nil {
		return err
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return ErrPrincipalNotFound
		}
		return wrapBackend(err)
	}

	err = g.principalLocks.WithLock(principalID, func() error {
		active := StatusActive
		reason := ""
		zero := 0
		expiresAt := time.Now().Add(g.cfg.Security.UnlockExpiryExtension)
		_, err := g.store.Save(ctx, principalID, PrincipalUpdate{
			Status:            &active,
			StatusReason:      &reason,
			FailedAttempts:    &zero,
			ClearLastFailedAt: true,
			AccountExpiresAt:  &expiresAt,
		})
		return err
	})
	if err != nil {
		return wrapBackend(err)
	}

	g.metrics.Inc(MetricAccountUnlocked)
	g.emitAudit(ctx, EventAccountUnlocked, true, principalID, principal.Username, clientKey, nil, nil)
	return nil
}
