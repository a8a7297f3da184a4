package trustgate

import (
	"context"
	"errors"
	"time"

	"github.com/trustgate-io/trustgate/token"
)

// ForgotPassword issues a short-lived RESET token for the named principal.
// The token proves nothing about the channel it travels over; delivery
// (email, SMS) is the caller's concern. Unknown usernames are reported as
// [ErrPrincipalNotFound] so the caller can decide its own disclosure policy.
func (g *Gate) ForgotPassword(ctx context.Context, username string) (string, time.Time, error) {
	if err := g.ready(); err != nil {
		return "", time.Time{}, err
	}
	if !g.cfg.Reset.Enabled {
		return "", time.Time{}, errors.New("password reset disabled")
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", time.Time{}, ErrPrincipalNotFound
		}
		return "", time.Time{}, wrapBackend(err)
	}
	if principal.Status == StatusBlocked {
		return "", time.Time{}, ErrAccountBlocked
	}

	signed, expiresAt, err := g.tokens.Issue(principal.Username, principal.ID, token.KindReset, g.cfg.Reset.ResetTTL)
	if err != nil {
		return "", time.Time{}, wrapBackend(err)
	}

	g.metrics.Inc(MetricResetRequested)
	g.emitAudit(ctx, EventResetRequested, true, principal.ID, principal.Username, clientKey, nil, nil)
	return signed, expiresAt, nil
}

// VerifyResetMFA checks a second factor against the principal a RESET token
// names, without consuming anything. A code shaped like a TOTP code is
// verified against the clock; anything else is membership-tested against the
// unused recovery codes. The recovery code is not burned here, so it stays
// valid for [Gate.ResetPassword], which re-verifies and consumes it.
func (g *Gate) VerifyResetMFA(ctx context.Context, resetToken, code string) error {
	if err := g.ready(); err != nil {
		return err
	}

	principal, _, err := g.resolveResetToken(ctx, resetToken)
	if err != nil {
		return err
	}
	if !principal.MFAEnabled {
		return ErrMFANotEnabled
	}

	if g.totp.LooksLikeCode(code) {
		ok, err := g.totp.VerifyCode(principal.MFASecret, code, g.now())
		if err != nil {
			return wrapBackend(err)
		}
		if !ok {
			return ErrInvalidMFACode
		}
		return nil
	}

	records, err := g.store.GetRecoveryCodes(ctx, principal.ID)
	if err != nil {
		return wrapBackend(err)
	}
	for _, record := range records {
		if matchRecoveryCode(record.Hash, code) {
			return nil
		}
	}
	return ErrInvalidMFACode
}

// ResetPassword sets a new password for the principal a RESET token names.
// The token must be the RESET kind, unexpired, not previously used, and must
// name the same principal the caller claims to act for; a SESSION token or a
// principal mismatch is rejected outright. Principals with MFA enabled must
// also supply a current TOTP code or an unused recovery code. On success the
// reset token is revoked for the rest of its lifetime and any live session
// is closed, so the old credential's session dies with it.
func (g *Gate) ResetPassword(ctx context.Context, resetToken, principalID, newPassword, mfaCode string) error {
	if err := g.ready(); err != nil {
		return err
	}
	clientKey := clientIPFromContext(ctx)

	principal, claims, err := g.resolveResetToken(ctx, resetToken)
	if err != nil {
		g.metrics.Inc(MetricResetFailed)
		g.emitAudit(ctx, EventResetRejected, false, "", "", clientKey, err, nil)
		return err
	}

	if principalID != claims.PrincipalID {
		g.metrics.Inc(MetricResetFailed)
		g.emitAudit(ctx, EventResetRejected, false, principal.ID, principal.Username, clientKey,
			errors.New("reset token names a different principal"), nil)
		return ErrUnauthorized
	}

	if principal.MFAEnabled {
		if err := g.verifySecondFactor(ctx, principal, mfaCode, clientKey); err != nil {
			g.metrics.Inc(MetricResetFailed)
			g.emitAudit(ctx, EventResetRejected, false, principal.ID, principal.Username, clientKey, err, nil)
			return err
		}
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = g.principalLocks.WithLock(principal.ID, func() error {
		zero := 0
		_, err := g.store.Save(ctx, principal.ID, PrincipalUpdate{
			PasswordHash:      &hash,
			FailedAttempts:    &zero,
			ClearLastFailedAt: true,
		})
		return err
	})
	if err != nil {
		return wrapBackend(err)
	}

	// Single use: the reset token dies now, not at its natural expiry.
	if err := g.ledger.Revoke(ctx, resetToken, claims.Expiry()); err != nil {
		return wrapBackend(err)
	}
	g.metrics.Inc(MetricTokenRevoked)

	if existed, closeErr := g.sessions.CloseForPrincipal(ctx, principal.ID); closeErr == nil && existed {
		g.metrics.Inc(MetricSessionClosed)
		g.emitAudit(ctx, EventSessionRevoked, true, principal.ID, principal.Username, clientKey, nil, nil)
	}

	g.metrics.Inc(MetricResetCompleted)
	g.emitAudit(ctx, EventResetCompleted, true, principal.ID, principal.Username, clientKey, nil, nil)
	return nil
}

// resolveResetToken parses and authorizes a RESET token and loads the
// principal it names. All token-level failures collapse to
// [ErrUnauthorized]; account-level denials keep their distinct errors.
func (g *Gate) resolveResetToken(ctx context.Context, resetToken string) (PrincipalRecord, *token.Claims, error) {
	claims, err := g.tokens.Parse(resetToken)
	if err != nil {
		return PrincipalRecord{}, nil, ErrUnauthorized
	}
	if claims.TokenKind != token.KindReset {
		return PrincipalRecord{}, nil, ErrUnauthorized
	}

	revoked, err := g.ledger.IsRevoked(ctx, resetToken)
	if err != nil {
		return PrincipalRecord{}, nil, wrapBackend(err)
	}
	if revoked {
		return PrincipalRecord{}, nil, ErrUnauthorized
	}

	principal, err := g.store.FindByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return PrincipalRecord{}, nil, ErrUnauthorized
		}
		return PrincipalRecord{}, nil, wrapBackend(err)
	}
	if principal.Status == StatusBlocked {
		return PrincipalRecord{}, nil, ErrAccountBlocked
	}

	return principal, claims, nil
}
