package trustgate

import (
	"context"
	"errors"
)

// verifySecondFactor accepts either a current TOTP code or, for input that
// is not shaped like one, a single-use recovery code. Recovery codes are
// consumed before acceptance is reported, so a replayed code fails.
func (g *Gate) verifySecondFactor(ctx context.Context, principal PrincipalRecord, code, clientKey string) error {
	if len(principal.MFASecret) == 0 {
		return ErrMFANotEnabled
	}

	if g.totp.LooksLikeCode(code) {
		ok, err := g.totp.VerifyCode(principal.MFASecret, code, g.now())
		if err != nil {
			return wrapBackend(err)
		}
		if ok {
			return nil
		}
		return ErrInvalidMFACode
	}

	used, err := g.consumeRecoveryCode(ctx, principal.ID, code)
	if err != nil {
		return err
	}
	if !used {
		return ErrInvalidMFACode
	}

	g.metrics.Inc(MetricRecoveryCodeUsed)
	g.emitAudit(ctx, EventRecoveryCodeUsed, true, principal.ID, principal.Username, clientKey, nil, nil)
	return nil
}

func (g *Gate) consumeRecoveryCode(ctx context.Context, principalID, code string) (bool, error) {
	used, err := g.store.ConsumeRecoveryCode(ctx, principalID, hashRecoveryCode(code))
	if err != nil {
		return false, wrapBackend(err)
	}
	return used, nil
}

// ProvisionTOTP generates a fresh second-factor secret for the principal and
// stores it unconfirmed. MFA is not considered enabled until the principal
// proves possession of the secret through [Gate.EnableMFA]; re-provisioning
// before confirmation simply replaces the pending secret.
func (g *Gate) ProvisionTOTP(ctx context.Context, principalID string) (TOTPProvision, error) {
	if err := g.ready(); err != nil {
		return TOTPProvision{}, err
	}

	principal, err := g.store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return TOTPProvision{}, ErrPrincipalNotFound
		}
		return TOTPProvision{}, wrapBackend(err)
	}
	if principal.MFAEnabled {
		return TOTPProvision{}, errors.New("mfa already enabled")
	}

	secret, secretBase32, err := g.totp.GenerateSecret()
	if err != nil {
		return TOTPProvision{}, err
	}

	if _, err := g.store.Save(ctx, principalID, PrincipalUpdate{MFASecret: secret}); err != nil {
		return TOTPProvision{}, wrapBackend(err)
	}

	return TOTPProvision{
		SecretBase32: secretBase32,
		URI:          g.totp.ProvisionURI(secretBase32, principal.Username),
	}, nil
}

// EnableMFA confirms a provisioned secret with a current TOTP code, turns
// the second factor on, and returns the principal's recovery codes. The
// plaintext codes exist only in this return value; persist-side they are
// hashes, so this is the one chance to show them.
func (g *Gate) EnableMFA(ctx context.Context, principalID, code string) ([]string, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, wrapBackend(err)
	}
	if principal.MFAEnabled {
		return nil, errors.New("mfa already enabled")
	}
	if len(principal.MFASecret) == 0 {
		return nil, errors.New("no provisioned secret; call ProvisionTOTP first")
	}

	ok, err := g.totp.VerifyCode(principal.MFASecret, code, g.now())
	if err != nil {
		return nil, wrapBackend(err)
	}
	if !ok {
		g.metrics.Inc(MetricMFAFailure)
		g.emitAudit(ctx, EventMFAFailure, false, principalID, principal.Username, clientKey, ErrInvalidMFACode, nil)
		return nil, ErrInvalidMFACode
	}

	codes, records, err := generateRecoveryCodes(g.cfg.TOTP.RecoveryCodeCount, g.cfg.TOTP.RecoveryCodeDigits)
	if err != nil {
		return nil, err
	}
	if err := g.store.ReplaceRecoveryCodes(ctx, principalID, records); err != nil {
		return nil, wrapBackend(err)
	}

	enabled := true
	if _, err := g.store.Save(ctx, principalID, PrincipalUpdate{MFAEnabled: &enabled}); err != nil {
		return nil, wrapBackend(err)
	}

	g.emitAudit(ctx, EventMFAEnabled, true, principalID, principal.Username, clientKey, nil, nil)
	return codes, nil
}

// DisableMFA turns the second factor off after one final proof: a current
// TOTP code or an unused recovery code. The secret and any remaining
// recovery codes are destroyed.
func (g *Gate) DisableMFA(ctx context.Context, principalID, code string) error {
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
	if !principal.MFAEnabled {
		return ErrMFANotEnabled
	}

	if err := g.verifySecondFactor(ctx, principal, code, clientKey); err != nil {
		if errors.Is(err, ErrInvalidMFACode) {
			g.metrics.Inc(MetricMFAFailure)
			g.emitAudit(ctx, EventMFAFailure, false, principalID, principal.Username, clientKey, err, nil)
		}
		return err
	}

	if err := g.store.ReplaceRecoveryCodes(ctx, principalID, nil); err != nil {
		return wrapBackend(err)
	}
	disabled := false
	if _, err := g.store.Save(ctx, principalID, PrincipalUpdate{
		MFAEnabled:     &disabled,
		ClearMFASecret: true,
	}); err != nil {
		return wrapBackend(err)
	}

	g.emitAudit(ctx, EventMFADisabled, true, principalID, principal.Username, clientKey, nil, nil)
	return nil
}

// RegenerateRecoveryCodes replaces the principal's recovery set after a
// current TOTP code is presented. Unused codes from the old set stop
// working immediately.
func (g *Gate) RegenerateRecoveryCodes(ctx context.Context, principalID, code string) ([]string, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, wrapBackend(err)
	}
	if !principal.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	ok, err := g.totp.VerifyCode(principal.MFASecret, code, g.now())
	if err != nil {
		return nil, wrapBackend(err)
	}
	if !ok {
		g.metrics.Inc(MetricMFAFailure)
		g.emitAudit(ctx, EventMFAFailure, false, principalID, principal.Username, clientKey, ErrInvalidMFACode, nil)
		return nil, ErrInvalidMFACode
	}

	codes, records, err := generateRecoveryCodes(g.cfg.TOTP.RecoveryCodeCount, g.cfg.TOTP.RecoveryCodeDigits)
	if err != nil {
		return nil, err
	}
	if err := g.store.ReplaceRecoveryCodes(ctx, principalID, records); err != nil {
		return nil, wrapBackend(err)
	}

	g.metrics.Inc(MetricRecoveryCodesRegenerated)
	g.emitAudit(ctx, EventRecoveryRegenerate, true, principalID, principal.Username, clientKey, nil, nil)
	return codes, nil
}
