package trustgate

import (
	"context"
	"errors"
	"time"

	"github.com/trustgate-io/trustgate/token"
)

// Authenticate verifies a username and password and, on success, issues a
// SESSION token and installs it as the principal's only live session.
//
// For a principal with MFA enabled the password alone is not enough: the
// result carries MFARequired with no token, and the caller must finish the
// login through [Gate.ConfirmMFA]. Wrong passwords for a known principal
// feed the lockout machine; the attempt that reaches the threshold returns
// [ErrAccountBlocked] instead of [ErrBadCredentials].
func (g *Gate) Authenticate(ctx context.Context, username, pass string) (AuthResult, error) {
	if err := g.ready(); err != nil {
		return AuthResult{}, err
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			g.metrics.Inc(MetricAuthFailure)
			g.emitAudit(ctx, EventAuthFailure, false, "", username, clientKey, ErrBadCredentials, nil)
			return AuthResult{}, ErrBadCredentials
		}
		return AuthResult{}, wrapBackend(err)
	}

	if err := g.checkAccountUsable(principal); err != nil {
		g.metrics.Inc(MetricAuthFailure)
		g.emitAudit(ctx, EventAuthFailure, false, principal.ID, username, clientKey, err, nil)
		return AuthResult{}, err
	}

	ok, err := g.hasher.Verify(pass, principal.PasswordHash)
	if err != nil {
		return AuthResult{}, wrapBackend(err)
	}
	if !ok {
		return AuthResult{}, g.registerAuthFailure(ctx, principal, clientKey)
	}

	if err := g.resetFailedAttempts(ctx, principal); err != nil {
		return AuthResult{}, err
	}

	if principal.MFAEnabled {
		g.metrics.Inc(MetricMFARequired)
		g.emitAudit(ctx, EventMFAChallenge, true, principal.ID, username, clientKey, nil, nil)
		return AuthResult{
			PrincipalID: principal.ID,
			Username:    principal.Username,
			Roles:       principal.Roles,
			MFARequired: true,
		}, nil
	}

	return g.openSession(ctx, principal, clientKey)
}

// ConfirmMFA completes a login deferred by [Gate.Authenticate]. The password
// is verified again so a stolen challenge response alone cannot finish a
// login, then the code is checked as a TOTP code or, failing the shape
// check, as a single-use recovery code.
func (g *Gate) ConfirmMFA(ctx context.Context, username, pass, code string) (AuthResult, error) {
	if err := g.ready(); err != nil {
		return AuthResult{}, err
	}
	clientKey := clientIPFromContext(ctx)

	principal, err := g.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			g.metrics.Inc(MetricAuthFailure)
			g.emitAudit(ctx, EventAuthFailure, false, "", username, clientKey, ErrBadCredentials, nil)
			return AuthResult{}, ErrBadCredentials
		}
		return AuthResult{}, wrapBackend(err)
	}

	if err := g.checkAccountUsable(principal); err != nil {
		g.metrics.Inc(MetricAuthFailure)
		g.emitAudit(ctx, EventAuthFailure, false, principal.ID, username, clientKey, err, nil)
		return AuthResult{}, err
	}
	if !principal.MFAEnabled {
		return AuthResult{}, ErrMFANotEnabled
	}

	ok, err := g.hasher.Verify(pass, principal.PasswordHash)
	if err != nil {
		return AuthResult{}, wrapBackend(err)
	}
	if !ok {
		return AuthResult{}, g.registerAuthFailure(ctx, principal, clientKey)
	}

	if err := g.verifySecondFactor(ctx, principal, code, clientKey); err != nil {
		if errors.Is(err, ErrInvalidMFACode) {
			return AuthResult{}, g.registerMFAFailure(ctx, principal, code, clientKey)
		}
		return AuthResult{}, err
	}

	if err := g.resetFailedAttempts(ctx, principal); err != nil {
		return AuthResult{}, err
	}

	g.metrics.Inc(MetricMFASuccess)
	g.emitAudit(ctx, EventMFASuccess, true, principal.ID, username, clientKey, nil, nil)

	return g.openSession(ctx, principal, clientKey)
}

func (g *Gate) openSession(ctx context.Context, principal PrincipalRecord, clientKey string) (AuthResult, error) {
	signed, expiresAt, err := g.tokens.Issue(principal.Username, principal.ID, token.KindSession, g.cfg.Token.SessionTTL)
	if err != nil {
		return AuthResult{}, wrapBackend(err)
	}
	if err := g.sessions.Open(ctx, principal.ID, signed, expiresAt); err != nil {
		return AuthResult{}, wrapBackend(err)
	}

	g.metrics.Inc(MetricAuthSuccess)
	g.metrics.Inc(MetricSessionOpened)
	g.emitAudit(ctx, EventAuthSuccess, true, principal.ID, principal.Username, clientKey, nil, nil)
	g.emitAudit(ctx, EventSessionOpened, true, principal.ID, principal.Username, clientKey, nil, nil)

	return AuthResult{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Roles:       principal.Roles,
		Token:       signed,
		ExpiresAt:   expiresAt,
		ReadOnly:    principal.Status == StatusSuspended,
	}, nil
}

// ValidateSessionToken decides whether a presented token grants access. It
// accepts only a well-formed, correctly signed, unexpired SESSION token that
// is not revoked, is the principal's current live session, and belongs to a
// usable account. Every token-level failure collapses to [ErrUnauthorized];
// account-level denials keep their distinct errors.
func (g *Gate) ValidateSessionToken(ctx context.Context, tokenStr string) (AuthResult, error) {
	if err := g.ready(); err != nil {
		return AuthResult{}, err
	}
	start := time.Now()
	clientKey := clientIPFromContext(ctx)

	claims, err := g.tokens.Parse(tokenStr)
	if err != nil {
		return AuthResult{}, g.rejectToken(ctx, clientKey, err, start)
	}
	if claims.TokenKind != token.KindSession {
		return AuthResult{}, g.rejectToken(ctx, clientKey, errors.New("wrong token kind"), start)
	}

	revoked, err := g.ledger.IsRevoked(ctx, tokenStr)
	if err != nil {
		return AuthResult{}, wrapBackend(err)
	}
	if revoked {
		return AuthResult{}, g.rejectToken(ctx, clientKey, errors.New("token revoked"), start)
	}

	live, err := g.sessions.IsLive(ctx, tokenStr)
	if err != nil {
		return AuthResult{}, wrapBackend(err)
	}
	if !live {
		return AuthResult{}, g.rejectToken(ctx, clientKey, errors.New("not the live session"), start)
	}

	principal, err := g.store.FindByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return AuthResult{}, g.rejectToken(ctx, clientKey, errors.New("unknown principal"), start)
		}
		return AuthResult{}, wrapBackend(err)
	}

	if err := g.checkAccountUsable(principal); err != nil {
		g.metrics.Inc(MetricValidateRejected)
		g.emitAudit(ctx, EventValidateRejected, false, principal.ID, principal.Username, clientKey, err, nil)
		g.metrics.Observe(MetricValidateLatency, time.Since(start))
		return AuthResult{}, err
	}

	g.metrics.Inc(MetricValidateSuccess)
	g.metrics.Observe(MetricValidateLatency, time.Since(start))

	return AuthResult{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Roles:       principal.Roles,
		Token:       tokenStr,
		ExpiresAt:   claims.Expiry(),
		ReadOnly:    principal.Status == StatusSuspended,
	}, nil
}

func (g *Gate) rejectToken(ctx context.Context, clientKey string, cause error, start time.Time) error {
	g.metrics.Inc(MetricValidateRejected)
	g.emitAudit(ctx, EventValidateRejected, false, "", "", clientKey, cause, nil)
	g.metrics.Observe(MetricValidateLatency, time.Since(start))
	return ErrUnauthorized
}

// Logout closes the session the token names and records the token in the
// revocation ledger for the remainder of its natural lifetime. Tokens that
// fail validation are rejected with [ErrUnauthorized] rather than treated
// as an idempotent no-op, so a caller cannot probe the ledger.
func (g *Gate) Logout(ctx context.Context, tokenStr string) error {
	if err := g.ready(); err != nil {
		return err
	}
	clientKey := clientIPFromContext(ctx)

	claims, err := g.tokens.Parse(tokenStr)
	if err != nil || claims.TokenKind != token.KindSession {
		g.emitAudit(ctx, EventValidateRejected, false, "", "", clientKey, err, nil)
		return ErrUnauthorized
	}

	if err := g.ledger.Revoke(ctx, tokenStr, claims.Expiry()); err != nil {
		return wrapBackend(err)
	}
	existed, err := g.sessions.CloseForPrincipal(ctx, claims.PrincipalID)
	if err != nil {
		return wrapBackend(err)
	}

	g.metrics.Inc(MetricTokenRevoked)
	if existed {
		g.metrics.Inc(MetricSessionClosed)
	}
	g.emitAudit(ctx, EventSessionClosed, true, claims.PrincipalID, claims.Username(), clientKey, nil, nil)
	return nil
}

// Register creates a new ACTIVE principal with the default role. Username
// and email must both be unused. The account expiry is seeded one extension
// period out, the same horizon an administrative unlock grants.
func (g *Gate) Register(ctx context.Context, req RegisterRequest) (PrincipalRecord, error) {
	if err := g.ready(); err != nil {
		return PrincipalRecord{}, err
	}
	clientKey := clientIPFromContext(ctx)

	taken, err := g.store.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return PrincipalRecord{}, wrapBackend(err)
	}
	if !taken {
		taken, err = g.store.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return PrincipalRecord{}, wrapBackend(err)
		}
	}
	if taken {
		g.metrics.Inc(MetricRegisterDuplicate)
		g.emitAudit(ctx, EventRegisterRejected, false, "", req.Username, clientKey, ErrPrincipalExists, nil)
		return PrincipalRecord{}, ErrPrincipalExists
	}

	hash, err := g.hasher.Hash(req.Password)
	if err != nil {
		return PrincipalRecord{}, err
	}

	principal, err := g.store.Create(ctx, CreatePrincipalInput{
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     hash,
		Roles:            []Role{RoleUser},
		Status:           StatusActive,
		AccountExpiresAt: time.Now().Add(g.cfg.Security.UnlockExpiryExtension),
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			g.metrics.Inc(MetricRegisterDuplicate)
			return PrincipalRecord{}, ErrPrincipalExists
		}
		return PrincipalRecord{}, wrapBackend(err)
	}

	g.metrics.Inc(MetricRegisterSuccess)
	g.emitAudit(ctx, EventRegisterSuccess, true, principal.ID, principal.Username, clientKey, nil, nil)
	return principal, nil
}

// checkAccountUsable applies the status and expiry gates shared by login
// and validation. Expiry is independent of status: an ACTIVE account past
// its expiry is denied.
func (g *Gate) checkAccountUsable(principal PrincipalRecord) error {
	if principal.Status == StatusBlocked {
		return ErrAccountBlocked
	}
	if !principal.AccountExpiresAt.IsZero() && time.Now().After(principal.AccountExpiresAt) {
		return ErrAccountExpired
	}
	return nil
}
