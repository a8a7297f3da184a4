package trustgate

import "errors"

var (
	// ErrUnauthorized is the collapsed client-facing rejection for every
	// token-level failure: malformed, bad signature, expired, revoked, not
	// the live session, or wrong token kind. The distinct cause is emitted
	// to the audit sink but never surfaced to callers, to avoid giving an
	// attacker an oracle.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadCredentials is returned by Authenticate for an unknown username
	// or a wrong password. Wrong passwords for a known principal increment
	// the failed-attempt counter.
	ErrBadCredentials = errors.New("bad credentials")

	// ErrAccountBlocked is returned when the principal is BLOCKED, whether
	// by the automatic lockout or by an administrator.
	ErrAccountBlocked = errors.New("account blocked")

	// ErrAccountSuspendedReadOnly is returned when a SUSPENDED principal
	// attempts a mutating request. Read-only requests pass.
	ErrAccountSuspendedReadOnly = errors.New("account suspended: read-only access")

	// ErrAccountExpired is returned when accountExpiresAt lies in the past.
	// It is checked independently of status and denies authentication even
	// for ACTIVE accounts.
	ErrAccountExpired = errors.New("account expired")

	// ErrRateLimitExceeded is returned when the sliding-window limiter
	// denies a request. Terminal for the request; no retry-after is
	// computed here.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidMFACode is returned when neither the TOTP check nor a
	// recovery code accepts the supplied code.
	ErrInvalidMFACode = errors.New("invalid mfa code")

	// ErrMFANotEnabled is returned by MFA-gated operations when the
	// principal has no enrolled second factor.
	ErrMFANotEnabled = errors.New("mfa not enabled")

	// ErrForbiddenAdminTarget is returned when an administrative status
	// change targets a principal holding an elevated role. This fails
	// regardless of the caller's own role.
	ErrForbiddenAdminTarget = errors.New("cannot modify status of an elevated principal")

	// ErrPrincipalNotFound is returned by lookups keyed on id or username
	// on paths where revealing absence is acceptable (password reset
	// request, administrative operations). Login never returns it.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrPrincipalExists is returned by Register when the username or email
	// is already taken.
	ErrPrincipalExists = errors.New("principal already exists")

	// ErrBackendUnavailable wraps credential-store and Redis failures.
	// A failed counter increment during login surfaces as this error, never
	// as a successful authentication.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrGateNotReady is returned when a Gate method is called on a nil or
	// unbuilt engine.
	ErrGateNotReady = errors.New("gate not initialized")
)
