package trustgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/trustgate-io/trustgate/internal/audit"
)

// AccountStatus is the lifecycle state of a principal. Transitions are
// owned by the lockout state machine and administrative operations; see
// [Gate.AdminSetStatus] and [Gate.AdminUnlock].
type AccountStatus uint8

const (
	// StatusActive places no restriction on the principal by itself.
	StatusActive AccountStatus = iota
	// StatusSuspended permits read-only requests and denies mutations.
	StatusSuspended
	// StatusBlocked denies every request. Entered automatically when the
	// failed-attempt threshold is reached, or by an administrator.
	StatusBlocked
)

func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Role is an enumerated role carried on the principal snapshot. Role checks
// inside the gate read this set; there is no runtime role lookup.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "user"
	// RoleAdmin marks an elevated principal. Elevated principals are exempt
	// from administrative status changes.
	RoleAdmin Role = "admin"
)

// HasRole reports whether the role set contains r.
func HasRole(roles []Role, r Role) bool {
	for _, have := range roles {
		if have == r {
			return true
		}
	}
	return false
}

// PrincipalRecord is the account snapshot returned by [CredentialStore].
// Zero time values mean "not set": a zero LastFailedAt means no recorded
// failure, a zero AccountExpiresAt means the account never expires.
type PrincipalRecord struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string
	Roles            []Role
	Status           AccountStatus
	StatusReason     string
	FailedAttempts   int
	LastFailedAt     time.Time
	AccountExpiresAt time.Time
	MFAEnabled       bool
	MFASecret        []byte
}

// PrincipalUpdate is a partial update applied by [CredentialStore.Save].
// Nil fields are left untouched, so callers never reconstruct the whole
// record to flip one flag. ClearLastFailedAt and ClearMFASecret exist
// because "set to zero" and "leave alone" must be distinguishable.
type PrincipalUpdate struct {
	Status            *AccountStatus
	StatusReason      *string
	FailedAttempts    *int
	LastFailedAt      *time.Time
	ClearLastFailedAt bool
	AccountExpiresAt  *time.Time
	PasswordHash      *string
	MFAEnabled        *bool
	MFASecret         []byte
	ClearMFASecret    bool
}

// RecoveryCodeRecord stores the SHA-256 hash of a single recovery code.
// The plaintext is returned once at generation time and never persisted.
type RecoveryCodeRecord struct {
	Hash [32]byte
}

// CreatePrincipalInput is the input for [CredentialStore.Create].
type CreatePrincipalInput struct {
	Username         string
	Email            string
	PasswordHash     string
	Roles            []Role
	Status           AccountStatus
	AccountExpiresAt time.Time
}

// CredentialStore is the interface callers implement to integrate trustgate
// with their principal database. It covers credential lookup, partial field
// updates, and recovery-code storage with membership-test-and-remove
// semantics. Implementations must be safe for concurrent use; the gate
// serializes conflicting writes for the same principal itself.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (PrincipalRecord, error)
	FindByID(ctx context.Context, id string) (PrincipalRecord, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, input CreatePrincipalInput) (PrincipalRecord, error)
	Save(ctx context.Context, id string, update PrincipalUpdate) (PrincipalRecord, error)

	GetRecoveryCodes(ctx context.Context, id string) ([]RecoveryCodeRecord, error)
	ReplaceRecoveryCodes(ctx context.Context, id string, codes []RecoveryCodeRecord) error
	// ConsumeRecoveryCode removes the code whose hash matches and reports
	// whether it was present. The removal must happen before the true
	// result is returned so each code validates at most once.
	ConsumeRecoveryCode(ctx context.Context, id string, codeHash [32]byte) (bool, error)
}

// AuthResult is returned by [Gate.Authenticate], [Gate.ConfirmMFA], and
// [Gate.ValidateSessionToken].
type AuthResult struct {
	PrincipalID string
	Username    string
	Roles       []Role

	// Token is the issued SESSION token. Empty when MFARequired is set.
	Token     string
	ExpiresAt time.Time

	// MFARequired indicates the password was accepted but a second factor
	// is still needed; complete the login via ConfirmMFA.
	MFARequired bool

	// ReadOnly is set on validation results for SUSPENDED principals.
	// Callers must deny mutating methods when it is true.
	ReadOnly bool
}

// TOTPProvision holds the base32 secret and otpauth:// URI returned by
// [Gate.ProvisionTOTP] for enrollment QR rendering.
type TOTPProvision struct {
	SecretBase32 string
	URI          string
}

// RegisterRequest is the input for [Gate.Register].
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// AuditEvent is a structured audit record emitted by the gate.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the gate's async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded audit events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
