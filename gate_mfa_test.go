package trustgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

// enrollMFA provisions and confirms a second factor for the principal,
// pinning the gate clock so generated codes are deterministic.
func enrollMFA(t *testing.T, gate *Gate, store *mockStore, principalID string) (secret []byte, recoveryCodes []string) {
	t.Helper()

	fixed := time.Unix(1_700_000_000, 0)
	gate.now = func() time.Time { return fixed }

	if _, err := gate.ProvisionTOTP(context.Background(), principalID); err != nil {
		t.Fatalf("ProvisionTOTP: %v", err)
	}

	stored, ok := store.get(principalID)
	if !ok || len(stored.MFASecret) == 0 {
		t.Fatal("provisioned secret not stored")
	}
	secret = stored.MFASecret

	code := totpCodeAt(t, gate, secret, fixed)
	recoveryCodes, err := gate.EnableMFA(context.Background(), principalID, code)
	if err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}
	return secret, recoveryCodes
}

func totpCodeAt(t *testing.T, gate *Gate, secret []byte, at time.Time) string {
	t.Helper()
	cfg := gate.cfg.TOTP
	code, err := hotpCode(secret, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode: %v", err)
	}
	return code
}

func TestEnableMFA_ReturnsRecoveryCodes(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")

	_, codes := enrollMFA(t, gate, store, principal.ID)

	if len(codes) != 10 {
		t.Fatalf("expected 10 recovery codes, got %d", len(codes))
	}
	seen := map[string]struct{}{}
	for _, code := range codes {
		if len(code) != 12 {
			t.Fatalf("expected 12-digit code, got %q", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate recovery code %q", code)
		}
		seen[code] = struct{}{}
	}

	stored, _ := store.get(principal.ID)
	if !stored.MFAEnabled {
		t.Fatal("MFA not enabled after confirmation")
	}
}

func TestEnableMFA_WrongCodeRejected(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")

	fixed := time.Unix(1_700_000_000, 0)
	gate.now = func() time.Time { return fixed }

	if _, err := gate.ProvisionTOTP(context.Background(), principal.ID); err != nil {
		t.Fatalf("ProvisionTOTP: %v", err)
	}
	if _, err := gate.EnableMFA(context.Background(), principal.ID, "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}

	stored, _ := store.get(principal.ID)
	if stored.MFAEnabled {
		t.Fatal("MFA enabled despite failed confirmation")
	}
}

func TestAuthenticate_DefersToMFA(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	enrollMFA(t, gate, store, principal.ID)

	res, err := gate.Authenticate(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.MFARequired {
		t.Fatal("expected MFA challenge")
	}
	if res.Token != "" {
		t.Fatal("token issued before second factor")
	}
}

func TestConfirmMFA_WithTOTPCode(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	secret, _ := enrollMFA(t, gate, store, principal.ID)
	ctx := context.Background()

	code := totpCodeAt(t, gate, secret, gate.now())
	res, err := gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", code)
	if err != nil {
		t.Fatalf("ConfirmMFA: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected session token after second factor")
	}
	if _, err := gate.ValidateSessionToken(ctx, res.Token); err != nil {
		t.Fatalf("ValidateSessionToken: %v", err)
	}
}

func TestConfirmMFA_WrongTOTPCode(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	secret, _ := enrollMFA(t, gate, store, principal.ID)

	// A code from far outside the skew window.
	stale := totpCodeAt(t, gate, secret, gate.now().Add(-time.Hour))
	_, err := gate.ConfirmMFA(context.Background(), "alice", "correct-horse-battery", stale)
	if !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}
}

func TestConfirmMFA_RecoveryCodeSingleUse(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	_, codes := enrollMFA(t, gate, store, principal.ID)
	ctx := context.Background()

	res, err := gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", codes[0])
	if err != nil {
		t.Fatalf("ConfirmMFA with recovery code: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected session token")
	}

	// The same code a second time is spent.
	_, err = gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", codes[0])
	if !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected replayed recovery code rejected, got %v", err)
	}

	// The rest of the set still works.
	if _, err := gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", codes[1]); err != nil {
		t.Fatalf("ConfirmMFA with second recovery code: %v", err)
	}
}

func TestConfirmMFA_WithoutEnrollment(t *testing.T) {
	gate, store := newTestGate(t, nil)
	seedPrincipal(t, gate, store, "alice", "correct-horse-battery")

	_, err := gate.ConfirmMFA(context.Background(), "alice", "correct-horse-battery", "123456")
	if !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
}

func TestDisableMFA(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	secret, _ := enrollMFA(t, gate, store, principal.ID)
	ctx := context.Background()

	code := totpCodeAt(t, gate, secret, gate.now())
	if err := gate.DisableMFA(ctx, principal.ID, code); err != nil {
		t.Fatalf("DisableMFA: %v", err)
	}

	stored, _ := store.get(principal.ID)
	if stored.MFAEnabled || len(stored.MFASecret) != 0 {
		t.Fatal("MFA state not destroyed")
	}

	// Recovery codes died with the enrollment.
	remaining, err := store.GetRecoveryCodes(ctx, principal.ID)
	if err != nil {
		t.Fatalf("GetRecoveryCodes: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected recovery codes destroyed, %d remain", len(remaining))
	}

	// Login no longer asks for a second factor.
	res, err := gate.Authenticate(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.MFARequired {
		t.Fatal("MFA still required after disable")
	}
}

func TestDisableMFA_WithUsedRecoveryCodeFails(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	_, codes := enrollMFA(t, gate, store, principal.ID)
	ctx := context.Background()

	if _, err := gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", codes[0]); err != nil {
		t.Fatalf("ConfirmMFA: %v", err)
	}

	err := gate.DisableMFA(ctx, principal.ID, codes[0])
	if !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected spent recovery code rejected, got %v", err)
	}

	stored, _ := store.get(principal.ID)
	if !stored.MFAEnabled {
		t.Fatal("MFA disabled by a spent recovery code")
	}
}

func TestRegenerateRecoveryCodes_InvalidatesOldSet(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	secret, oldCodes := enrollMFA(t, gate, store, principal.ID)
	ctx := context.Background()

	code := totpCodeAt(t, gate, secret, gate.now())
	newCodes, err := gate.RegenerateRecoveryCodes(ctx, principal.ID, code)
	if err != nil {
		t.Fatalf("RegenerateRecoveryCodes: %v", err)
	}
	if len(newCodes) != 10 {
		t.Fatalf("expected 10 fresh codes, got %d", len(newCodes))
	}

	_, err = gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", oldCodes[0])
	if !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected old recovery code rejected, got %v", err)
	}
	if _, err := gate.ConfirmMFA(ctx, "alice", "correct-horse-battery", newCodes[0]); err != nil {
		t.Fatalf("ConfirmMFA with fresh code: %v", err)
	}
}

func TestVerifyCode_SkewWindow(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	secret, _ := enrollMFA(t, gate, store, principal.ID)

	now := gate.now()
	prev := totpCodeAt(t, gate, secret, now.Add(-30*time.Second))

	ok, err := gate.totp.VerifyCode(secret, prev, now)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if !ok {
		t.Fatal("code from the previous step rejected within skew 1")
	}

	old := totpCodeAt(t, gate, secret, now.Add(-90*time.Second))
	ok, err = gate.totp.VerifyCode(secret, old, now)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if ok {
		t.Fatal("code from outside the skew window accepted")
	}
}
