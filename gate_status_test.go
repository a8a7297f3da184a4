package trustgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLockout_ThresholdBlocksAccount(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	// The first four failures are plain credential errors.
	for i := 0; i < 4; i++ {
		_, err := gate.Authenticate(ctx, "alice", "wrong-password-here")
		if !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d: expected ErrBadCredentials, got %v", i+1, err)
		}
	}

	// The fifth crosses the threshold.
	_, err := gate.Authenticate(ctx, "alice", "wrong-password-here")
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("threshold attempt: expected ErrAccountBlocked, got %v", err)
	}

	stored, ok := store.get(principal.ID)
	if !ok {
		t.Fatal("principal vanished")
	}
	if stored.Status != StatusBlocked {
		t.Fatalf("expected BLOCKED status, got %v", stored.Status)
	}
	if !strings.Contains(stored.StatusReason, "5 failed login attempts") {
		t.Fatalf("unexpected status reason %q", stored.StatusReason)
	}

	// Even the correct password is refused now.
	_, err = gate.Authenticate(ctx, "alice", "correct-horse-battery")
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked for locked account, got %v", err)
	}
}

func TestLockout_SuccessResetsCounter(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		gate.Authenticate(ctx, "alice", "wrong-password-here")
	}

	if _, err := gate.Authenticate(ctx, "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Authenticate at 4 failures: %v", err)
	}

	stored, _ := store.get(principal.ID)
	if stored.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", stored.FailedAttempts)
	}
	if !stored.LastFailedAt.IsZero() {
		t.Fatal("expected LastFailedAt cleared")
	}

	// The window restarts: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, err := gate.Authenticate(ctx, "alice", "wrong-password-here")
		if !errors.Is(err, ErrBadCredentials) {
			t.Fatalf("attempt %d after reset: expected ErrBadCredentials, got %v", i+1, err)
		}
	}
}

func TestLockout_NoSessionToCloseLeavesCounterAlone(t *testing.T) {
	gate, store := newTestGate(t, nil)
	seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	// Lock the account without ever logging in.
	for i := 0; i < 5; i++ {
		gate.Authenticate(ctx, "alice", "wrong-password-here")
	}

	if got := gate.MetricsSnapshot().Counters[MetricSessionClosed]; got != 0 {
		t.Fatalf("session close counted with no session open: %d", got)
	}
}

func TestAdminUnlock_RestoresAccessAndExtendsExpiry(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		gate.Authenticate(ctx, "alice", "wrong-password-here")
	}
	if _, err := gate.Authenticate(ctx, "alice", "correct-horse-battery"); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected locked account, got %v", err)
	}

	if err := gate.AdminUnlock(ctx, principal.ID); err != nil {
		t.Fatalf("AdminUnlock: %v", err)
	}

	stored, _ := store.get(principal.ID)
	if stored.Status != StatusActive {
		t.Fatalf("expected ACTIVE after unlock, got %v", stored.Status)
	}
	if stored.FailedAttempts != 0 {
		t.Fatalf("expected counter cleared, got %d", stored.FailedAttempts)
	}
	if stored.AccountExpiresAt.Before(time.Now().Add(364 * 24 * time.Hour)) {
		t.Fatalf("expected expiry pushed about a year out, got %v", stored.AccountExpiresAt)
	}

	if _, err := gate.Authenticate(ctx, "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Authenticate after unlock: %v", err)
	}
}

func TestAdminSetStatus_ElevatedTargetForbidden(t *testing.T) {
	gate, store := newTestGate(t, nil)
	admin := seedPrincipal(t, gate, store, "root", "correct-horse-battery", RoleUser, RoleAdmin)

	err := gate.AdminSetStatus(context.Background(), admin.ID, StatusBlocked, "testing")
	if !errors.Is(err, ErrForbiddenAdminTarget) {
		t.Fatalf("expected ErrForbiddenAdminTarget, got %v", err)
	}

	stored, _ := store.get(admin.ID)
	if stored.Status != StatusActive {
		t.Fatalf("elevated principal status changed to %v", stored.Status)
	}
}

func TestAdminSetStatus_BlockForcesLogout(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	res, err := gate.Authenticate(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := gate.AdminSetStatus(ctx, principal.ID, StatusBlocked, "abuse"); err != nil {
		t.Fatalf("AdminSetStatus: %v", err)
	}

	if _, err := gate.ValidateSessionToken(ctx, res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected session killed on block, got %v", err)
	}
}

func TestAdminSetStatus_UnknownPrincipal(t *testing.T) {
	gate, _ := newTestGate(t, nil)

	err := gate.AdminSetStatus(context.Background(), "does-not-exist", StatusSuspended, "x")
	if !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestLockout_ConcurrentFailuresLockExactlyOnce(t *testing.T) {
	gate, store := newTestGate(t, nil)
	principal := seedPrincipal(t, gate, store, "alice", "correct-horse-battery")
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := gate.Authenticate(ctx, "alice", "wrong-password-here")
			done <- err
		}()
	}

	blocked := 0
	for i := 0; i < 8; i++ {
		err := <-done
		switch {
		case errors.Is(err, ErrAccountBlocked):
			blocked++
		case errors.Is(err, ErrBadCredentials):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if blocked == 0 {
		t.Fatal("eight failures never reached the threshold of five")
	}

	stored, _ := store.get(principal.ID)
	if stored.Status != StatusBlocked {
		t.Fatalf("expected BLOCKED, got %v", stored.Status)
	}
}
