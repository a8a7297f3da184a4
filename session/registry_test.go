package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/trustgate-io/trustgate/revocation"
)

func newTestRegistry(t *testing.T) (*Registry, *revocation.Ledger) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ledger := revocation.NewLedger(client, "test:rvk")
	return NewRegistry(client, "test", ledger), ledger
}

func TestOpenAndIsLive(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Open(ctx, "p1", "tok-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	live, err := registry.IsLive(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if !live {
		t.Fatal("freshly opened session not live")
	}

	live, err = registry.IsLive(ctx, "tok-unknown")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if live {
		t.Fatal("unknown token reported live")
	}
}

func TestOpen_ReplacesAndRevokesPriorSession(t *testing.T) {
	registry, ledger := newTestRegistry(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	if err := registry.Open(ctx, "p1", "tok-old", expiry); err != nil {
		t.Fatalf("Open old: %v", err)
	}
	if err := registry.Open(ctx, "p1", "tok-new", expiry); err != nil {
		t.Fatalf("Open new: %v", err)
	}

	live, err := registry.IsLive(ctx, "tok-old")
	if err != nil {
		t.Fatalf("IsLive old: %v", err)
	}
	if live {
		t.Fatal("displaced session still live")
	}

	revoked, err := ledger.IsRevoked(ctx, "tok-old")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("displaced token missing from revocation ledger")
	}

	live, err = registry.IsLive(ctx, "tok-new")
	if err != nil {
		t.Fatalf("IsLive new: %v", err)
	}
	if !live {
		t.Fatal("replacement session not live")
	}
}

func TestCloseForPrincipal(t *testing.T) {
	registry, ledger := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Open(ctx, "p1", "tok-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	existed, err := registry.CloseForPrincipal(ctx, "p1")
	if err != nil {
		t.Fatalf("CloseForPrincipal: %v", err)
	}
	if !existed {
		t.Fatal("expected close to report an existing session")
	}

	live, err := registry.IsLive(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if live {
		t.Fatal("closed session still live")
	}

	revoked, err := ledger.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("closed token missing from revocation ledger")
	}

	existed, err = registry.CloseForPrincipal(ctx, "p1")
	if err != nil {
		t.Fatalf("CloseForPrincipal: %v", err)
	}
	if existed {
		t.Fatal("second close reported an existing session")
	}
}

func TestIsLive_ExpiredRowNotLive(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.Open(ctx, "p1", "tok-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	live, err := registry.IsLive(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if live {
		t.Fatal("expired session reported live before sweep")
	}
}

func TestSweepExpired(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	if err := registry.Open(ctx, "p1", "tok-old", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := registry.Open(ctx, "p2", "tok-fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	removed, err := registry.SweepExpired(ctx, now)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row swept, got %d", removed)
	}

	live, err := registry.IsLive(ctx, "tok-fresh")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if !live {
		t.Fatal("unexpired session removed by sweep")
	}
}

func TestOpen_ConcurrentSamePrincipal(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	const workers = 16
	tokens := make([]string, workers)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if err := registry.Open(ctx, "p1", tok, expiry); err != nil {
				t.Errorf("Open %s: %v", tok, err)
			}
		}(tokens[i])
	}
	wg.Wait()

	liveCount := 0
	for _, tok := range tokens {
		live, err := registry.IsLive(ctx, tok)
		if err != nil {
			t.Fatalf("IsLive %s: %v", tok, err)
		}
		if live {
			liveCount++
		}
	}
	if liveCount != 1 {
		t.Fatalf("expected exactly one live session, got %d", liveCount)
	}
}
