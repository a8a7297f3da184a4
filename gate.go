package trustgate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustgate-io/trustgate/internal/audit"
	"github.com/trustgate-io/trustgate/internal/locks"
	"github.com/trustgate-io/trustgate/password"
	"github.com/trustgate-io/trustgate/ratelimit"
	"github.com/trustgate-io/trustgate/revocation"
	"github.com/trustgate-io/trustgate/session"
	"github.com/trustgate-io/trustgate/token"
)

// Gate is the trust boundary between unauthenticated requests and protected
// operations. It owns token issuance and validation, the single-session
// registry, the revocation ledger, the sliding-window rate limiter, the
// lockout state machine, second-factor verification, and the password-reset
// flow. Construct it with [New]; a zero Gate is not usable.
//
// All methods are safe for concurrent use.
type Gate struct {
	cfg   Config
	store CredentialStore
	redis redis.UniversalClient

	tokens   *token.Manager
	sessions *session.Registry
	ledger   *revocation.Ledger
	limiter  *ratelimit.Limiter
	hasher   *password.Argon2
	totp     *totpManager

	principalLocks *locks.Keyed

	metrics         *Metrics
	auditDispatcher *audit.Dispatcher

	// now is swappable in tests so TOTP verification is deterministic.
	now func() time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func (g *Gate) ready() error {
	if g == nil || g.closed.Load() {
		return ErrGateNotReady
	}
	return nil
}

// Close stops the background sweepers and drains the audit dispatcher.
// Gate methods called after Close return [ErrGateNotReady].
func (g *Gate) Close() {
	if g == nil {
		return
	}
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		close(g.stop)
		g.wg.Wait()
		g.auditDispatcher.Close()
	})
}

func (g *Gate) startSweepers() {
	g.wg.Add(2)
	go g.runSessionSweeper()
	go g.runRevocationSweeper()
}

func (g *Gate) runSessionSweeper() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.Session.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := g.sessions.SweepExpired(context.Background(), time.Now())
			if err == nil && removed > 0 {
				g.metrics.Add(MetricSessionSwept, uint64(removed))
			}
		case <-g.stop:
			return
		}
	}
}

func (g *Gate) runRevocationSweeper() {
	defer g.wg.Done()

	ticker := time.NewTicker(revocationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := g.ledger.Sweep(context.Background(), time.Now())
			if err == nil && removed > 0 {
				g.metrics.Add(MetricRevocationSwept, uint64(removed))
			}
		case <-g.stop:
			return
		}
	}
}

// RequestIsAllowed runs the per-request admission check: the client key is
// classified by path and charged against the sliding window unless
// whitelisted. A denied request is terminal; nothing downstream runs.
func (g *Gate) RequestIsAllowed(ctx context.Context, clientKey, path string) error {
	if err := g.ready(); err != nil {
		return err
	}
	if !g.cfg.RateLimit.Enabled {
		return nil
	}

	allowed, err := g.limiter.Allow(ctx, clientKey, ratelimit.Classify(path))
	if err != nil {
		return wrapBackend(err)
	}
	if !allowed {
		g.metrics.Inc(MetricAuthRateLimited)
		g.emitAudit(ctx, EventAuthRateLimited, false, "", "", clientKey, ErrRateLimitExceeded,
			map[string]string{"path": path})
		return ErrRateLimitExceeded
	}
	return nil
}

// UpdateRateLimits replaces the limiter's ceilings at runtime. Requests
// already counted in the current window are reinterpreted under the new
// values.
func (g *Gate) UpdateRateLimits(maxRequests, publicMaxRequests, windowSeconds int) error {
	if err := g.ready(); err != nil {
		return err
	}
	return g.limiter.UpdateLimits(ratelimit.Limits{
		MaxRequests:       maxRequests,
		PublicMaxRequests: publicMaxRequests,
		WindowSeconds:     windowSeconds,
	})
}

// RateLimits returns the limiter's active ceilings.
func (g *Gate) RateLimits() (maxRequests, publicMaxRequests, windowSeconds int) {
	if g == nil {
		return 0, 0, 0
	}
	limits := g.limiter.CurrentLimits()
	return limits.MaxRequests, limits.PublicMaxRequests, limits.WindowSeconds
}

// WhitelistClientKey exempts a client key from rate limiting.
func (g *Gate) WhitelistClientKey(clientKey string) error {
	if err := g.ready(); err != nil {
		return err
	}
	g.limiter.AddToWhitelist(clientKey)
	return nil
}

// UnwhitelistClientKey re-subjects a client key to rate limiting, reporting
// whether it had been exempt.
func (g *Gate) UnwhitelistClientKey(clientKey string) (bool, error) {
	if err := g.ready(); err != nil {
		return false, err
	}
	return g.limiter.RemoveFromWhitelist(clientKey), nil
}

// WhitelistedClientKeys returns a copy of the current whitelist.
func (g *Gate) WhitelistedClientKeys() []string {
	if g == nil {
		return nil
	}
	return g.limiter.Whitelist()
}

// MetricsSnapshot returns a point-in-time snapshot of the in-process
// counters.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil {
		return MetricsSnapshot{}
	}
	return g.metrics.Snapshot()
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (g *Gate) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.auditDispatcher.Dropped()
}

func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
