package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Class selects which ceiling applies to a request.
type Class int

const (
	// ClassDefault covers sensitive and write-heavy paths.
	ClassDefault Class = iota
	// ClassPublic covers read-heavy, low-sensitivity paths and carries the
	// higher ceiling.
	ClassPublic
)

// Classify maps a request path onto its endpoint class. Pure function; the
// limiter itself never inspects paths.
func Classify(path string) Class {
	if strings.Contains(path, "/products") || strings.Contains(path, "/categories") {
		return ClassPublic
	}
	if strings.Contains(path, "/auth") && !strings.Contains(path, "/signup") {
		return ClassPublic
	}
	return ClassDefault
}

// Limits holds the runtime-adjustable tuning of the limiter.
type Limits struct {
	MaxRequests       int
	PublicMaxRequests int
	WindowSeconds     int
}

// allowScript: evict buckets at or older than the cutoff, sum the rest,
// admit and increment if under the limit. ARGV: now, windowSeconds, limit.
const allowScript = `
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
local fields = redis.call("HKEYS", KEYS[1])
local total = 0
for _, f in ipairs(fields) do
  local ts = tonumber(f)
  if not ts or ts <= cutoff then
    redis.call("HDEL", KEYS[1], f)
  else
    total = total + tonumber(redis.call("HGET", KEYS[1], f) or "0")
  end
end
if total >= tonumber(ARGV[3]) then
  return 0
end
redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]) + 1)
return 1
`

var allowLua = redis.NewScript(allowScript)

// Limiter admits or denies requests per client key using a sliding window
// of per-second counters held in Redis. The window state is shared-store
// backed; the whitelist is an in-process set guarded by a RWMutex since it
// is read on every call and mutated rarely.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string

	mu     sync.RWMutex
	limits Limits

	wmu       sync.RWMutex
	whitelist map[string]struct{}

	// now is swappable in tests; the script receives the timestamp as an
	// argument so the window math is deterministic.
	now func() time.Time
}

// New creates a Limiter with the given initial limits and whitelist.
func New(client redis.UniversalClient, prefix string, limits Limits, whitelist []string) *Limiter {
	if prefix == "" {
		prefix = "trl"
	}
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		if ip = strings.TrimSpace(ip); ip != "" {
			wl[ip] = struct{}{}
		}
	}
	return &Limiter{
		redis:     client,
		prefix:    prefix,
		limits:    limits,
		whitelist: wl,
		now:       time.Now,
	}
}

func (l *Limiter) key(clientKey string) string {
	return l.prefix + ":" + clientKey
}

// Allow reports whether a request from clientKey to an endpoint of the
// given class is admitted, incrementing the window on admission.
// Whitelisted keys are always admitted and leave window state untouched.
func (l *Limiter) Allow(ctx context.Context, clientKey string, class Class) (bool, error) {
	if l.isWhitelisted(clientKey) {
		return true, nil
	}

	l.mu.RLock()
	limits := l.limits
	l.mu.RUnlock()

	limit := limits.MaxRequests
	if class == ClassPublic {
		limit = limits.PublicMaxRequests
	}

	keys := []string{l.key(clientKey)}
	argv := []interface{}{
		l.now().Unix(),
		limits.WindowSeconds,
		limit,
	}

	n, err := allowLua.Run(ctx, l.redis, keys, argv...).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// UpdateLimits replaces the limits. Takes effect on the next Allow call;
// counts already in the window are reinterpreted under the new values
// rather than reset.
func (l *Limiter) UpdateLimits(limits Limits) error {
	if limits.MaxRequests <= 0 || limits.WindowSeconds <= 0 {
		return errors.New("limits must be > 0")
	}
	if limits.PublicMaxRequests < limits.MaxRequests {
		return errors.New("public limit must be >= default limit")
	}
	l.mu.Lock()
	l.limits = limits
	l.mu.Unlock()
	return nil
}

// CurrentLimits returns a copy of the active limits.
func (l *Limiter) CurrentLimits() Limits {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits
}

func (l *Limiter) isWhitelisted(clientKey string) bool {
	l.wmu.RLock()
	_, ok := l.whitelist[clientKey]
	l.wmu.RUnlock()
	return ok
}

// AddToWhitelist exempts a client key from rate limiting.
func (l *Limiter) AddToWhitelist(clientKey string) {
	l.wmu.Lock()
	l.whitelist[clientKey] = struct{}{}
	l.wmu.Unlock()
}

// RemoveFromWhitelist re-subjects a client key to rate limiting, reporting
// whether it had been whitelisted.
func (l *Limiter) RemoveFromWhitelist(clientKey string) bool {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if _, ok := l.whitelist[clientKey]; !ok {
		return false
	}
	delete(l.whitelist, clientKey)
	return true
}

// Whitelist returns a copy of the whitelisted client keys.
func (l *Limiter) Whitelist() []string {
	l.wmu.RLock()
	defer l.wmu.RUnlock()
	out := make([]string, 0, len(l.whitelist))
	for ip := range l.whitelist {
		out = append(out, ip)
	}
	return out
}
