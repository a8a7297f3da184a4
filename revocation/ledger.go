package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Ledger is a Redis-backed set of revoked tokens keyed by token hash with
// the token's natural expiry as score. Safe for concurrent use.
type Ledger struct {
	redis redis.UniversalClient
	key   string
}

// NewLedger creates a revocation Ledger storing its sorted set under key.
func NewLedger(client redis.UniversalClient, key string) *Ledger {
	if key == "" {
		key = "rvk:ledger"
	}
	return &Ledger{redis: client, key: key}
}

// Key returns the Redis key of the underlying sorted set. The session
// registry writes into the same set from its Lua script so that revoking a
// replaced session is atomic with inserting the new one.
func (l *Ledger) Key() string {
	return l.key
}

// HashToken returns the hex SHA-256 digest under which a token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke records the token as revoked until expiresAt. Idempotent: a token
// already present keeps its original score and the call is a no-op.
func (l *Ledger) Revoke(ctx context.Context, tokenStr string, expiresAt time.Time) error {
	if tokenStr == "" {
		return errors.New("empty token")
	}

	err := l.redis.ZAddNX(ctx, l.key, redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: HashToken(tokenStr),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token is in the ledger. Membership alone
// decides; expiry is enforced by the signer and by Sweep.
func (l *Ledger) IsRevoked(ctx context.Context, tokenStr string) (bool, error) {
	_, err := l.redis.ZScore(ctx, l.key, HashToken(tokenStr)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

// Sweep deletes every entry whose expiry lies strictly before now and
// returns the number removed. Entries expiring at or after now survive.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(now.Unix(), 10)
	removed, err := l.redis.ZRemRangeByScore(ctx, l.key, "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// Size returns the number of ledger entries, swept or not. Used by tests
// and the security report.
func (l *Ledger) Size(ctx context.Context) (int64, error) {
	n, err := l.redis.ZCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
