package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustgate-io/trustgate/revocation"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// openSessionScript atomically replaces a principal's session: the prior
// token hash (if any, and not yet expired) is written into the revocation
// ledger, its reverse index is deleted, and only then is the new row
// inserted. Running inside one script means a concurrent IsLive can observe
// either the old session or the new one, never both and never neither
// while one is valid.
const openSessionScript = `
local row = redis.call("GET", KEYS[1])
if row then
  local sep = string.find(row, ":", 1, true)
  local old_hash = string.sub(row, 1, sep - 1)
  local old_exp = tonumber(string.sub(row, sep + 1))
  if old_exp and old_exp > tonumber(ARGV[4]) then
    redis.call("ZADD", KEYS[2], "NX", old_exp, old_hash)
  end
  redis.call("DEL", ARGV[5] .. old_hash)
end
redis.call("SET", KEYS[1], ARGV[2] .. ":" .. ARGV[3])
redis.call("SET", KEYS[4], ARGV[1])
redis.call("ZADD", KEYS[3], tonumber(ARGV[3]), ARGV[1])
return 1
`

var openSessionLua = redis.NewScript(openSessionScript)

const closeSessionScript = `
local row = redis.call("GET", KEYS[1])
if not row then
  return 0
end
local sep = string.find(row, ":", 1, true)
local old_hash = string.sub(row, 1, sep - 1)
local old_exp = tonumber(string.sub(row, sep + 1))
if old_exp and old_exp > tonumber(ARGV[2]) then
  redis.call("ZADD", KEYS[2], "NX", old_exp, old_hash)
end
redis.call("DEL", ARGV[3] .. old_hash)
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[3], ARGV[1])
return 1
`

var closeSessionLua = redis.NewScript(closeSessionScript)

// isLiveScript resolves token hash -> principal -> row and checks that the
// row still names this exact token and has not expired. Dangling reverse
// index entries are cleaned up on sight.
const isLiveScript = `
local pid = redis.call("GET", KEYS[1])
if not pid then
  return 0
end
local row = redis.call("GET", ARGV[3] .. pid)
if not row then
  redis.call("DEL", KEYS[1])
  return 0
end
local sep = string.find(row, ":", 1, true)
local hash = string.sub(row, 1, sep - 1)
local exp = tonumber(string.sub(row, sep + 1))
if hash ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 0
end
if not exp or exp <= tonumber(ARGV[2]) then
  return 0
end
return 1
`

var isLiveLua = redis.NewScript(isLiveScript)

// sweepExpiredScript walks the expiry index and deletes only rows whose
// embedded expiry has genuinely passed, so a sweep can never remove a
// session a concurrent IsLive would still accept.
const sweepExpiredScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local removed = 0
for _, pid in ipairs(due) do
  local row_key = ARGV[2] .. pid
  local row = redis.call("GET", row_key)
  if row then
    local sep = string.find(row, ":", 1, true)
    local hash = string.sub(row, 1, sep - 1)
    local exp = tonumber(string.sub(row, sep + 1))
    if exp and exp < tonumber(ARGV[1]) then
      redis.call("DEL", ARGV[3] .. hash)
      redis.call("DEL", row_key)
      redis.call("ZREM", KEYS[1], pid)
      removed = removed + 1
    else
      redis.call("ZADD", KEYS[1], exp, pid)
    end
  else
    redis.call("ZREM", KEYS[1], pid)
  end
end
return removed
`

var sweepExpiredLua = redis.NewScript(sweepExpiredScript)

// Registry is the Redis-backed single-session store. At most one session
// row exists per principal at any observation point.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
	ledger *revocation.Ledger
}

// NewRegistry creates a session Registry. Opening or closing a session
// revokes the displaced token through ledger's sorted set inside the same
// Redis script.
func NewRegistry(client redis.UniversalClient, prefix string, ledger *revocation.Ledger) *Registry {
	if prefix == "" {
		prefix = "tg"
	}
	return &Registry{redis: client, prefix: prefix, ledger: ledger}
}

func (r *Registry) principalKey(principalID string) string {
	return r.prefix + ":p:" + principalID
}

func (r *Registry) tokenKeyPrefix() string {
	return r.prefix + ":t:"
}

func (r *Registry) expiryIndexKey() string {
	return r.prefix + ":exp"
}

// Open installs token as the principal's only live session, revoking and
// deleting any prior session first. The whole transition runs in one Lua
// script; two concurrent Open calls for the same principal serialize in
// Redis and the loser's session is revoked like any other replacement.
func (r *Registry) Open(ctx context.Context, principalID, tokenStr string, expiresAt time.Time) error {
	if principalID == "" || tokenStr == "" {
		return errors.New("principal id and token required")
	}

	hash := revocation.HashToken(tokenStr)
	keys := []string{
		r.principalKey(principalID),
		r.ledger.Key(),
		r.expiryIndexKey(),
		r.tokenKeyPrefix() + hash,
	}
	argv := []interface{}{
		principalID,
		hash,
		strconv.FormatInt(expiresAt.Unix(), 10),
		strconv.FormatInt(time.Now().Unix(), 10),
		r.tokenKeyPrefix(),
	}

	if err := openSessionLua.Run(ctx, r.redis, keys, argv...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsLive reports whether this exact token is the principal's current
// session. Expired rows report false even before the sweep removes them.
func (r *Registry) IsLive(ctx context.Context, tokenStr string) (bool, error) {
	hash := revocation.HashToken(tokenStr)
	keys := []string{r.tokenKeyPrefix() + hash}
	argv := []interface{}{
		hash,
		strconv.FormatInt(time.Now().Unix(), 10),
		r.prefix + ":p:",
	}

	n, err := isLiveLua.Run(ctx, r.redis, keys, argv...).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// CloseForPrincipal revokes and deletes the principal's session, if any.
// Used for logout and for administrative force-logout on block. Reports
// whether a session existed.
func (r *Registry) CloseForPrincipal(ctx context.Context, principalID string) (bool, error) {
	keys := []string{
		r.principalKey(principalID),
		r.ledger.Key(),
		r.expiryIndexKey(),
	}
	argv := []interface{}{
		principalID,
		strconv.FormatInt(time.Now().Unix(), 10),
		r.tokenKeyPrefix(),
	}

	n, err := closeSessionLua.Run(ctx, r.redis, keys, argv...).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// SweepExpired deletes rows whose expiry lies strictly before now and
// returns the number removed. It does not revoke: an expired token already
// fails signature validation.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	keys := []string{r.expiryIndexKey()}
	argv := []interface{}{
		strconv.FormatInt(now.Unix(), 10),
		r.prefix + ":p:",
		r.tokenKeyPrefix(),
	}

	removed, err := sweepExpiredLua.Run(ctx, r.redis, keys, argv...).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}
