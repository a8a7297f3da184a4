package trustgate

import (
	"errors"
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

// Builder assembles a [Gate]. Obtain one from [New], supply the required
// collaborators, and call [Builder.Build] exactly once.
type Builder struct {
	cfg       Config
	redis     redis.UniversalClient
	store     CredentialStore
	auditSink AuditSink
}

// New returns a Builder seeded with production defaults. Only the signing
// key, the Redis client, and the credential store have no default.
func New() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the entire configuration. Zero-value sections lose
// their defaults; most callers should mutate the result of [New] through
// the narrower With methods instead.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithSigningKey sets the HMAC key used for every issued token.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.cfg.Token.SigningKey = key
	return b
}

// WithSessionTTL overrides the default session lifetime.
func (b *Builder) WithSessionTTL(ttl time.Duration) *Builder {
	b.cfg.Token.SessionTTL = ttl
	return b
}

// WithRedis sets the Redis client backing sessions, revocation, and rate
// limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the principal database adapter.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink enables async auditing into sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.cfg.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled turns the in-process counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.cfg.Metrics.Enabled = enabled
	return b
}

// WithRateLimitDisabled turns request admission off entirely. Intended for
// deployments that rate limit at an outer layer.
func (b *Builder) WithRateLimitDisabled() *Builder {
	b.cfg.RateLimit.Enabled = false
	return b
}

// Build validates the configuration, wires the collaborators, starts the
// background sweepers, and returns the Gate. The caller owns the Gate and
// must Close it.
func (b *Builder) Build() (*Gate, error) {
	if b == nil {
		return nil, ErrGateNotReady
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.store == nil {
		return nil, errors.New("credential store is required")
	}

	cfg := cloneConfig(b.cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		SigningKey: cfg.Token.SigningKey,
		Issuer:     cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	ledger := revocation.NewLedger(b.redis, cfg.Session.RedisPrefix+":rvk")
	sessions := session.NewRegistry(b.redis, cfg.Session.RedisPrefix, ledger)
	limiter := ratelimit.New(b.redis, cfg.RateLimit.RedisPrefix, ratelimit.Limits{
		MaxRequests:       cfg.RateLimit.MaxRequests,
		PublicMaxRequests: cfg.RateLimit.PublicMaxRequests,
		WindowSeconds:     cfg.RateLimit.WindowSeconds,
	}, cfg.RateLimit.IPWhitelist)

	g := &Gate{
		cfg:            cfg,
		store:          b.store,
		redis:          b.redis,
		tokens:         tokens,
		sessions:       sessions,
		ledger:         ledger,
		limiter:        limiter,
		hasher:         hasher,
		totp:           newTOTPManager(cfg.TOTP),
		principalLocks: locks.NewKeyed(),
		metrics:        NewMetrics(cfg.Metrics),
		auditDispatcher: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		now:  time.Now,
		stop: make(chan struct{}),
	}

	g.startSweepers()
	return g, nil
}
