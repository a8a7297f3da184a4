package trustgate

import (
	"errors"
	"time"
)

// Config defines a public type used by trustgate APIs.
//
// Config instances are intended to be configured before [Builder.Build] and
// then treated as immutable. Rate limits and the IP whitelist are the only
// runtime-mutable knobs, adjusted through Gate methods rather than here.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	TOTP      TOTPConfig
	Password  PasswordConfig
	Reset     ResetConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// TokenConfig controls the HMAC signer. Exactly one key is configured;
// tokens signed with any other key or algorithm are rejected outright.
type TokenConfig struct {
	SessionTTL time.Duration
	SigningKey []byte
	Issuer     string
}

// SessionConfig controls the single-session registry and its expiry sweep.
type SessionConfig struct {
	RedisPrefix   string
	SweepInterval time.Duration
}

// RateLimitConfig holds the initial sliding-window limits. MaxRequests is
// the ceiling for the default endpoint class, PublicMaxRequests the higher
// ceiling for read-heavy public paths. Whitelisted client keys bypass the
// window entirely.
type RateLimitConfig struct {
	Enabled           bool
	MaxRequests       int
	PublicMaxRequests int
	WindowSeconds     int
	IPWhitelist       []string
	RedisPrefix       string
}

// SecurityConfig holds the lockout policy.
type SecurityConfig struct {
	// MaxFailedAttempts is the threshold at which the lockout machine moves
	// a principal to BLOCKED. The increment and the threshold check are one
	// atomic step per principal.
	MaxFailedAttempts int

	// UnlockExpiryExtension is added to accountExpiresAt on administrative
	// unlock.
	UnlockExpiryExtension time.Duration

	// CountMalformedMFACode counts a non-numeric MFA code that also fails
	// the recovery-code check toward the failed-login counter. The observed
	// source behavior treats malformed codes as a recovery-code attempt
	// only, so this defaults to false.
	CountMalformedMFACode bool
}

// TOTPConfig controls the second-factor verifier.
type TOTPConfig struct {
	Issuer            string
	Digits            int
	Period            int
	Algorithm         string
	Skew              int
	RecoveryCodeCount int
	// RecoveryCodeDigits is the length of each numeric recovery code.
	RecoveryCodeDigits int
}

// PasswordConfig holds Argon2id parameters. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// ResetConfig controls the password-reset token flow.
type ResetConfig struct {
	Enabled  bool
	ResetTTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RevocationSweepInterval and the session sweep interval are fixed design
// choices of the source system; they are configurable only through the
// Session section to keep the ledger contract simple.
const revocationSweepInterval = time.Hour

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SessionTTL: 24 * time.Hour,
			Issuer:     "trustgate",
		},
		Session: SessionConfig{
			RedisPrefix:   "tg",
			SweepInterval: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MaxRequests:       100,
			PublicMaxRequests: 300,
			WindowSeconds:     60,
			IPWhitelist:       []string{"127.0.0.1", "0:0:0:0:0:0:0:1"},
			RedisPrefix:       "trl",
		},
		Security: SecurityConfig{
			MaxFailedAttempts:     5,
			UnlockExpiryExtension: 365 * 24 * time.Hour,
			CountMalformedMFACode: false,
		},
		TOTP: TOTPConfig{
			Issuer:             "trustgate",
			Digits:             6,
			Period:             30,
			Algorithm:          "SHA1",
			Skew:               1,
			RecoveryCodeCount:  10,
			RecoveryCodeDigits: 12,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Reset: ResetConfig{
			Enabled:  true,
			ResetTTL: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	out.RateLimit.IPWhitelist = append([]string(nil), cfg.RateLimit.IPWhitelist...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency before Build wires anything.
func (c *Config) Validate() error {
	if c.Token.SessionTTL <= 0 {
		return errors.New("Token SessionTTL must be > 0")
	}
	if len(c.Token.SigningKey) < 32 {
		return errors.New("Token SigningKey must be at least 32 bytes")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("Session SweepInterval must be > 0")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0")
		}
		if c.RateLimit.PublicMaxRequests < c.RateLimit.MaxRequests {
			return errors.New("RateLimit PublicMaxRequests must be >= MaxRequests")
		}
		if c.RateLimit.WindowSeconds <= 0 {
			return errors.New("RateLimit WindowSeconds must be > 0")
		}
	}

	if c.Security.MaxFailedAttempts <= 0 {
		return errors.New("Security MaxFailedAttempts must be > 0")
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be 0..2")
	}
	if c.TOTP.RecoveryCodeCount <= 0 {
		return errors.New("TOTP RecoveryCodeCount must be > 0")
	}
	if c.TOTP.RecoveryCodeDigits < 8 {
		return errors.New("TOTP RecoveryCodeDigits must be >= 8")
	}

	if c.Reset.Enabled && c.Reset.ResetTTL <= 0 {
		return errors.New("Reset ResetTTL must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
