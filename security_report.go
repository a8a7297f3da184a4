package trustgate

import "context"

// SecurityReport is an operator-facing snapshot of the gate's live posture.
type SecurityReport struct {
	RateLimitEnabled  bool
	MaxRequests       int
	PublicMaxRequests int
	WindowSeconds     int
	Whitelist         []string

	RevocationLedgerSize int64

	MaxFailedAttempts int
	MFADigits         int
	SessionTTLSeconds int64
	ResetTTLSeconds   int64

	AuditEnabled bool
	AuditDropped uint64

	Metrics MetricsSnapshot
}

// Report gathers the current limits, whitelist, revocation ledger size, and
// metric counters into one structure. It reads shared state but never
// mutates it.
func (g *Gate) Report(ctx context.Context) (SecurityReport, error) {
	if err := g.ready(); err != nil {
		return SecurityReport{}, err
	}

	ledgerSize, err := g.ledger.Size(ctx)
	if err != nil {
		return SecurityReport{}, wrapBackend(err)
	}

	limits := g.limiter.CurrentLimits()
	return SecurityReport{
		RateLimitEnabled:     g.cfg.RateLimit.Enabled,
		MaxRequests:          limits.MaxRequests,
		PublicMaxRequests:    limits.PublicMaxRequests,
		WindowSeconds:        limits.WindowSeconds,
		Whitelist:            g.limiter.Whitelist(),
		RevocationLedgerSize: ledgerSize,
		MaxFailedAttempts:    g.cfg.Security.MaxFailedAttempts,
		MFADigits:            g.cfg.TOTP.Digits,
		SessionTTLSeconds:    int64(g.cfg.Token.SessionTTL.Seconds()),
		ResetTTLSeconds:      int64(g.cfg.Reset.ResetTTL.Seconds()),
		AuditEnabled:         g.cfg.Audit.Enabled,
		AuditDropped:         g.auditDispatcher.Dropped(),
		Metrics:              g.metrics.Snapshot(),
	}, nil
}
