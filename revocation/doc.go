// Package revocation tracks explicitly revoked tokens until their natural
// expiry.
//
// # Design
//
// The ledger is a single Redis sorted set: member = SHA-256 of the token,
// score = expiry in unix seconds. Revoke is an NX add (idempotent),
// IsRevoked is a score lookup, and Sweep removes only members whose expiry
// lies strictly before the supplied instant. Entries are never dropped
// early: evicting a revoked token before its natural expiry would let an
// attacker replay it in the gap.
//
// The hourly sweep timer is owned by the gate, not this package.
package revocation
