// Package session enforces the one-live-session-per-principal rule.
//
// # Design
//
// Two Redis key families, both namespaced by a configurable prefix:
//
//	<prefix>:p:<principalID>  ->  "<tokenHash>:<expiresAtUnix>"
//	<prefix>:t:<tokenHash>    ->  principalID
//
// plus a sorted set <prefix>:exp (member = principalID, score = expiry)
// that drives the periodic sweep without SCANning the keyspace.
//
// Open runs a Lua script that revokes the prior session into the
// revocation ledger's sorted set, deletes its reverse index, and inserts
// the new row as one atomic unit. That ordering (revoke, delete, insert)
// is what prevents a window in which two sessions for the same principal
// are simultaneously live, even under concurrent Open calls.
//
// The sweep never needs to revoke: an expired token already fails signature
// validation, and the sweep script only deletes rows whose embedded expiry
// has passed, so a concurrent IsLive on an unexpired session can never see
// a false negative.
package session
