// Package ratelimit is a sliding-window admission controller with
// per-endpoint-class limits and an IP whitelist.
//
// # Design
//
// Each client key owns a Redis hash mapping whole-second timestamps to
// request counts. Allow runs a Lua script that evicts buckets older than
// the window, sums the survivors, compares against the class limit, and
// increments the current second's bucket in one atomic step per client
// key, so concurrent requests cannot jointly exceed the limit through a
// read-then-increment race.
//
// Second-granularity bucketing bounds memory at windowSeconds buckets per
// active client and yields an exact sliding count at bucket granularity.
// Eviction cost is O(window) per call, acceptable because windows are tens
// to low hundreds of seconds.
//
// Whitelisted client keys are admitted without consulting or mutating
// window state. Limits and window length are mutable at runtime; a change
// takes effect on the next Allow call, never retroactively.
package ratelimit
