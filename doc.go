// Package trustgate is the trust boundary of a multi-tenant backend: it
// decides, for every inbound request, whether the caller is who they claim
// to be, whether their account is currently permitted to act, and whether
// they are issuing requests too fast.
//
// The package is designed for concurrent server workloads: Gate methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// trustgate is the public surface. It exposes [Gate], [Builder], [Config],
// the [CredentialStore] integration interface, and value types
// (AuthResult, SecurityReport, MetricsSnapshot). Token signing lives in
// the token package, the single-session registry in session, the revocation
// ledger in revocation, and the sliding-window limiter in ratelimit; audit
// dispatch and the striped lock table live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, Lua scripts, or key layouts in its public API.
//   - Perform I/O outside of Gate methods and the background sweeps
//     (construction via Builder is allocation-only until Build).
//   - Own principal persistence: reads and writes go through the caller's
//     [CredentialStore].
//
// # Request pipeline
//
// The intended composition per inbound request is rate limiter first, then
// token validation (signature, revocation ledger, session registry), then
// account status enforcement. The middleware package packages that pipeline
// as an http.Handler decorator.
package trustgate
