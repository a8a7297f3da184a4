// Package middleware exposes HTTP adapters for rate limiting, session
// validation, and role enforcement built on top of trustgate.Gate.
//
// # Guards
//
//   - [RateLimit]: sliding-window admission before any handler runs.
//   - [Guard]: bearer token validation with read-only enforcement for
//     suspended principals.
//   - [RequireRole]: role check against the validated result.
//
// Each guard reads HTTP inputs, calls the Gate, and injects the validated
// result into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gate calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// the Gate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the Gate).
//   - Access Redis (the Gate handles I/O).
//   - Make authorization decisions beyond what the Gate reports.
package middleware
