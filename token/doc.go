// Package token creates and parses the signed, time-bounded bearer tokens
// used by trustgate.
//
// # Design
//
// Tokens are HMAC-SHA256 JWTs carrying subject, principal id, issue time,
// expiry (whole seconds since epoch), a kind claim (SESSION or RESET), and
// a random jti. The jti exists because issue time alone does not make two
// tokens for the same subject at the same instant distinguishable.
//
// Exactly one signing key is configured. The parser pins the algorithm to
// HS256, so unsigned ("none") tokens and tokens signed under any other
// scheme fail verification before claims are examined.
//
// # What this package must NOT do
//
//   - Consult the revocation ledger or the session registry; it is
//     stateless by contract.
//   - Accept more than one verification key.
package token
