// Package password hashes and verifies credentials with Argon2id using the
// PHC string format ($argon2id$v=..$m=..,t=..,p=..$salt$hash). Verification
// derives parameters from the stored string, so parameter changes roll out
// without invalidating existing hashes.
package password
