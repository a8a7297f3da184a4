package trustgate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
	"strings"
)

// generateRecoveryCodes produces count single-use recovery codes, each made
// of length decimal digits, together with their storable hashes. The plain
// codes are shown to the principal exactly once; only hashes persist.
func generateRecoveryCodes(count, length int) ([]string, []RecoveryCodeRecord, error) {
	codes := make([]string, 0, count)
	records := make([]RecoveryCodeRecord, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		code, err := randomDigits(length)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		records = append(records, RecoveryCodeRecord{Hash: hashRecoveryCode(code)})
	}

	return codes, records, nil
}

func randomDigits(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func hashRecoveryCode(code string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(code)))
}

// matchRecoveryCode reports whether hash corresponds to code, in constant
// time over the digest.
func matchRecoveryCode(hash [32]byte, code string) bool {
	candidate := hashRecoveryCode(code)
	return subtle.ConstantTimeCompare(hash[:], candidate[:]) == 1
}
