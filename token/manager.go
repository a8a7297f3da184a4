package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind restricts what a token may be used for. Validation paths check the
// kind explicitly; it is never inferred from other claims.
type Kind string

const (
	// KindSession is the default kind for tokens issued on login.
	KindSession Kind = "SESSION"
	// KindReset marks short-lived password-reset tokens. A reset token is
	// never accepted by the session validation path and vice versa.
	KindReset Kind = "RESET"
)

var (
	// ErrMalformed is returned for input that is not a structurally valid
	// token.
	ErrMalformed = errors.New("malformed token")
	// ErrBadSignature is returned when the signature does not verify
	// against the configured key, including algorithm mismatches.
	ErrBadSignature = errors.New("bad token signature")
	// ErrExpired is returned for well-formed, correctly signed tokens whose
	// expiry has passed.
	ErrExpired = errors.New("token expired")
)

// Config defines the signer's single key and issuer identity.
type Config struct {
	SigningKey []byte
	Issuer     string
}

// Manager issues and parses signed tokens. It is stateless and safe for
// concurrent use.
type Manager struct {
	config Config
}

// Claims is the decoded payload of a trustgate token.
type Claims struct {
	PrincipalID string `json:"pid"`
	TokenKind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Username returns the subject the token was issued for.
func (c *Claims) Username() string {
	return c.RegisteredClaims.Subject
}

// Expiry returns the token expiry truncated to whole seconds.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// NewManager validates the key and returns a token Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	return &Manager{config: cfg}, nil
}

// Issue creates a signed token of the given kind for subject (username) and
// principal id, valid for ttl from now. Timestamps are whole seconds since
// epoch; the random jti keeps two same-instant tokens distinct.
func (m *Manager) Issue(subject, principalID string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("nil token manager")
	}
	if subject == "" || principalID == "" {
		return "", time.Time{}, errors.New("subject and principal id required")
	}
	if kind != KindSession && kind != KindReset {
		return "", time.Time{}, errors.New("unsupported token kind")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be > 0")
	}

	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := Claims{
		PrincipalID: principalID,
		TokenKind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry and returns the decoded claims.
// Failures map onto exactly one of [ErrMalformed], [ErrBadSignature], or
// [ErrExpired].
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	if m == nil {
		return nil, errors.New("nil token manager")
	}
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenKind == "" {
		claims.TokenKind = KindSession
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformed
	}
}
