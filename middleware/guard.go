package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	trustgate "github.com/trustgate-io/trustgate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result installed by [Guard]
// for the current request.
func AuthResultFromContext(ctx context.Context) (*trustgate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*trustgate.AuthResult)
	return res, ok
}

// RateLimit admits or denies every request through the gate's sliding
// window before any handler runs. Denied requests get 429.
func RateLimit(gate *trustgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ip := clientIP(r)
			ctx := trustgate.WithClientIP(r.Context(), ip)

			if err := gate.RequestIsAllowed(ctx, ip, r.URL.Path); err != nil {
				switch {
				case errors.Is(err, trustgate.ErrRateLimitExceeded):
					http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				default:
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Guard validates the bearer token on every request and injects the result
// into the request context. Mutating methods are refused for read-only
// (suspended) principals with 403; every token failure is a uniform 401.
func Guard(gate *trustgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := trustgate.WithClientIP(r.Context(), clientIP(r))
			res, err := gate.ValidateSessionToken(ctx, token)
			if err != nil {
				switch {
				case errors.Is(err, trustgate.ErrAccountBlocked),
					errors.Is(err, trustgate.ErrAccountExpired):
					http.Error(w, "forbidden", http.StatusForbidden)
				case errors.Is(err, trustgate.ErrBackendUnavailable):
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				default:
					http.Error(w, "unauthorized", http.StatusUnauthorized)
				}
				return
			}

			if res.ReadOnly && isMutating(r.Method) {
				http.Error(w, "read-only access", http.StatusForbidden)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, &res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps a handler that only principals holding role may reach.
// Must run inside [Guard].
func RequireRole(role trustgate.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || !trustgate.HasRole(res.Roles, role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
