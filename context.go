package trustgate

import "context"

type clientIPKey struct{}

// WithClientIP attaches the caller's IP to the context so gate operations
// can include it in audit events. Absence is tolerated everywhere.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
