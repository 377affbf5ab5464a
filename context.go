package goCreds

import "context"

type ctxKey int

const clientIPKey ctxKey = iota

// WithClientIP records the caller's address on ctx. Login throttling keys on it
// and audit events carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the address stored by [WithClientIP], or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
