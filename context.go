package authcore

import "context"

// requestKey namespaces request metadata stored on a context.
type requestKey uint8

const (
	keyClientIP requestKey = iota + 1
	keyUserAgent
)

// WithClientIP records the caller's address. Per-IP request budgets, CAPTCHA
// verification and audit events read it back.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// WithUserAgent records the HTTP User-Agent for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

func clientIPFromContext(ctx context.Context) string  { return requestString(ctx, keyClientIP) }
func userAgentFromContext(ctx context.Context) string { return requestString(ctx, keyUserAgent) }

func requestString(ctx context.Context, key requestKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
