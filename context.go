package authemu

import "context"

type requestIDContextKey struct{}
type baseURLContextKey struct{}

// WithRequestID attaches a request identifier to ctx. It is copied into
// the Event emitted for the operation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// WithBaseURL attaches the externally visible origin of the emulator to
// ctx. OOB links generated during the call point at it.
func WithBaseURL(ctx context.Context, baseURL string) context.Context {
	return context.WithValue(ctx, baseURLContextKey{}, baseURL)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func baseURLFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	u, _ := ctx.Value(baseURLContextKey{}).(string)
	return u
}
