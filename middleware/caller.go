package middleware

import (
	"context"
	"net/http"
	"strings"
)

// OwnerToken is the bearer token that marks a privileged caller.
const OwnerToken = "owner"

// CallerInfo describes who issued a request.
type CallerInfo struct {
	// Token is the raw bearer token, if any.
	Token string
	// Privileged is set for callers using service credentials.
	Privileged bool
}

type callerContextKey struct{}

// CallerFromContext returns the caller resolved by [Caller]. Requests that
// did not pass through it resolve to an unprivileged caller.
func CallerFromContext(ctx context.Context) CallerInfo {
	c, _ := ctx.Value(callerContextKey{}).(CallerInfo)
	return c
}

// Caller classifies the request's Authorization header. A missing or
// unknown token is not an error: most operations accept anonymous callers.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var info CallerInfo
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			info.Token = token
			info.Privileged = token == OwnerToken
		}
		ctx := context.WithValue(r.Context(), callerContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
