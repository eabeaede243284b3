package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	credVault "github.com/MrEthical07/credVault"
)

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*credVault.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*credVault.AuthResult)
	return res, ok
}

func Guard(engine *credVault.Engine) func(http.Handler) http.Handler {
	return guard(engine, false)
}

// RequireActive is [Guard] plus an activity stamp on the backing session, so
// inactivity-based expiry treats every guarded request as user activity.
//
//	Docs: docs/middleware.md
func RequireActive(engine *credVault.Engine) func(http.Handler) http.Handler {
	return guard(engine, true)
}

func guard(engine *credVault.Engine, touch bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.ValidateSessionToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if touch {
				_ = engine.TouchSession(res.SessionID)
			}

			ctx := r.Context()
			if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
				ctx = credVault.WithClientIP(ctx, host)
			}
			if ua := r.UserAgent(); ua != "" {
				ctx = credVault.WithUserAgent(ctx, ua)
			}
			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
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
