package httpapi

import (
	"context"
	"net/http"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/auth"
)

type ctxKey int

const userCtxKey ctxKey = iota

// userFromCtx returns the authenticated User attached by RequireAuth.
func userFromCtx(ctx context.Context) auth.User {
	u, _ := ctx.Value(userCtxKey).(auth.User)
	return u
}

// RequireAuth authenticates every request through gate and, when perm is
// non-empty, checks it against the caller's role permissions. A Basic-Auth
// result sets X-Session-Token/X-Session-Reused on the response.
func RequireAuth(gate *auth.AuthGate, perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := gate.Authenticate(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if perm != "" && !gate.Authorize(result.User, perm) {
				writeError(w, r, apperr.ErrPermissionDenied)
				return
			}
			if result.Basic {
				w.Header().Set("X-Session-Token", result.Token)
				if result.Reused {
					w.Header().Set("X-Session-Reused", "true")
				} else {
					w.Header().Set("X-Session-Reused", "false")
				}
			}

			ctx := context.WithValue(r.Context(), userCtxKey, result.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
