package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/najdbe/internal/auth"
	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthMiddleware verifies the bearer token with gw and adds the principal to
// the request context.
func AuthMiddleware(gw auth.Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization header")
				return
			}

			p, err := gw.Authenticate(r.Context(), token)
			if errors.Is(err, auth.ErrUnauthenticated) {
				jsonError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}
			if err != nil {
				writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that checks if the principal has at least the given role.
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			if p.IsZero() {
				jsonError(w, http.StatusUnauthorized, "unauthenticated", "not authenticated")
				return
			}
			if !model.RoleAtLeast(p.Role, minimum) {
				jsonError(w, http.StatusForbidden, catalog.CodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFrom returns the authenticated principal, or the zero principal.
func PrincipalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(principalKey).(model.Principal)
	return p
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
