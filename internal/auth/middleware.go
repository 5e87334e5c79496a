package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// Resolver turns a raw bearer token into a verified identity.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (models.Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// UserID returns the caller's id or "".
func UserID(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// Middleware rejects requests without a valid bearer token.
func Middleware(resolver Resolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				log.LogSecurity("AUTH", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, models.ErrUnauthorized)
				return
			}

			identity, err := resolver.Resolve(r.Context(), raw)
			if err != nil {
				log.LogSecurity("AUTH", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, models.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole must sit behind Middleware.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := FromContext(r.Context())
			if !ok {
				utils.WriteError(w, models.ErrUnauthorized)
				return
			}
			if identity.Role != role {
				utils.WriteError(w, models.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
