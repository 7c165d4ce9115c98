package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"sigedoc/internal/jwtauth"
	"sigedoc/internal/permission"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(tokenString string) (*jwtauth.Claims, error)
}

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handlers and tests.
var ContextKeyActor = contextKeyActor{}

// ActorFrom retrieves the authenticated actor from the context.
func ActorFrom(ctx context.Context) (permission.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(permission.Actor)
	return actor, ok
}

// WithActor stores an actor on the context. Exposed for handler tests that
// bypass the middleware.
func WithActor(ctx context.Context, actor permission.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequireAuth validates the bearer token and stores the resolved actor on the
// request context. Requests without a valid token get 401.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access, missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, malformed claims",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
