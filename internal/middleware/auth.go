package middleware

import (
	"context"
	"net/http"
	"strings"

	"resonance/internal/moderation"
)

// ActorHeader carries the authenticated user id. It is set by the gateway
// in front of this service after it has verified the caller's session.
const ActorHeader = "X-Actor-ID"

// ActorResolver builds an Actor from an authenticated user id
type ActorResolver interface {
	Actor(userID string) moderation.Actor
}

// Context keys for storing auth info
type contextKey string

const contextKeyActor contextKey = "actor"

// ActorMiddleware resolves the caller's role and stores the actor in the
// request context. Requests without the header continue unauthenticated.
func ActorMiddleware(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(ActorHeader))
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyActor, resolver.Actor(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext retrieves the authenticated actor from the request context
func ActorFromContext(ctx context.Context) (moderation.Actor, bool) {
	actor, ok := ctx.Value(contextKeyActor).(moderation.Actor)
	if !ok || actor.ID == "" {
		return moderation.Actor{}, false
	}
	return actor, true
}
