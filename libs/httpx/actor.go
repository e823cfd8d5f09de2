package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers are set by the gateway after authenticating the caller; services trust them.
const (
	UserIDHeader = "X-User-Id"
	RoleHeader   = "X-Role"
)

// Actor is the caller identity asserted by the gateway.
type Actor struct {
	ID   string
	Role string
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

// RequireActor rejects requests without identity headers, or whose role is not in roles
// when roles is non-empty.
func RequireActor(roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := Actor{
				ID:   strings.TrimSpace(r.Header.Get(UserIDHeader)),
				Role: strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader))),
			}
			if actor.ID == "" || actor.Role == "" {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[actor.Role]; !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}
