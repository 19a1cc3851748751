package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

// SessionResolver resolves a session token to the id of the account it
// belongs to. Expired or revoked tokens return an error.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (int64, error)
}

// ActorMiddleware authenticates requests by session token and threads
// the acting user's id through the request context.
type ActorMiddleware struct {
	sessions SessionResolver
	optional bool
}

// NewActorMiddleware creates the middleware. With optional set,
// requests without a token pass through anonymously; guarded routes
// still reject them when they check for an actor.
func NewActorMiddleware(sessions SessionResolver, optional bool) *ActorMiddleware {
	return &ActorMiddleware{sessions: sessions, optional: optional}
}

// Handler wraps next with session authentication
func (m *ActorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		userID, err := m.sessions.ResolveSession(r.Context(), token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := contextkeys.WithActor(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
