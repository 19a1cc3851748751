package middleware

import (
	"context"
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/httputil"
)

// PermissionChecker is the resolver surface the guards need. Checks
// never error; every unknown or unauthorized case is simply false.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, groupID int64, permission string) bool
}

// RequirePlatformPermission guards a route behind a platform-wide
// (system-group) permission. Anonymous requests get 401; authenticated
// requests without the permission get 403.
func RequirePlatformPermission(checker PermissionChecker, permission string) func(http.Handler) http.Handler {
	return requirePermission(checker, permission, func(*http.Request) int64 { return 0 })
}

// RequireGroupPermission guards a route behind a permission in the
// group named by the groupID path parameter. Platform-tier grants
// apply too: the resolver unions both tiers.
func RequireGroupPermission(checker PermissionChecker, permission string) func(http.Handler) http.Handler {
	return requirePermission(checker, permission, func(r *http.Request) int64 {
		groupID, err := httputil.ParsePathInt64(r, "groupID")
		if err != nil {
			return 0
		}
		return groupID
	})
}

func requirePermission(checker PermissionChecker, permission string, groupFrom func(*http.Request) int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := contextkeys.Actor(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !checker.HasPermission(r.Context(), actorID, groupFrom(r), permission) {
				httputil.WriteForbidden(w, "requires permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
