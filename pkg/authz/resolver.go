package authz

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/guildhall-io/guildhall/pkg/observability"
)

// Resolver computes effective permissions for a (user, context group)
// pair by combining two strictly additive tiers.
//
// Tier 1 is platform-wide: the union of grants reachable through every
// system group in which the user holds an active membership, regardless
// of the context group. Tier 2 is group-scoped: the union of grants of
// the roles assigned to the user inside the context group, gated on that
// membership being active.
type Resolver struct {
	db      *sql.DB
	cache   *Cache
	metrics *observability.Metrics
}

// NewResolver creates a Resolver. cache and metrics may be nil.
func NewResolver(db *sql.DB, cache *Cache, metrics *observability.Metrics) *Resolver {
	return &Resolver{db: db, cache: cache, metrics: metrics}
}

const tier1Query = `
	SELECT DISTINCT p.name
	FROM group_memberships gm
	JOIN groups g ON g.id = gm.group_id AND g.kind = 'system'
	JOIN user_group_roles ugr ON ugr.group_id = gm.group_id AND ugr.user_id = gm.user_id
	JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
	JOIN permissions p ON p.id = grp.permission_id
	WHERE gm.user_id = $1 AND gm.status = 'active'
`

const tier2Query = `
	SELECT DISTINCT p.name
	FROM group_memberships gm
	JOIN user_group_roles ugr ON ugr.group_id = gm.group_id AND ugr.user_id = gm.user_id
	JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
	JOIN permissions p ON p.id = grp.permission_id
	WHERE gm.user_id = $1 AND gm.group_id = $2 AND gm.status = 'active'
`

// EffectivePermissions returns the sorted union of both tiers. Unknown
// users or groups simply resolve to an empty set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, groupID int64) ([]string, error) {
	if userID <= 0 {
		return []string{}, nil
	}

	if r.cache != nil {
		if perms, tier, ok := r.cache.Get(ctx, userID, groupID); ok {
			if r.metrics != nil {
				r.metrics.ResolutionCacheHits.WithLabelValues(tier).Inc()
			}
			return perms, nil
		}
		if r.metrics != nil {
			r.metrics.ResolutionCacheMisses.WithLabelValues("all").Inc()
		}
	}

	set := make(map[string]bool)

	if err := r.collect(ctx, set, tier1Query, userID); err != nil {
		return nil, fmt.Errorf("failed to resolve platform-tier permissions: %w", err)
	}
	if groupID > 0 {
		if err := r.collect(ctx, set, tier2Query, userID, groupID); err != nil {
			return nil, fmt.Errorf("failed to resolve group-tier permissions: %w", err)
		}
	}

	perms := make([]string, 0, len(set))
	for name := range set {
		perms = append(perms, name)
	}
	sort.Strings(perms)

	if r.cache != nil {
		r.cache.Set(ctx, userID, groupID, perms)
	}
	return perms, nil
}

func (r *Resolver) collect(ctx context.Context, set map[string]bool, query string, args ...interface{}) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		set[name] = true
	}
	return rows.Err()
}

// HasPermission reports whether the user holds the named permission in
// the context group. It never errors: unknown ids, unknown permission
// names, absent arguments, and even resolution failures all answer
// false. The check is idempotent and side-effect-free.
func (r *Resolver) HasPermission(ctx context.Context, userID, groupID int64, permission string) bool {
	if userID <= 0 || permission == "" {
		r.recordCheck("denied")
		return false
	}

	perms, err := r.EffectivePermissions(ctx, userID, groupID)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("permission resolution failed")
		r.recordCheck("error")
		return false
	}

	for _, name := range perms {
		if name == permission {
			r.recordCheck("allowed")
			return true
		}
	}
	r.recordCheck("denied")
	return false
}

func (r *Resolver) recordCheck(outcome string) {
	if r.metrics != nil {
		r.metrics.PermissionChecksTotal.WithLabelValues(outcome).Inc()
	}
}

// InvalidateUser drops the user's cached resolutions. Safe to call with
// no cache configured.
func (r *Resolver) InvalidateUser(ctx context.Context, userID int64) {
	if r.cache != nil {
		r.cache.InvalidateUser(ctx, userID)
	}
}
