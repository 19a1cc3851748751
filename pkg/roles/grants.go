package roles

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

type permissionInfo struct {
	id       int64
	name     string
	display  string
	critical bool
}

func (s *PostgresService) loadPermissionInfo(ctx context.Context, ids []int64) (map[int64]permissionInfo, error) {
	if len(ids) == 0 {
		return map[int64]permissionInfo{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, display_name, is_critical FROM permissions WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	info := make(map[int64]permissionInfo, len(ids))
	for rows.Next() {
		var p permissionInfo
		if err := rows.Scan(&p.id, &p.name, &p.display, &p.critical); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		info[p.id] = p
	}
	return info, rows.Err()
}

// SetRoleGrants replaces the role's grant set.
//
// Two protections apply. Anti-escalation: the editor may only add
// permissions they currently hold in the role's group. Self-lockout: if
// the edit removes a critical permission that the editor holds only
// through this role, nothing is persisted and the result carries a
// warning; resubmitting with confirmLockout saves anyway.
func (s *PostgresService) SetRoleGrants(ctx context.Context, roleID int64, permissionIDs []int64, actorID int64, confirmLockout bool) (*SetGrantsResult, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	current := make(map[int64]bool, len(role.PermissionIDs))
	for _, id := range role.PermissionIDs {
		current[id] = true
	}
	desired := make(map[int64]bool, len(permissionIDs))
	for _, id := range permissionIDs {
		desired[id] = true
	}

	added := make([]int64, 0)
	for id := range desired {
		if !current[id] {
			added = append(added, id)
		}
	}
	removed := make([]int64, 0)
	for id := range current {
		if !desired[id] {
			removed = append(removed, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	if len(added) == 0 && len(removed) == 0 {
		return &SetGrantsResult{}, nil
	}

	info, err := s.loadPermissionInfo(ctx, append(append([]int64{}, added...), removed...))
	if err != nil {
		return nil, err
	}
	for _, id := range append(append([]int64{}, added...), removed...) {
		if _, ok := info[id]; !ok {
			return nil, errdefs.NotFoundID("permission", id)
		}
	}

	actorPerms, err := s.perms.EffectivePermissions(ctx, actorID, role.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve editor permissions: %w", err)
	}
	held := make(map[string]bool, len(actorPerms))
	for _, name := range actorPerms {
		held[name] = true
	}

	missing := make([]string, 0)
	for _, id := range added {
		if !held[info[id].name] {
			missing = append(missing, info[id].name)
		}
	}
	if len(missing) > 0 {
		return nil, errdefs.Forbiddenf("cannot grant permissions you do not hold: %s",
			strings.Join(missing, ", "))
	}

	lockout, err := s.detectSelfLockout(ctx, role, actorID, removed, info)
	if err != nil {
		return nil, err
	}
	if len(lockout) > 0 && !confirmLockout {
		return &SetGrantsResult{LockoutWarning: true, LockoutPermissions: lockout}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if len(removed) > 0 {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM group_role_permissions WHERE role_id = $1 AND permission_id = ANY($2)",
			roleID, pq.Array(removed))
		if err != nil {
			return nil, fmt.Errorf("failed to remove grants: %w", err)
		}
	}
	for _, id := range added {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_role_permissions (role_id, permission_id) VALUES ($1, $2)",
			roleID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to add grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant edit: %w", err)
	}

	assignees, err := s.ListAssignees(ctx, roleID)
	if err == nil {
		s.invalidate(ctx, assignees...)
	}

	_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleUpdateGrants, actorID, role.GroupID,
		map[string]interface{}{
			"role_id": roleID,
			"added":   added,
			"removed": removed,
		})

	return &SetGrantsResult{}, nil
}

// detectSelfLockout returns the names of critical permissions being
// removed that the editor would no longer hold through any other role
// in the same group.
func (s *PostgresService) detectSelfLockout(ctx context.Context, role *GroupRole, actorID int64, removed []int64, info map[int64]permissionInfo) ([]string, error) {
	lockout := make([]string, 0)
	for _, id := range removed {
		p := info[id]
		if !p.critical {
			continue
		}

		// does the editor hold this permission through this role at all?
		var holdsViaRole bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM user_group_roles
				WHERE user_id = $1 AND role_id = $2
			)
		`, actorID, role.ID).Scan(&holdsViaRole)
		if err != nil {
			return nil, fmt.Errorf("failed to check editor assignment: %w", err)
		}
		if !holdsViaRole {
			continue
		}

		var retained bool
		err = s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM user_group_roles ugr
				JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
				WHERE ugr.user_id = $1
				  AND ugr.group_id = $2
				  AND ugr.role_id <> $3
				  AND grp.permission_id = $4
			)
		`, actorID, role.GroupID, role.ID, id).Scan(&retained)
		if err != nil {
			return nil, fmt.Errorf("failed to check retained permission: %w", err)
		}
		if !retained {
			lockout = append(lockout, p.name)
		}
	}
	return lockout, nil
}

// ComposableGrants returns the full catalog as grant options for a role
// editor: which permissions the role currently grants, and which the
// editor cannot add because they do not hold them in the group.
func (s *PostgresService) ComposableGrants(ctx context.Context, roleID, actorID int64) ([]*GrantOption, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	granted := make(map[int64]bool, len(role.PermissionIDs))
	for _, id := range role.PermissionIDs {
		granted[id] = true
	}

	actorPerms, err := s.perms.EffectivePermissions(ctx, actorID, role.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve editor permissions: %w", err)
	}
	held := make(map[string]bool, len(actorPerms))
	for _, name := range actorPerms {
		held[name] = true
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.display_name, p.is_critical
		FROM permissions p
		JOIN permission_categories c ON c.id = p.category_id
		ORDER BY c.display_order, p.display_order
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	options := make([]*GrantOption, 0)
	for rows.Next() {
		opt := &GrantOption{}
		if err := rows.Scan(&opt.PermissionID, &opt.Name, &opt.DisplayName, &opt.Critical); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		opt.Granted = granted[opt.PermissionID]
		if !held[opt.Name] && !opt.Granted {
			opt.Disabled = true
			opt.Reason = "you do not hold this permission in this group"
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}
