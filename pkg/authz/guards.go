package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/contextkeys"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

// Guards are the protection invariants evaluated inside the same
// transaction as the mutation they protect, against a locked read of
// the group's assignments, so two concurrent removals cannot both pass.
type Guards struct {
	metrics *observability.Metrics
}

// NewGuards creates the guard set. metrics may be nil.
func NewGuards(metrics *observability.Metrics) *Guards {
	return &Guards{metrics: metrics}
}

const invariantLastHolder = "last_privileged_holder"

func (g *Guards) reject(ctx context.Context, detail string) error {
	if g.metrics != nil {
		g.metrics.GuardRejectionsTotal.WithLabelValues(invariantLastHolder).Inc()
	}
	actorID, _ := contextkeys.Actor(ctx)
	_ = audit.FromContext(ctx).LogGuardRejection(ctx, actorID, invariantLastHolder, detail)
	return errdefs.InvariantViolation(invariantLastHolder, detail)
}

// lockAssignments takes row locks on the group's assignments so the
// holder computation below reads a consistent snapshot.
func lockAssignments(ctx context.Context, tx *sql.Tx, groupID int64) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM user_group_roles WHERE group_id = $1 FOR UPDATE", groupID)
	if err != nil {
		return fmt.Errorf("failed to lock assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan lock row: %w", err)
		}
	}
	return rows.Err()
}

func collectNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CheckRemoval rejects ending a membership when the user is the only
// active holder of a critical permission in the group. It applies
// uniformly to self-leave, peer removal, and administrative removal.
func (g *Guards) CheckRemoval(ctx context.Context, tx *sql.Tx, groupID, userID int64) error {
	if err := lockAssignments(ctx, tx, groupID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM user_group_roles ugr
		JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
		JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE ugr.group_id = $1 AND ugr.user_id = $2
		EXCEPT
		SELECT DISTINCT p.name
		FROM user_group_roles ugr
		JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
		JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE ugr.group_id = $1 AND ugr.user_id <> $2
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to evaluate removal guard: %w", err)
	}

	orphaned, err := collectNames(rows)
	if err != nil {
		return fmt.Errorf("failed to evaluate removal guard: %w", err)
	}
	if len(orphaned) > 0 {
		return g.reject(ctx, fmt.Sprintf(
			"user %d is the last active holder of %s in group %d; promote another member first",
			userID, strings.Join(orphaned, ", "), groupID))
	}
	return nil
}

// CheckUnassign rejects removing one role assignment when that
// assignment is the group's only active source of a critical permission.
// The same user holding the permission through another role counts as
// retained.
func (g *Guards) CheckUnassign(ctx context.Context, tx *sql.Tx, groupID, userID, roleID int64) error {
	if err := lockAssignments(ctx, tx, groupID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM group_role_permissions grp
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE grp.role_id = $3
		EXCEPT
		SELECT DISTINCT p.name
		FROM user_group_roles ugr
		JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
		JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE ugr.group_id = $1 AND NOT (ugr.user_id = $2 AND ugr.role_id = $3)
	`, groupID, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to evaluate unassign guard: %w", err)
	}

	orphaned, err := collectNames(rows)
	if err != nil {
		return fmt.Errorf("failed to evaluate unassign guard: %w", err)
	}
	if len(orphaned) > 0 {
		// only a violation if the user actually holds the role with an
		// active membership; an idle assignment row cannot orphan anything
		var holds bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM user_group_roles ugr
				JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
				WHERE ugr.group_id = $1 AND ugr.user_id = $2 AND ugr.role_id = $3
			)
		`, groupID, userID, roleID).Scan(&holds)
		if err != nil {
			return fmt.Errorf("failed to evaluate unassign guard: %w", err)
		}
		if holds {
			return g.reject(ctx, fmt.Sprintf(
				"assignment is the last active source of %s in group %d; promote another member first",
				strings.Join(orphaned, ", "), groupID))
		}
	}
	return nil
}

// CheckRoleDeletion rejects deleting a role whose assignments are the
// group's only active source of a critical permission.
func (g *Guards) CheckRoleDeletion(ctx context.Context, tx *sql.Tx, roleID int64) error {
	var groupID int64
	err := tx.QueryRowContext(ctx,
		"SELECT group_id FROM group_roles WHERE id = $1", roleID).Scan(&groupID)
	if err == sql.ErrNoRows {
		return errdefs.NotFoundID("role", roleID)
	}
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	if err := lockAssignments(ctx, tx, groupID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM user_group_roles ugr
		JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
		JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE ugr.group_id = $1 AND ugr.role_id = $2
		EXCEPT
		SELECT DISTINCT p.name
		FROM user_group_roles ugr
		JOIN group_memberships gm ON gm.group_id = ugr.group_id AND gm.user_id = ugr.user_id AND gm.status = 'active'
		JOIN group_role_permissions grp ON grp.role_id = ugr.role_id
		JOIN permissions p ON p.id = grp.permission_id AND p.is_critical
		WHERE ugr.group_id = $1 AND ugr.role_id <> $2
	`, groupID, roleID)
	if err != nil {
		return fmt.Errorf("failed to evaluate role deletion guard: %w", err)
	}

	orphaned, err := collectNames(rows)
	if err != nil {
		return fmt.Errorf("failed to evaluate role deletion guard: %w", err)
	}
	if len(orphaned) > 0 {
		return g.reject(ctx, fmt.Sprintf(
			"role %d is the only active source of %s in group %d",
			roleID, strings.Join(orphaned, ", "), groupID))
	}
	return nil
}
