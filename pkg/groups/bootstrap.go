package groups

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guildhall-io/guildhall/pkg/catalog"
)

// systemGroupSpec describes one bootstrap system group and the single
// role it carries.
type systemGroupSpec struct {
	name        string
	description string
	roleName    string
	roleDisplay string
	permissions []string
}

func systemGroupSpecs() []systemGroupSpec {
	return []systemGroupSpec{
		{
			name:        SystemGroupAllMembers,
			description: "Every platform account. Grants baseline platform permissions.",
			roleName:    "baseline",
			roleDisplay: "Baseline",
			permissions: []string{
				catalog.PermCreateGroup,
				catalog.PermBrowseCatalog,
				catalog.PermEnrollSelf,
			},
		},
		{
			name:        SystemGroupAdministrators,
			description: "Platform operators with full administrative access.",
			roleName:    "administrator",
			roleDisplay: "Administrator",
			permissions: []string{catalog.PermAdministerPlatform},
		},
	}
}

// BootstrapSystemGroups creates the built-in system groups and their
// roles if they do not exist yet. Grants held through a system group
// apply platform-wide, so this is what makes fresh installs usable:
// without "All Members" nobody could create the first group.
func (s *PostgresService) BootstrapSystemGroups(ctx context.Context) error {
	for _, spec := range systemGroupSpecs() {
		if err := s.ensureSystemGroup(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresService) ensureSystemGroup(ctx context.Context, spec systemGroupSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var groupID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM groups WHERE name = $1 AND kind = 'system'", spec.name).Scan(&groupID)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO groups (name, kind, visibility, show_member_list, description)
			VALUES ($1, 'system', 'private', FALSE, $2)
			RETURNING id
		`, spec.name, spec.description).Scan(&groupID)
	}
	if err != nil {
		return fmt.Errorf("failed to ensure system group %s: %w", spec.name, err)
	}

	var roleID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM group_roles WHERE group_id = $1 AND name = $2", groupID, spec.roleName).Scan(&roleID)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO group_roles (group_id, name, display_name, is_custom)
			VALUES ($1, $2, $3, FALSE)
			RETURNING id
		`, groupID, spec.roleName, spec.roleDisplay).Scan(&roleID)
	}
	if err != nil {
		return fmt.Errorf("failed to ensure system role %s: %w", spec.roleName, err)
	}

	for _, permName := range spec.permissions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE name = $2
			ON CONFLICT DO NOTHING
		`, roleID, permName)
		if err != nil {
			return fmt.Errorf("failed to grant %s to system role: %w", permName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit system group bootstrap: %w", err)
	}
	return nil
}

// AddToSystemGroup makes the user an active member of the named system
// group and assigns its role. Membership in "All Members" is what grants
// new accounts their baseline platform permissions.
func (s *PostgresService) AddToSystemGroup(ctx context.Context, groupName string, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var groupID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM groups WHERE name = $1 AND kind = 'system'", groupName).Scan(&groupID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("system group %s is not bootstrapped", groupName)
	}
	if err != nil {
		return fmt.Errorf("failed to look up system group: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, user_id, status, joined_at)
		VALUES ($1, $2, 'active', NOW())
		ON CONFLICT (group_id, user_id) DO UPDATE
			SET status = 'active', joined_at = COALESCE(group_memberships.joined_at, NOW()), updated_at = NOW()
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to add system membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_group_roles (group_id, user_id, role_id)
		SELECT $1, $2, id FROM group_roles WHERE group_id = $1
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to assign system role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit system membership: %w", err)
	}
	return nil
}

// RemoveFromSystemGroup drops the user's membership and role assignments
// in the named system group.
func (s *PostgresService) RemoveFromSystemGroup(ctx context.Context, groupName string, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM group_memberships
		WHERE user_id = $2
		  AND group_id = (SELECT id FROM groups WHERE name = $1 AND kind = 'system')
	`, groupName, userID)
	if err != nil {
		return fmt.Errorf("failed to remove system membership: %w", err)
	}

	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM user_group_roles
		WHERE user_id = $2
		  AND group_id = (SELECT id FROM groups WHERE name = $1 AND kind = 'system')
	`, groupName, userID)
	if err != nil {
		return fmt.Errorf("failed to remove system role assignments: %w", err)
	}
	return nil
}
