package roles

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

// PermissionSource resolves a user's effective permission names in a
// group. The resolver implements it; tests substitute a stub.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID, groupID int64) ([]string, error)
}

// AssignmentGuard validates, inside the caller's transaction, that an
// unassignment or role deletion would not strip the group of its last
// holder of a critical permission.
type AssignmentGuard interface {
	CheckUnassign(ctx context.Context, tx *sql.Tx, groupID, userID, roleID int64) error
	CheckRoleDeletion(ctx context.Context, tx *sql.Tx, roleID int64) error
}

// Invalidator drops cached permission resolutions after a grant or
// assignment mutation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service manages group roles, their grants, and user assignments
type Service interface {
	CreateRole(ctx context.Context, groupID int64, name, description string, templateID *int64, createdBy int64) (*GroupRole, error)
	GetRole(ctx context.Context, id int64) (*GroupRole, error)
	ListGroupRoles(ctx context.Context, groupID int64) ([]*GroupRole, error)
	DeleteRole(ctx context.Context, roleID, actorID int64) error

	SetRoleGrants(ctx context.Context, roleID int64, permissionIDs []int64, actorID int64, confirmLockout bool) (*SetGrantsResult, error)
	ComposableGrants(ctx context.Context, roleID, actorID int64) ([]*GrantOption, error)

	AssignRole(ctx context.Context, groupID, userID, roleID, assignedBy int64) (*Assignment, error)
	UnassignRole(ctx context.Context, groupID, userID, roleID, actorID int64) error
	ListUserRoles(ctx context.Context, groupID, userID int64) ([]*GroupRole, error)
	ListAssignees(ctx context.Context, roleID int64) ([]int64, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db          *sql.DB
	perms       PermissionSource
	guard       AssignmentGuard
	invalidator Invalidator
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, perms PermissionSource, guard AssignmentGuard) *PostgresService {
	return &PostgresService{db: db, perms: perms, guard: guard}
}

// SetInvalidator wires the resolution-cache invalidator. Optional.
func (s *PostgresService) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

func (s *PostgresService) invalidate(ctx context.Context, userIDs ...int64) {
	if s.invalidator == nil {
		return
	}
	for _, id := range userIDs {
		s.invalidator.InvalidateUser(ctx, id)
	}
}

const roleColumns = `id, group_id, name, display_name, COALESCE(description, ''), template_id, is_custom, created_by, created_at, updated_at`

func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*GroupRole, error) {
	r := &GroupRole{}
	err := scanner.Scan(&r.ID, &r.GroupID, &r.Name, &r.DisplayName, &r.Description,
		&r.TemplateID, &r.IsCustom, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRole adds a role to a group. With a template id the role starts
// from the template's grants and stays independent of it afterwards;
// without one it is a custom role starting empty.
func (s *PostgresService) CreateRole(ctx context.Context, groupID int64, name, description string, templateID *int64, createdBy int64) (*GroupRole, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	displayName := name
	isCustom := templateID == nil
	if templateID != nil {
		err := tx.QueryRowContext(ctx,
			"SELECT display_name FROM role_templates WHERE id = $1", *templateID).Scan(&displayName)
		if err == sql.ErrNoRows {
			return nil, errdefs.NotFoundID("role template", *templateID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
	}

	role, err := scanRole(tx.QueryRowContext(ctx, `
		INSERT INTO group_roles (group_id, name, display_name, description, template_id, is_custom, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+roleColumns,
		groupID, name, displayName, description, templateID, isCustom, createdBy))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("role", fmt.Sprintf("name %q already exists in group %d", name, groupID))
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if templateID != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_role_permissions (role_id, permission_id)
			SELECT $1, permission_id FROM role_template_permissions WHERE template_id = $2
		`, role.ID, *templateID)
		if err != nil {
			return nil, fmt.Errorf("failed to copy template grants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role creation: %w", err)
	}

	_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleCreate, createdBy, groupID,
		map[string]interface{}{"role_id": role.ID, "role_name": role.Name})

	return role, nil
}

// GetRole returns one role with its grants loaded
func (s *PostgresService) GetRole(ctx context.Context, id int64) (*GroupRole, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM group_roles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundID("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.PermissionIDs, err = s.loadGrants(ctx, id)
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *PostgresService) loadGrants(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT permission_id FROM group_role_permissions WHERE role_id = $1 ORDER BY permission_id", roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGroupRoles returns every role in the group with grants loaded
func (s *PostgresService) ListGroupRoles(ctx context.Context, groupID int64) ([]*GroupRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM group_roles WHERE group_id = $1 ORDER BY name`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	result := make([]*GroupRole, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		result = append(result, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range result {
		if role.PermissionIDs, err = s.loadGrants(ctx, role.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// DeleteRole removes a custom role. Template-derived roles cannot be
// deleted, and the guard rejects deletions that would leave the group
// without a holder of a critical permission. Assignments cascade away.
func (s *PostgresService) DeleteRole(ctx context.Context, roleID, actorID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.IsCustom {
		return errdefs.Forbiddenf("role %q is template-derived and cannot be deleted", role.Name)
	}

	assignees, err := s.ListAssignees(ctx, roleID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.guard.CheckRoleDeletion(ctx, tx, roleID); err != nil {
		if errdefs.IsInvariantViolation(err) {
			_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleDelete, actorID, role.GroupID,
				map[string]interface{}{"role_id": roleID, "denied": err.Error()})
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM group_roles WHERE id = $1", roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}

	s.invalidate(ctx, assignees...)
	_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleDelete, actorID, role.GroupID,
		map[string]interface{}{"role_id": roleID, "role_name": role.Name})

	return nil
}

// AssignRole grants a role to an active member of the group
func (s *PostgresService) AssignRole(ctx context.Context, groupID, userID, roleID, assignedBy int64) (*Assignment, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM group_memberships WHERE group_id = $1 AND user_id = $2",
		groupID, userID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("membership", fmt.Sprintf("group %d user %d", groupID, userID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if status != "active" {
		return nil, errdefs.Conflict("assignment",
			fmt.Sprintf("user %d is %s in group %d, not active", userID, status, groupID))
	}

	a := &Assignment{}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO user_group_roles (group_id, user_id, role_id, granted_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, group_id, user_id, role_id, granted_by, granted_at
	`, groupID, userID, roleID, assignedBy).Scan(
		&a.ID, &a.GroupID, &a.UserID, &a.RoleID, &a.GrantedBy, &a.GrantedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("assignment",
				fmt.Sprintf("user %d already holds role %d", userID, roleID))
		}
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	s.invalidate(ctx, userID)
	_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleAssign, assignedBy, groupID,
		map[string]interface{}{"role_id": roleID, "user_id": userID})

	return a, nil
}

// UnassignRole removes one role from a member. The guard runs in the
// same transaction: taking away the last critical-permission holder's
// role is rejected until someone else holds it.
func (s *PostgresService) UnassignRole(ctx context.Context, groupID, userID, roleID, actorID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.guard.CheckUnassign(ctx, tx, groupID, userID, roleID); err != nil {
		if errdefs.IsInvariantViolation(err) {
			_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleUnassign, actorID, groupID,
				map[string]interface{}{"role_id": roleID, "user_id": userID, "denied": err.Error()})
		}
		return err
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM user_group_roles WHERE group_id = $1 AND user_id = $2 AND role_id = $3",
		groupID, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("assignment", fmt.Sprintf("user %d role %d", userID, roleID))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unassignment: %w", err)
	}

	s.invalidate(ctx, userID)
	_ = audit.FromContext(ctx).LogRoleChange(ctx, audit.EventTypeRoleUnassign, actorID, groupID,
		map[string]interface{}{"role_id": roleID, "user_id": userID})

	return nil
}

// ListUserRoles returns the roles a user holds in a group
func (s *PostgresService) ListUserRoles(ctx context.Context, groupID, userID int64) ([]*GroupRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.group_id, r.name, r.display_name, COALESCE(r.description, ''),
		       r.template_id, r.is_custom, r.created_by, r.created_at, r.updated_at
		FROM user_group_roles ugr
		JOIN group_roles r ON r.id = ugr.role_id
		WHERE ugr.group_id = $1 AND ugr.user_id = $2
		ORDER BY r.name
	`, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	result := make([]*GroupRole, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// ListAssignees returns the ids of every user holding the role
func (s *PostgresService) ListAssignees(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM user_group_roles WHERE role_id = $1 ORDER BY user_id", roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
