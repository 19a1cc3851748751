package groups

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

// Service manages groups and their provisioning
type Service interface {
	CreateGroup(ctx context.Context, name, description string, visibility Visibility, createdBy int64) (*Group, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	GetGroupByName(ctx context.Context, name string) (*Group, error)
	ListGroups(ctx context.Context, kind GroupKind) ([]*Group, error)
	UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest) (*Group, error)
	DeleteGroup(ctx context.Context, id int64, deletedBy int64) error
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const groupColumns = `id, name, kind, visibility, show_member_list, COALESCE(description, ''), created_by, created_at, updated_at`

func scanGroup(scanner interface {
	Scan(dest ...interface{}) error
}) (*Group, error) {
	g := &Group{}
	err := scanner.Scan(&g.ID, &g.Name, &g.Kind, &g.Visibility, &g.ShowMemberList,
		&g.Description, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGroup creates an engagement group and provisions it: every
// mandatory role template becomes a group role with the template's
// grants, and the creator joins as an active member holding the steward
// role. The whole provisioning runs in one transaction.
func (s *PostgresService) CreateGroup(ctx context.Context, name, description string, visibility Visibility, createdBy int64) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if visibility == "" {
		visibility = VisibilityPublic
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	group := &Group{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (name, kind, visibility, description, created_by)
		VALUES ($1, 'engagement', $2, $3, $4)
		RETURNING `+groupColumns,
		name, visibility, description, createdBy).Scan(
		&group.ID, &group.Name, &group.Kind, &group.Visibility, &group.ShowMemberList,
		&group.Description, &group.CreatedBy, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("group", name)
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	stewardRoleID, err := provisionMandatoryRoles(ctx, tx, group.ID, createdBy)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_memberships (group_id, user_id, status, invited_by, joined_at)
		VALUES ($1, $2, 'active', $2, NOW())
	`, group.ID, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create creator membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_group_roles (group_id, user_id, role_id, granted_by)
		VALUES ($1, $2, $3, $2)
	`, group.ID, createdBy, stewardRoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign steward role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit group creation: %w", err)
	}

	_ = audit.FromContext(ctx).Log(ctx, &audit.Event{
		EventType: audit.EventTypeGroupCreate,
		Status:    audit.EventStatusSuccess,
		ActorID:   &createdBy,
		GroupID:   &group.ID,
		Message:   fmt.Sprintf("created group %q", group.Name),
	})

	return group, nil
}

// provisionMandatoryRoles instantiates every mandatory role template for
// the group and copies the template grants. Returns the steward role id.
func provisionMandatoryRoles(ctx context.Context, tx *sql.Tx, groupID, createdBy int64) (int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, display_name, COALESCE(description, '')
		FROM role_templates
		WHERE is_mandatory = TRUE
		ORDER BY name
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to load mandatory templates: %w", err)
	}

	type template struct {
		id          int64
		name        string
		displayName string
		description string
	}
	templates := make([]template, 0, 2)
	for rows.Next() {
		var t template
		if err := rows.Scan(&t.id, &t.name, &t.displayName, &t.description); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(templates) == 0 {
		return 0, fmt.Errorf("no mandatory role templates found; seed the catalog first")
	}

	var stewardRoleID int64
	for _, t := range templates {
		var roleID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO group_roles (group_id, name, display_name, description, template_id, is_custom, created_by)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
			RETURNING id
		`, groupID, t.name, t.displayName, t.description, t.id, createdBy).Scan(&roleID)
		if err != nil {
			return 0, fmt.Errorf("failed to create role from template %s: %w", t.name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_role_permissions (role_id, permission_id)
			SELECT $1, permission_id FROM role_template_permissions WHERE template_id = $2
		`, roleID, t.id)
		if err != nil {
			return 0, fmt.Errorf("failed to copy grants for role %s: %w", t.name, err)
		}

		if t.name == catalog.TemplateSteward {
			stewardRoleID = roleID
		}
	}

	if stewardRoleID == 0 {
		return 0, fmt.Errorf("steward template is missing from the mandatory set")
	}
	return stewardRoleID, nil
}

// GetGroup returns one group by id
func (s *PostgresService) GetGroup(ctx context.Context, id int64) (*Group, error) {
	group, err := scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundID("group", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// GetGroupByName returns one group by its unique name
func (s *PostgresService) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	group, err := scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE name = $1`, name))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("group", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// ListGroups returns groups, optionally filtered by kind
func (s *PostgresService) ListGroups(ctx context.Context, kind GroupKind) ([]*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	result := make([]*Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		result = append(result, group)
	}
	return result, rows.Err()
}

// UpdateGroup applies the non-nil fields of the request
func (s *PostgresService) UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest) (*Group, error) {
	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	if req.Name != nil {
		args = append(args, *req.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if req.Description != nil {
		args = append(args, *req.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if req.Visibility != nil {
		args = append(args, *req.Visibility)
		sets = append(sets, fmt.Sprintf("visibility = $%d", len(args)))
	}
	if req.ShowMemberList != nil {
		args = append(args, *req.ShowMemberList)
		sets = append(sets, fmt.Sprintf("show_member_list = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetGroup(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE groups SET %s, updated_at = NOW()
		WHERE id = $%d
		RETURNING `+groupColumns, strings.Join(sets, ", "), len(args))

	group, err := scanGroup(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundID("group", id)
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("group", *req.Name)
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	_ = audit.FromContext(ctx).Log(ctx, &audit.Event{
		EventType: audit.EventTypeGroupUpdate,
		Status:    audit.EventStatusSuccess,
		GroupID:   &group.ID,
	})

	return group, nil
}

// DeleteGroup removes a group outright. Memberships, roles, grants, and
// assignments cascade away. System groups cannot be deleted.
func (s *PostgresService) DeleteGroup(ctx context.Context, id int64, deletedBy int64) error {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group.Kind == KindSystem {
		return errdefs.Forbiddenf("system groups cannot be deleted")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	_ = audit.FromContext(ctx).Log(ctx, &audit.Event{
		EventType: audit.EventTypeGroupDelete,
		Status:    audit.EventStatusSuccess,
		ActorID:   &deletedBy,
		GroupID:   &id,
		Message:   fmt.Sprintf("deleted group %q", group.Name),
	})

	return nil
}
