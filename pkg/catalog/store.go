package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

// Store provides access to the permission catalog and role templates
type Store interface {
	ListPermissions(ctx context.Context) ([]*Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	ListGrouped(ctx context.Context) ([]*CategoryView, error)
	ListTemplates(ctx context.Context) ([]*RoleTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (*RoleTemplate, error)
	Apply(ctx context.Context, seed *Seed) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListPermissions returns every permission in catalog order
func (s *PostgresStore) ListPermissions(ctx context.Context) ([]*Permission, error) {
	query := `
		SELECT p.id, p.name, p.display_name, COALESCE(p.description, ''),
		       p.category_id, p.is_critical, p.display_order
		FROM permissions p
		JOIN permission_categories c ON c.id = p.category_id
		ORDER BY c.display_order, p.display_order
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]*Permission, 0)
	for rows.Next() {
		p := &Permission{}
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description,
			&p.CategoryID, &p.Critical, &p.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}

	return permissions, rows.Err()
}

// GetPermissionByName returns a single permission
func (s *PostgresStore) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	query := `
		SELECT id, name, display_name, COALESCE(description, ''),
		       category_id, is_critical, display_order
		FROM permissions
		WHERE name = $1
	`

	p := &Permission{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.Description,
		&p.CategoryID, &p.Critical, &p.DisplayOrder)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("permission", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return p, nil
}

// ListGrouped returns the catalog grouped by category in display order
func (s *PostgresStore) ListGrouped(ctx context.Context) ([]*CategoryView, error) {
	catQuery := `
		SELECT id, name, display_name, display_order
		FROM permission_categories
		ORDER BY display_order
	`

	rows, err := s.db.QueryContext(ctx, catQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	views := make([]*CategoryView, 0)
	byID := make(map[int64]*CategoryView)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.DisplayOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		view := &CategoryView{Category: c, Permissions: make([]Permission, 0)}
		views = append(views, view)
		byID[c.ID] = view
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permissions, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range permissions {
		if view, ok := byID[p.CategoryID]; ok {
			view.Permissions = append(view.Permissions, *p)
		}
	}

	return views, nil
}

// ListTemplates returns all role templates with their permission names
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*RoleTemplate, error) {
	query := `
		SELECT id, name, display_name, COALESCE(description, ''), is_mandatory
		FROM role_templates
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}

	templates := make([]*RoleTemplate, 0)
	for rows.Next() {
		t := &RoleTemplate{PermissionNames: make([]string, 0)}
		if err := rows.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.Mandatory); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role template: %w", err)
		}
		templates = append(templates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range templates {
		if err := s.loadTemplateGrants(ctx, t); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

// GetTemplateByName returns one role template with its permission names
func (s *PostgresStore) GetTemplateByName(ctx context.Context, name string) (*RoleTemplate, error) {
	query := `
		SELECT id, name, display_name, COALESCE(description, ''), is_mandatory
		FROM role_templates
		WHERE name = $1
	`

	t := &RoleTemplate{PermissionNames: make([]string, 0)}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.Mandatory)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("role template", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}

	if err := s.loadTemplateGrants(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

func (s *PostgresStore) loadTemplateGrants(ctx context.Context, t *RoleTemplate) error {
	query := `
		SELECT p.name
		FROM role_template_permissions tp
		JOIN permissions p ON p.id = tp.permission_id
		WHERE tp.template_id = $1
		ORDER BY p.name
	`

	rows, err := s.db.QueryContext(ctx, query, t.ID)
	if err != nil {
		return fmt.Errorf("failed to load template grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan template grant: %w", err)
		}
		t.PermissionNames = append(t.PermissionNames, name)
	}

	return rows.Err()
}

// Apply upserts the seed into the catalog tables inside one transaction.
// Re-running with the same seed is a no-op; changed display fields are
// updated in place. Permissions are never deleted by Apply.
func (s *PostgresStore) Apply(ctx context.Context, seed *Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for catOrder, cat := range seed.Categories {
		var categoryID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO permission_categories (name, display_name, display_order)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE
				SET display_name = EXCLUDED.display_name,
				    display_order = EXCLUDED.display_order
			RETURNING id
		`, cat.Name, cat.DisplayName, catOrder).Scan(&categoryID)
		if err != nil {
			return fmt.Errorf("failed to upsert category %s: %w", cat.Name, err)
		}

		for permOrder, p := range cat.Permissions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO permissions (name, display_name, description, category_id, is_critical, display_order)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (name) DO UPDATE
					SET display_name = EXCLUDED.display_name,
					    description = EXCLUDED.description,
					    category_id = EXCLUDED.category_id,
					    is_critical = EXCLUDED.is_critical,
					    display_order = EXCLUDED.display_order
			`, p.Name, p.DisplayName, p.Description, categoryID, p.Critical, permOrder)
			if err != nil {
				return fmt.Errorf("failed to upsert permission %s: %w", p.Name, err)
			}
		}
	}

	for _, tpl := range seed.Templates {
		var templateID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO role_templates (name, display_name, description, is_mandatory)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
				SET display_name = EXCLUDED.display_name,
				    description = EXCLUDED.description,
				    is_mandatory = EXCLUDED.is_mandatory
			RETURNING id
		`, tpl.Name, tpl.DisplayName, tpl.Description, tpl.Mandatory).Scan(&templateID)
		if err != nil {
			return fmt.Errorf("failed to upsert template %s: %w", tpl.Name, err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM role_template_permissions WHERE template_id = $1", templateID); err != nil {
			return fmt.Errorf("failed to clear template grants for %s: %w", tpl.Name, err)
		}

		for _, permName := range tpl.Permissions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO role_template_permissions (template_id, permission_id)
				SELECT $1, id FROM permissions WHERE name = $2
			`, templateID, permName)
			if err != nil {
				return fmt.Errorf("failed to grant %s to template %s: %w", permName, tpl.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog seed: %w", err)
	}

	return nil
}
