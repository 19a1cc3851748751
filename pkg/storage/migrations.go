package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and user_sessions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'active'
						CHECK (status IN ('active', 'inactive', 'decommissioned')),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deactivated_at TIMESTAMP,
					decommissioned_at TIMESTAMP
				);

				CREATE INDEX idx_users_status ON users(status);
				CREATE INDEX idx_users_email ON users(email);

				CREATE TABLE IF NOT EXISTS user_sessions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_user_sessions_user_id ON user_sessions(user_id);
				CREATE INDEX idx_user_sessions_expires_at ON user_sessions(expires_at);
			`,
		},
		{
			Version:     2,
			Description: "Create groups and group_memberships tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					kind VARCHAR(20) NOT NULL DEFAULT 'engagement'
						CHECK (kind IN ('personal', 'engagement', 'system')),
					visibility VARCHAR(20) NOT NULL DEFAULT 'public'
						CHECK (visibility IN ('public', 'private')),
					show_member_list BOOLEAN NOT NULL DEFAULT TRUE,
					description TEXT,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_groups_kind ON groups(kind);

				CREATE TABLE IF NOT EXISTS group_memberships (
					id BIGSERIAL PRIMARY KEY,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					status VARCHAR(20) NOT NULL DEFAULT 'invited'
						CHECK (status IN ('invited', 'active', 'paused', 'removed')),
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					invited_at TIMESTAMP NOT NULL DEFAULT NOW(),
					joined_at TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(group_id, user_id)
				);

				CREATE INDEX idx_group_memberships_group_id ON group_memberships(group_id);
				CREATE INDEX idx_group_memberships_user_id ON group_memberships(user_id);
				CREATE INDEX idx_group_memberships_status ON group_memberships(status);
			`,
		},
		{
			Version:     3,
			Description: "Create permission catalog tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_categories (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					display_order INT NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					category_id BIGINT NOT NULL REFERENCES permission_categories(id),
					is_critical BOOLEAN NOT NULL DEFAULT FALSE,
					display_order INT NOT NULL DEFAULT 0
				);

				CREATE INDEX idx_permissions_category_id ON permissions(category_id);
				CREATE INDEX idx_permissions_is_critical ON permissions(is_critical);
			`,
		},
		{
			Version:     4,
			Description: "Create role template tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_templates (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					is_mandatory BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE TABLE IF NOT EXISTS role_template_permissions (
					template_id BIGINT NOT NULL REFERENCES role_templates(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (template_id, permission_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create group role and grant tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_roles (
					id BIGSERIAL PRIMARY KEY,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					name VARCHAR(100) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					template_id BIGINT REFERENCES role_templates(id) ON DELETE SET NULL,
					is_custom BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(group_id, name)
				);

				CREATE INDEX idx_group_roles_group_id ON group_roles(group_id);
				CREATE INDEX idx_group_roles_template_id ON group_roles(template_id);

				CREATE TABLE IF NOT EXISTS group_role_permissions (
					role_id BIGINT NOT NULL REFERENCES group_roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_group_role_permissions_permission_id
					ON group_role_permissions(permission_id);

				CREATE TABLE IF NOT EXISTS user_group_roles (
					id BIGSERIAL PRIMARY KEY,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES group_roles(id) ON DELETE CASCADE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_user_group_roles_group_id ON user_group_roles(group_id);
				CREATE INDEX idx_user_group_roles_user_id ON user_group_roles(user_id);
				CREATE INDEX idx_user_group_roles_role_id ON user_group_roles(role_id);
			`,
		},
		{
			Version:     6,
			Description: "Create admin audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS admin_audit_log (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'success',
					actor_id BIGINT,
					target_user_id BIGINT,
					group_id BIGINT,
					request_id VARCHAR(100),
					bulk_op_id VARCHAR(100),
					message TEXT,
					error_message TEXT,
					metadata JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_admin_audit_log_event_type ON admin_audit_log(event_type);
				CREATE INDEX idx_admin_audit_log_actor_id ON admin_audit_log(actor_id);
				CREATE INDEX idx_admin_audit_log_target_user_id ON admin_audit_log(target_user_id);
				CREATE INDEX idx_admin_audit_log_group_id ON admin_audit_log(group_id);
				CREATE INDEX idx_admin_audit_log_timestamp ON admin_audit_log(timestamp DESC);
				CREATE INDEX idx_admin_audit_log_bulk_op_id ON admin_audit_log(bulk_op_id);
				CREATE INDEX idx_admin_audit_log_metadata ON admin_audit_log USING GIN(metadata);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
