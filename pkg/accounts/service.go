package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/errdefs"
)

// Service manages account records and their lifecycle
type Service interface {
	CreateUser(ctx context.Context, email, displayName string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUsers(ctx context.Context, ids []int64) ([]*User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]*User, int, error)
	ListMatchingIDs(ctx context.Context, filter ListFilter) ([]int64, error)

	Activate(ctx context.Context, id int64) (bool, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	Decommission(ctx context.Context, id int64) (bool, error)
	Restore(ctx context.Context, id int64) (bool, error)
	HardDelete(ctx context.Context, id int64) error

	CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) (*Session, error)
	GetUserBySessionToken(ctx context.Context, token string) (*User, error)
	RevokeSessions(ctx context.Context, userID int64) (int64, error)

	CommonGroupCount(ctx context.Context, userIDs []int64) (int, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const userColumns = `id, email, display_name, status, created_at, updated_at, deactivated_at, decommissioned_at`

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*User, error) {
	u := &User{}
	err := scanner.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Status,
		&u.CreatedAt, &u.UpdatedAt, &u.DeactivatedAt, &u.DecommissionedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new active account
func (s *PostgresService) CreateUser(ctx context.Context, email, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if displayName == "" {
		return nil, fmt.Errorf("display name is required")
	}

	query := `
		INSERT INTO users (email, display_name, status)
		VALUES ($1, $2, 'active')
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email, displayName))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("user", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser returns one account by id
func (s *PostgresService) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundID("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUsers returns the accounts for the given ids. Missing ids are simply
// absent from the result, so callers can detect stale selections.
func (s *PostgresService) GetUsers(ctx context.Context, ids []int64) ([]*User, error) {
	if len(ids) == 0 {
		return []*User{}, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func buildUserFilter(filter ListFilter) (string, []interface{}) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR display_name ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// ListUsers returns one page of accounts plus the total match count
func (s *PostgresService) ListUsers(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	where, args := buildUserFilter(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM users" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY display_name, id`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// ListMatchingIDs returns every id matching the filter across all pages.
// This backs "select all N results"; pagination fields are ignored.
func (s *PostgresService) ListMatchingIDs(ctx context.Context, filter ListFilter) ([]int64, error) {
	where, args := buildUserFilter(filter)

	query := "SELECT id FROM users" + where + " ORDER BY display_name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// transition runs a conditional status update. It returns (true, nil) when
// the row changed, (false, nil) when the account is already in the target
// state, and a typed error otherwise.
func (s *PostgresService) transition(ctx context.Context, id int64, update string, from []UserStatus, target UserStatus) (bool, error) {
	fromStates := make([]string, len(from))
	for i, st := range from {
		fromStates[i] = string(st)
	}

	result, err := s.db.ExecContext(ctx, update, id, pq.Array(fromStates))
	if err != nil {
		return false, fmt.Errorf("failed to update user status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	if user.Status == target {
		return false, nil
	}
	return false, errdefs.InvariantViolation("account_lifecycle",
		fmt.Sprintf("cannot move user %d from %s to %s", id, user.Status, target))
}

// Activate moves an inactive account back to active. Decommissioned
// accounts are terminal and are rejected.
func (s *PostgresService) Activate(ctx context.Context, id int64) (bool, error) {
	update := `
		UPDATE users
		SET status = 'active', deactivated_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	return s.transition(ctx, id, update, []UserStatus{StatusInactive}, StatusActive)
}

// Deactivate moves an active account to inactive and revokes its sessions
func (s *PostgresService) Deactivate(ctx context.Context, id int64) (bool, error) {
	update := `
		UPDATE users
		SET status = 'inactive', deactivated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	changed, err := s.transition(ctx, id, update, []UserStatus{StatusActive}, StatusInactive)
	if err != nil || !changed {
		return changed, err
	}

	if _, err := s.RevokeSessions(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// Decommission soft-deletes an account. The state is terminal; only
// Restore reverses it. Sessions are revoked.
func (s *PostgresService) Decommission(ctx context.Context, id int64) (bool, error) {
	update := `
		UPDATE users
		SET status = 'decommissioned', decommissioned_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	changed, err := s.transition(ctx, id, update,
		[]UserStatus{StatusActive, StatusInactive}, StatusDecommissioned)
	if err != nil || !changed {
		return changed, err
	}

	if _, err := s.RevokeSessions(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// Restore brings a decommissioned account back as inactive. It is the
// only path out of the decommissioned state and is not offered on the
// bulk action surface.
func (s *PostgresService) Restore(ctx context.Context, id int64) (bool, error) {
	update := `
		UPDATE users
		SET status = 'inactive', decommissioned_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = ANY($2)
	`
	return s.transition(ctx, id, update, []UserStatus{StatusDecommissioned}, StatusInactive)
}

// HardDelete permanently removes the account row. Memberships, role
// assignments, and sessions cascade away with it; audit entries keep
// their target_user_id for the record.
func (s *PostgresService) HardDelete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFoundID("user", id)
	}
	return nil
}

// CreateSession records a new login session
func (s *PostgresService) CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) (*Session, error) {
	query := `
		INSERT INTO user_sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token, created_at, expires_at, revoked_at
	`

	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, userID, token, expiresAt).Scan(
		&session.ID, &session.UserID, &session.Token,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetUserBySessionToken resolves a live session token to its active account
func (s *PostgresService) GetUserBySessionToken(ctx context.Context, token string) (*User, error) {
	query := `
		SELECT u.id, u.email, u.display_name, u.status, u.created_at, u.updated_at,
		       u.deactivated_at, u.decommissioned_at
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > NOW()
		  AND u.status = 'active'
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("session", "token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	return user, nil
}

// RevokeSessions revokes every live session for the user and returns how
// many were revoked. This is the logout action.
func (s *PostgresService) RevokeSessions(ctx context.Context, userID int64) (int64, error) {
	query := `
		UPDATE user_sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// CommonGroupCount returns the number of groups in which every one of the
// given users holds an active membership. It drives the eligibility of
// the bulk remove-from-group action.
func (s *PostgresService) CommonGroupCount(ctx context.Context, userIDs []int64) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	query := `
		SELECT COUNT(*) FROM (
			SELECT group_id
			FROM group_memberships
			WHERE status = 'active' AND user_id = ANY($1)
			GROUP BY group_id
			HAVING COUNT(DISTINCT user_id) = $2
		) common
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, pq.Array(userIDs), len(userIDs)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count common groups: %w", err)
	}
	return count, nil
}
