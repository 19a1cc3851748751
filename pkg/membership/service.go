package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

// RemovalGuard validates, inside the caller's transaction, that ending a
// membership would not strip the group of its last privileged holder.
type RemovalGuard interface {
	CheckRemoval(ctx context.Context, tx *sql.Tx, groupID, userID int64) error
}

// Invalidator drops cached permission resolutions after a membership or
// role mutation.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service manages group membership records and their transitions
type Service interface {
	Invite(ctx context.Context, groupID, userID, invitedBy int64) (*Membership, error)
	InviteDirect(ctx context.Context, groupID, userID, invitedBy int64) (*Membership, error)
	ForceJoin(ctx context.Context, groupID, userID, actorID int64) (bool, error)
	Accept(ctx context.Context, membershipID, userID int64) (*Membership, error)
	Decline(ctx context.Context, membershipID, userID int64) error
	Pause(ctx context.Context, groupID, userID, actorID int64) error
	Resume(ctx context.Context, groupID, userID, actorID int64) error
	Remove(ctx context.Context, groupID, userID, actorID int64) error
	Leave(ctx context.Context, groupID, userID int64) error

	GetMembership(ctx context.Context, id int64) (*Membership, error)
	GetByGroupAndUser(ctx context.Context, groupID, userID int64) (*Membership, error)
	ListMembers(ctx context.Context, groupID int64, filter ListFilter) ([]*Member, int, error)
	CleanupExpiredInvitations(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db          *sql.DB
	guard       RemovalGuard
	invalidator Invalidator
	metrics     *observability.Metrics
}

// NewPostgresService creates a new PostgresService. The guard is
// consulted before any transition that ends an active membership.
func NewPostgresService(db *sql.DB, guard RemovalGuard) *PostgresService {
	return &PostgresService{db: db, guard: guard}
}

// SetInvalidator wires the resolution-cache invalidator. Optional; nil
// means no cache to invalidate.
func (s *PostgresService) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// SetMetrics wires transition counters. Optional.
func (s *PostgresService) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

func (s *PostgresService) invalidate(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *PostgresService) recordTransition(from, to Status) {
	if s.metrics != nil {
		s.metrics.MembershipTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	}
}

const membershipColumns = `id, group_id, user_id, status, invited_by, invited_at, joined_at, updated_at`

func scanMembership(scanner interface {
	Scan(dest ...interface{}) error
}) (*Membership, error) {
	m := &Membership{}
	err := scanner.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Status,
		&m.InvitedBy, &m.InvitedAt, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Invite creates an invited membership. Any active member of the group
// may invite; explicit invite rights are not required. A previously
// removed membership is reused and returns to invited.
func (s *PostgresService) Invite(ctx context.Context, groupID, userID, invitedBy int64) (*Membership, error) {
	inviter, err := s.GetByGroupAndUser(ctx, groupID, invitedBy)
	if err != nil || inviter.Status != StatusActive {
		return nil, errdefs.Forbiddenf("only active members of group %d can invite", groupID)
	}

	return s.InviteDirect(ctx, groupID, userID, invitedBy)
}

// InviteDirect creates the invitation without the active-member check.
// The admin orchestrator uses it after its own authorization, so
// platform operators can invite into groups they do not belong to.
func (s *PostgresService) InviteDirect(ctx context.Context, groupID, userID, invitedBy int64) (*Membership, error) {
	existing, err := s.GetByGroupAndUser(ctx, groupID, userID)
	if err != nil && !errdefs.IsNotFound(err) {
		return nil, err
	}

	var m *Membership
	if existing != nil {
		if existing.Status != StatusRemoved {
			return nil, errdefs.Conflict("membership",
				fmt.Sprintf("user %d is already %s in group %d", userID, existing.Status, groupID))
		}
		m, err = scanMembership(s.db.QueryRowContext(ctx, `
			UPDATE group_memberships
			SET status = 'invited', invited_by = $3, invited_at = NOW(), joined_at = NULL, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING `+membershipColumns, existing.ID, userID, invitedBy))
	} else {
		m, err = scanMembership(s.db.QueryRowContext(ctx, `
			INSERT INTO group_memberships (group_id, user_id, status, invited_by)
			VALUES ($1, $2, 'invited', $3)
			RETURNING `+membershipColumns, groupID, userID, invitedBy))
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errdefs.Conflict("membership",
				fmt.Sprintf("user %d is already a member of group %d", userID, groupID))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.recordTransition("", StatusInvited)
	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipInvite,
		invitedBy, userID, groupID, audit.EventStatusSuccess, "invitation sent")

	return m, nil
}

// Accept turns an invitation into an active membership and assigns the
// group's member role. Accepting an already-active membership is a
// no-op: no duplicate role grant and no duplicate audit entry.
func (s *PostgresService) Accept(ctx context.Context, membershipID, userID int64) (*Membership, error) {
	m, err := s.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, errdefs.Forbiddenf("invitation %d belongs to another user", membershipID)
	}
	if m.Status == StatusActive {
		return m, nil
	}
	if m.Status != StatusInvited {
		return nil, errdefs.Conflict("membership",
			fmt.Sprintf("membership %d is %s, not invited", membershipID, m.Status))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	m, err = scanMembership(tx.QueryRowContext(ctx, `
		UPDATE group_memberships
		SET status = 'active', joined_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'invited'
		RETURNING `+membershipColumns, membershipID))
	if err == sql.ErrNoRows {
		return nil, errdefs.Conflict("membership", "invitation state changed concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_group_roles (group_id, user_id, role_id)
		SELECT $1, $2, id FROM group_roles WHERE group_id = $1 AND name = 'member'
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, m.GroupID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acceptance: %w", err)
	}

	s.invalidate(ctx, userID)
	s.recordTransition(StatusInvited, StatusActive)
	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipAccept,
		userID, userID, m.GroupID, audit.EventStatusSuccess, "invitation accepted")

	return m, nil
}

// ForceJoin places the user in the group as an active member without an
// invitation round-trip, on behalf of an administrator. An existing row
// in any status is moved to active; the group's member role is assigned
// the same way acceptance does it. Returns false when the user is
// already an active member.
func (s *PostgresService) ForceJoin(ctx context.Context, groupID, userID, actorID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	prior := Status("none")
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM group_memberships
		WHERE group_id = $1 AND user_id = $2
		FOR UPDATE
	`, groupID, userID).Scan(&prior)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_memberships (group_id, user_id, status, invited_by, joined_at)
			VALUES ($1, $2, 'active', $3, NOW())
		`, groupID, userID, actorID)
		if err != nil {
			return false, fmt.Errorf("failed to create membership: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to load membership: %w", err)
	case prior == StatusActive:
		return false, nil
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE group_memberships
			SET status = 'active', joined_at = COALESCE(joined_at, NOW()), updated_at = NOW()
			WHERE group_id = $1 AND user_id = $2
		`, groupID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to activate membership: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_group_roles (group_id, user_id, role_id)
		SELECT $1, $2, id FROM group_roles WHERE group_id = $1 AND name = 'member'
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to assign member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit join: %w", err)
	}

	s.invalidate(ctx, userID)
	s.recordTransition(prior, StatusActive)
	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipJoin,
		actorID, userID, groupID, audit.EventStatusSuccess, "added by administrator")

	return true, nil
}

// Decline deletes a pending invitation outright
func (s *PostgresService) Decline(ctx context.Context, membershipID, userID int64) error {
	m, err := s.GetMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return errdefs.Forbiddenf("invitation %d belongs to another user", membershipID)
	}
	if m.Status != StatusInvited {
		return errdefs.Conflict("membership",
			fmt.Sprintf("membership %d is %s, not invited", membershipID, m.Status))
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM group_memberships WHERE id = $1 AND status = 'invited'", membershipID); err != nil {
		return fmt.Errorf("failed to decline invitation: %w", err)
	}

	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipDecline,
		userID, userID, m.GroupID, audit.EventStatusSuccess, "invitation declined")

	return nil
}

// Pause suspends an active membership. Role assignments are kept; the
// status alone gates permission resolution, so Resume restores the
// member's permissions untouched.
func (s *PostgresService) Pause(ctx context.Context, groupID, userID, actorID int64) error {
	if err := s.setStatus(ctx, groupID, userID, StatusActive, StatusPaused); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.recordTransition(StatusActive, StatusPaused)
	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipPause,
		actorID, userID, groupID, audit.EventStatusSuccess, "")
	return nil
}

// Resume reactivates a paused membership
func (s *PostgresService) Resume(ctx context.Context, groupID, userID, actorID int64) error {
	if err := s.setStatus(ctx, groupID, userID, StatusPaused, StatusActive); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.recordTransition(StatusPaused, StatusActive)
	_ = audit.FromContext(ctx).LogMembership(ctx, audit.EventTypeMembershipResume,
		actorID, userID, groupID, audit.EventStatusSuccess, "")
	return nil
}

func (s *PostgresService) setStatus(ctx context.Context, groupID, userID int64, from, to Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE group_memberships
		SET status = $4, updated_at = NOW()
		WHERE group_id = $1 AND user_id = $2 AND status = $3
	`, groupID, userID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update membership status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		m, err := s.GetByGroupAndUser(ctx, groupID, userID)
		if err != nil {
			return err
		}
		return errdefs.Conflict("membership",
			fmt.Sprintf("cannot move membership from %s to %s", m.Status, to))
	}
	return nil
}

// Remove ends a membership on behalf of another member or an
// administrator. The last-privileged-holder guard runs inside the same
// transaction; role assignments in the group are cascaded away.
func (s *PostgresService) Remove(ctx context.Context, groupID, userID, actorID int64) error {
	return s.endMembership(ctx, groupID, userID, actorID, audit.EventTypeMembershipRemove)
}

// Leave is the member ending their own membership. The same guard
// applies: the last privileged holder cannot leave.
func (s *PostgresService) Leave(ctx context.Context, groupID, userID int64) error {
	return s.endMembership(ctx, groupID, userID, userID, audit.EventTypeMembershipLeave)
}

func (s *PostgresService) endMembership(ctx context.Context, groupID, userID, actorID int64, eventType audit.EventType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.guard.CheckRemoval(ctx, tx, groupID, userID); err != nil {
		if errdefs.IsInvariantViolation(err) {
			_ = audit.FromContext(ctx).LogMembership(ctx, eventType,
				actorID, userID, groupID, audit.EventStatusDenied, err.Error())
		}
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE group_memberships
		SET status = 'removed', updated_at = NOW()
		WHERE group_id = $1 AND user_id = $2 AND status IN ('active', 'paused', 'invited')
	`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errdefs.NotFound("membership", fmt.Sprintf("group %d user %d", groupID, userID))
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM user_group_roles WHERE group_id = $1 AND user_id = $2", groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to cascade role assignments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}

	s.invalidate(ctx, userID)
	s.recordTransition(StatusActive, StatusRemoved)
	_ = audit.FromContext(ctx).LogMembership(ctx, eventType,
		actorID, userID, groupID, audit.EventStatusSuccess, "")

	return nil
}

// GetMembership returns one membership by id
func (s *PostgresService) GetMembership(ctx context.Context, id int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM group_memberships WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundID("membership", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// GetByGroupAndUser returns the membership for a (group, user) pair
func (s *PostgresService) GetByGroupAndUser(ctx context.Context, groupID, userID int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM group_memberships WHERE group_id = $1 AND user_id = $2`,
		groupID, userID))
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFound("membership", fmt.Sprintf("group %d user %d", groupID, userID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMembers returns one roster page plus the total match count
func (s *PostgresService) ListMembers(ctx context.Context, groupID int64, filter ListFilter) ([]*Member, int, error) {
	where := " WHERE m.group_id = $1"
	args := []interface{}{groupID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND m.status = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM group_memberships m" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count members: %w", err)
	}

	query := `
		SELECT m.id, m.group_id, m.user_id, m.status, m.invited_by, m.invited_at, m.joined_at, m.updated_at,
		       u.email, u.display_name
		FROM group_memberships m
		JOIN users u ON u.id = m.user_id` + where + `
		ORDER BY u.display_name, m.id`
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
		return nil, 0, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*Member, 0)
	for rows.Next() {
		m := &Member{}
		err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Status,
			&m.InvitedBy, &m.InvitedAt, &m.JoinedAt, &m.UpdatedAt,
			&m.Email, &m.DisplayName)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, total, rows.Err()
}

// CleanupExpiredInvitations deletes invitations that were never answered
// and returns how many were dropped. Runs on a schedule.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM group_memberships
		WHERE status = 'invited' AND invited_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up invitations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}
