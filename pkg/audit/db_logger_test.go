package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhall-io/guildhall/pkg/contextkeys"
)

func newDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger, mock
}

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_Log(t *testing.T) {
	logger, mock := newDBLogger(t)

	actorID := int64(1)
	targetID := int64(7)

	mock.ExpectQuery("INSERT INTO admin_audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))

	event := &Event{
		Timestamp:    time.Now().UTC(),
		EventType:    EventTypeUserDeactivate,
		Status:       EventStatusSuccess,
		ActorID:      &actorID,
		TargetUserID: &targetID,
		BulkOpID:     "op-1",
		Metadata:     map[string]interface{}{"reason": "bulk"},
	}

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(101), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogMembership_CarriesRequestID(t *testing.T) {
	logger, mock := newDBLogger(t)

	mock.ExpectQuery("INSERT INTO admin_audit_log").
		WithArgs(
			sqlmock.AnyArg(),                          // timestamp
			EventTypeMembershipInvite,                 // event_type
			EventStatusSuccess,                        // status
			sqlmock.AnyArg(), sqlmock.AnyArg(),        // actor, target
			sqlmock.AnyArg(),                          // group
			"req-9",                                   // request_id
			"",                                        // bulk_op_id
			"invited", "",                             // message, error
			sqlmock.AnyArg(),                          // metadata
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	ctx := contextkeys.WithRequestID(context.Background(), "req-9")
	err := logger.LogMembership(ctx, EventTypeMembershipInvite, 1, 2, 3, EventStatusSuccess, "invited")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search_ByFilters(t *testing.T) {
	logger, mock := newDBLogger(t)

	groupID := int64(3)
	status := EventStatusDenied

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"actor_id", "target_user_id", "group_id",
		"request_id", "bulk_op_id",
		"message", "error_message", "metadata",
	}).AddRow(
		int64(5), time.Now(), string(EventTypeGuardRejected), string(EventStatusDenied),
		int64(1), nil, int64(3),
		"req-1", "",
		"blocked", "", []byte(`{"invariant":"last_holder"}`),
	)

	mock.ExpectQuery("SELECT(.|\n)+FROM admin_audit_log").WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{
		GroupID: &groupID,
		Status:  &status,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeGuardRejected, events[0].EventType)
	assert.Equal(t, "last_holder", events[0].Metadata["invariant"])
}

func TestDBLogger_Search_ByBulkOpID(t *testing.T) {
	logger, mock := newDBLogger(t)

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"actor_id", "target_user_id", "group_id",
		"request_id", "bulk_op_id",
		"message", "error_message", "metadata",
	})
	for i := int64(1); i <= 3; i++ {
		rows.AddRow(
			i, time.Now(), string(EventTypeUserDeleteHard), string(EventStatusSuccess),
			int64(1), i+10, nil,
			"", "op-42",
			"", "", []byte(`{}`),
		)
	}

	mock.ExpectQuery("SELECT(.|\n)+FROM admin_audit_log").
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{BulkOpID: "op-42"})
	require.NoError(t, err)
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "op-42", e.BulkOpID)
	}
}

func TestDBLogger_DeleteOlderThan(t *testing.T) {
	logger, mock := newDBLogger(t)

	cutoff := time.Now().Add(-365 * 24 * time.Hour)
	mock.ExpectExec("DELETE FROM admin_audit_log WHERE timestamp").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := logger.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}

func TestDBLogger_LogGuardRejection(t *testing.T) {
	logger, mock := newDBLogger(t)

	mock.ExpectQuery("INSERT INTO admin_audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	err := logger.LogGuardRejection(context.Background(), 9, "last_holder", "cannot remove final manage_roles holder")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
