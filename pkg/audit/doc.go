// Package audit provides the audit trail for membership, role, and admin
// action events.
//
// # Event Types
//
// Membership: invite, accept, decline, pause, resume, remove, leave
// Roles: create, update_grants, delete, assign, unassign
// Accounts: deactivate, reactivate, delete_soft, delete_hard, restore, logout
// Bulk: bulk.execute (one per operation) plus per-target user.* entries
// Guards: guard.rejected when a protection invariant blocks a mutation
//
// Hard deletes get one entry per affected user even inside a bulk
// operation; the shared BulkOpID ties them back together.
//
// # Sinks
//
// DBLogger writes to the admin_audit_log table and supports Search and
// retention sweeps. FileLogger appends NDJSON with size-based rotation.
// MultiLogger fans out to both. A handler picks its logger from the
// request context:
//
//	audit.FromContext(ctx).LogAdminAction(ctx,
//		audit.EventTypeUserDeactivate, actorID, targetID, bulkOpID,
//		audit.EventStatusSuccess, "deactivated by bulk action")
//
// # Search and Export
//
//	events, err := dbLogger.Search(ctx, audit.SearchFilter{
//		GroupID:    &groupID,
//		EventTypes: []audit.EventType{audit.EventTypeRoleUpdateGrants},
//	})
//	csv, err := audit.Export(events, audit.ExportFormatCSV)
//
// # Related Packages
//
//   - pkg/adminops: Emits bulk and per-target entries
//   - pkg/membership: Emits membership lifecycle entries
//   - pkg/roles: Emits role and grant entries
package audit
