package adminops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guildhall-io/guildhall/pkg/accounts"
	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/errdefs"
	"github.com/guildhall-io/guildhall/pkg/membership"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

// Notifier delivers message and notify actions. Send returns how many
// targets were actually reached.
type Notifier interface {
	Send(ctx context.Context, targetUserIDs []int64, payload string) (int, error)
}

// Orchestrator computes per-action eligibility for a selection and
// executes bulk actions against it.
type Orchestrator struct {
	accounts    accounts.Service
	memberships membership.Service
	notifier    Notifier
	metrics     *observability.Metrics
	maxTargets  int
}

// NewOrchestrator creates an Orchestrator. The notifier may be nil when
// no messaging integration is configured; message and notify will fail
// with a clear error.
func NewOrchestrator(accountSvc accounts.Service, membershipSvc membership.Service, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		accounts:    accountSvc,
		memberships: membershipSvc,
		notifier:    notifier,
	}
}

// SetMetrics wires bulk action counters. Optional.
func (o *Orchestrator) SetMetrics(m *observability.Metrics) {
	o.metrics = m
}

// SetMaxTargets caps how many targets one execution may address. Zero
// means no cap.
func (o *Orchestrator) SetMaxTargets(n int) {
	o.maxTargets = n
}

// ComputeActionStates evaluates action eligibility for the selected
// users. commonGroupCount is the number of groups in which every
// selected user is simultaneously an active member; it gates remove.
// Enabled actions carry no reason.
func ComputeActionStates(selectedUsers []*accounts.User, commonGroupCount int) map[Action]ActionState {
	states := make(map[Action]ActionState, len(AllActions))
	if len(selectedUsers) == 0 {
		for _, a := range AllActions {
			states[a] = ActionState{Disabled: true, Reason: "no users selected"}
		}
		return states
	}

	allActive := true
	allInactiveOrDecommissioned := true
	allDecommissioned := true
	anyDecommissioned := false
	for _, u := range selectedUsers {
		switch u.Status {
		case accounts.StatusActive:
			allInactiveOrDecommissioned = false
			allDecommissioned = false
		case accounts.StatusInactive:
			allActive = false
			allDecommissioned = false
		case accounts.StatusDecommissioned:
			allActive = false
			anyDecommissioned = true
		}
	}

	for _, a := range AllActions {
		states[a] = ActionState{}
	}

	switch {
	case anyDecommissioned:
		states[ActionActivate] = ActionState{Disabled: true,
			Reason: "decommissioned accounts cannot be reactivated from here"}
	case allActive:
		states[ActionActivate] = ActionState{Disabled: true,
			Reason: "all selected users are already active"}
	}
	if allInactiveOrDecommissioned {
		states[ActionDeactivate] = ActionState{Disabled: true,
			Reason: "no selected users are active"}
	}
	if allDecommissioned {
		states[ActionDeleteSoft] = ActionState{Disabled: true,
			Reason: "all selected users are already decommissioned"}
	}
	if commonGroupCount == 0 {
		states[ActionRemove] = ActionState{Disabled: true,
			Reason: "selected users share no common group"}
	}

	return states
}

// ActionStates loads the selected users and their common-group count
// and computes eligibility for every action.
func (o *Orchestrator) ActionStates(ctx context.Context, selectedIDs []int64) (map[Action]ActionState, error) {
	if len(selectedIDs) == 0 {
		return ComputeActionStates(nil, 0), nil
	}

	users, err := o.accounts.GetUsers(ctx, selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load selected users: %w", err)
	}
	common, err := o.accounts.CommonGroupCount(ctx, selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute common groups: %w", err)
	}

	return ComputeActionStates(users, common), nil
}

// ConfirmationPrompt returns the confirmation dialog text for an action
// over n targets, and whether confirmation is required at all. Only the
// destructive actions prompt.
func ConfirmationPrompt(action Action, n int) (string, bool) {
	if !action.Destructive() {
		return "", false
	}

	noun := "users"
	if n == 1 {
		noun = "user"
	}
	switch action {
	case ActionDeactivate:
		return fmt.Sprintf("Deactivate %d %s? They will be unable to sign in until reactivated.", n, noun), true
	case ActionDeleteSoft:
		return fmt.Sprintf("Decommission %d %s? Their accounts are retired and can only be restored by an operator.", n, noun), true
	case ActionDeleteHard:
		return fmt.Sprintf("Permanently delete %d %s? This cannot be undone.", n, noun), true
	case ActionLogout:
		return fmt.Sprintf("Sign %d %s out of every session?", n, noun), true
	case ActionRemove:
		return fmt.Sprintf("Remove %d %s from the group?", n, noun), true
	}
	return "", false
}

// Execute runs one bulk action over the targets sequentially with
// per-item error isolation: a failure on one target is recorded and the
// loop continues. Nothing is rolled back; the result reports succeeded,
// skipped, and failed targets, and a mixed outcome is additionally
// reported as a PartialFailureError so transport layers can pick a
// status without discarding the result.
func (o *Orchestrator) Execute(ctx context.Context, action Action, targetIDs []int64, actorID int64, extra Extra) (*BulkResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if len(targetIDs) == 0 {
		return nil, fmt.Errorf("no targets selected")
	}
	if o.maxTargets > 0 && len(targetIDs) > o.maxTargets {
		return nil, fmt.Errorf("too many targets: %d exceeds the limit of %d", len(targetIDs), o.maxTargets)
	}
	switch action {
	case ActionInvite, ActionJoin, ActionRemove:
		if extra.GroupID <= 0 {
			return nil, fmt.Errorf("action %s requires a group", action)
		}
	case ActionMessage, ActionNotify:
		if o.notifier == nil {
			return nil, fmt.Errorf("no notification sender configured")
		}
	}

	result := &BulkResult{
		BulkOpID: uuid.NewString(),
		Action:   action,
	}
	start := time.Now()

	if action == ActionMessage || action == ActionNotify {
		o.deliver(ctx, action, targetIDs, extra.Payload, result)
	} else {
		for _, id := range targetIDs {
			changed, err := o.apply(ctx, action, id, actorID, extra)
			switch {
			case err != nil:
				result.Errors = append(result.Errors, TargetError{UserID: id, Message: err.Error()})
				o.recordTarget(action, "error")
			case !changed:
				result.Skipped++
				o.recordTarget(action, "skipped")
			default:
				result.Succeeded++
				o.recordTarget(action, "succeeded")
				if action == ActionDeleteHard {
					_ = audit.FromContext(ctx).LogAdminAction(ctx, audit.EventTypeUserDeleteHard,
						actorID, id, result.BulkOpID, audit.EventStatusSuccess, "account permanently deleted")
				}
			}
		}
	}

	result.ClearSelection = action.ClearsSelection() && result.Succeeded > 0

	if action != ActionDeleteHard {
		o.logSummary(ctx, actorID, targetIDs, extra, result)
	}
	o.recordAction(action, result, time.Since(start))

	if len(result.Errors) > 0 && result.Succeeded > 0 {
		return result, errdefs.PartialFailure(result.Succeeded, result.Skipped, len(result.Errors))
	}
	return result, nil
}

// apply performs the action on one target. It returns false with a nil
// error when the target was already in the requested state, which the
// loop reports as skipped.
func (o *Orchestrator) apply(ctx context.Context, action Action, userID, actorID int64, extra Extra) (bool, error) {
	switch action {
	case ActionActivate:
		return o.accounts.Activate(ctx, userID)
	case ActionDeactivate:
		return o.accounts.Deactivate(ctx, userID)
	case ActionDeleteSoft:
		return o.accounts.Decommission(ctx, userID)
	case ActionDeleteHard:
		if err := o.accounts.HardDelete(ctx, userID); err != nil {
			if errdefs.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case ActionLogout:
		if _, err := o.accounts.RevokeSessions(ctx, userID); err != nil {
			return false, err
		}
		return true, nil
	case ActionInvite:
		if _, err := o.memberships.InviteDirect(ctx, extra.GroupID, userID, actorID); err != nil {
			if errdefs.IsConflict(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case ActionJoin:
		return o.memberships.ForceJoin(ctx, extra.GroupID, userID, actorID)
	case ActionRemove:
		if err := o.memberships.Remove(ctx, extra.GroupID, userID, actorID); err != nil {
			if errdefs.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown action %q", action)
}

// deliver fans message and notify out to the sender in a single call;
// the sender reports how many targets it reached.
func (o *Orchestrator) deliver(ctx context.Context, action Action, targetIDs []int64, payload string, result *BulkResult) {
	sent, err := o.notifier.Send(ctx, targetIDs, payload)
	result.Succeeded = sent
	if err != nil {
		result.Errors = append(result.Errors, TargetError{Message: err.Error()})
	}
	for i := 0; i < sent; i++ {
		o.recordTarget(action, "succeeded")
	}
}

func (o *Orchestrator) logSummary(ctx context.Context, actorID int64, targetIDs []int64, extra Extra, result *BulkResult) {
	event := &audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeBulkExecute,
		Status:    audit.EventStatusSuccess,
		ActorID:   &actorID,
		BulkOpID:  result.BulkOpID,
		Message:   fmt.Sprintf("bulk %s over %d users", result.Action, len(targetIDs)),
		Metadata: map[string]interface{}{
			"action":    string(result.Action),
			"user_ids":  targetIDs,
			"count":     len(targetIDs),
			"succeeded": result.Succeeded,
			"skipped":   result.Skipped,
			"failed":    len(result.Errors),
		},
	}
	if extra.GroupID > 0 {
		event.GroupID = &extra.GroupID
	}
	if result.Succeeded == 0 && len(result.Errors) > 0 {
		event.Status = audit.EventStatusFailure
	}
	_ = audit.FromContext(ctx).Log(ctx, event)
}

func (o *Orchestrator) recordTarget(action Action, outcome string) {
	if o.metrics != nil {
		o.metrics.BulkTargetsTotal.WithLabelValues(string(action), outcome).Inc()
	}
}

func (o *Orchestrator) recordAction(action Action, result *BulkResult, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case len(result.Errors) > 0 && result.Succeeded > 0:
		outcome = "partial"
	case len(result.Errors) > 0:
		outcome = "failure"
	}
	o.metrics.BulkActionsTotal.WithLabelValues(string(action), outcome).Inc()
	o.metrics.BulkActionDuration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}
