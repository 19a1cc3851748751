// Package errdefs defines the error taxonomy shared by the membership,
// role, and permission engine. Callers branch on these types to render
// precise failures: a Conflict ("role name already exists") reads very
// differently from an InvariantViolation ("promote another Steward first").
package errdefs

import (
	"errors"
	"fmt"
)

// NotFoundError indicates an unknown user, group, role, or permission.
// Permission resolution never returns this; it resolves unknowns to a
// negative answer instead. Mutations do return it.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NotFound builds a NotFoundError for a resource and key.
func NotFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// NotFoundID builds a NotFoundError from a numeric ID.
func NotFoundID(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: fmt.Sprintf("%d", id)}
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// ForbiddenError indicates the caller lacks the permission required for a
// mutation. Permission is the catalog name that was missing.
type ForbiddenError struct {
	Permission string
	Reason     string
}

func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("forbidden: %s", e.Reason)
	}
	return fmt.Sprintf("forbidden: requires permission %q", e.Permission)
}

// Forbidden builds a ForbiddenError naming the missing permission.
func Forbidden(permission string) *ForbiddenError {
	return &ForbiddenError{Permission: permission}
}

// Forbiddenf builds a ForbiddenError with a formatted reason.
func Forbiddenf(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// IsForbidden checks if an error is a forbidden error.
func IsForbidden(err error) bool {
	var e *ForbiddenError
	return errors.As(err, &e)
}

// ConflictError indicates a uniqueness invariant was violated, such as a
// duplicate membership or role assignment.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail)
}

// Conflict builds a ConflictError.
func Conflict(resource, detail string) *ConflictError {
	return &ConflictError{Resource: resource, Detail: detail}
}

// IsConflict checks if an error is a conflict error.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// InvariantViolationError indicates a protection invariant rejected the
// mutation, most notably the last-privileged-holder guard.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// InvariantViolation builds an InvariantViolationError.
func InvariantViolation(invariant, detail string) *InvariantViolationError {
	return &InvariantViolationError{Invariant: invariant, Detail: detail}
}

// IsInvariantViolation checks if an error is an invariant violation.
func IsInvariantViolation(err error) bool {
	var e *InvariantViolationError
	return errors.As(err, &e)
}

// PartialFailureError reports a bulk operation in which some targets
// succeeded and some did not. The operation's structured result remains
// valid alongside it; callers use this type to pick a response status,
// not to discard the partial outcome.
type PartialFailureError struct {
	Succeeded int
	Skipped   int
	Failed    int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("bulk operation partially failed: %d succeeded, %d skipped, %d failed",
		e.Succeeded, e.Skipped, e.Failed)
}

// PartialFailure builds a PartialFailureError from per-target counts.
func PartialFailure(succeeded, skipped, failed int) *PartialFailureError {
	return &PartialFailureError{Succeeded: succeeded, Skipped: skipped, Failed: failed}
}

// IsPartialFailure checks if an error reports a partial bulk failure.
func IsPartialFailure(err error) bool {
	var e *PartialFailureError
	return errors.As(err, &e)
}
