// Package membership implements the group membership state machine.
//
// A membership moves invited -> active on acceptance, and an active
// membership can be paused, resumed, or removed. Only active memberships
// participate in permission resolution, so pausing suspends a member's
// permissions without touching their role assignments, while removal
// cascades the assignments away inside the same transaction as the
// status change.
//
// Every transition that ends a membership, whether the member leaves or
// someone removes them, first runs the last-privileged-holder guard: a
// group can never lose its only holder of a critical permission.
package membership
