// Package authz is the permission resolution engine and its protection
// guards.
//
// Resolution combines two strictly additive tiers: platform-wide grants
// held through active memberships in system groups, and group-scoped
// grants held through role assignments in the context group. Checks are
// pure reads and never error; anything unknown or inactive resolves to
// a denial.
//
// Resolved sets are cached in a small in-process LRU backed by an
// optional shared Redis, invalidated per user whenever a membership,
// assignment, or grant changes.
//
// The guards enforce the last-privileged-holder invariant inside the
// mutating transaction, against row-locked assignment reads, so
// concurrent removals cannot race a group out of its only holder of a
// critical permission.
package authz
