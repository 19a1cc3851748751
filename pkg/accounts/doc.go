// Package accounts manages platform accounts, their lifecycle, and login
// sessions.
//
// An account moves between three states: active, inactive, and
// decommissioned. Decommissioning is the soft delete and is terminal on
// the bulk action surface; only an explicit Restore reverses it. Hard
// delete removes the row outright and cascades memberships, role
// assignments, and sessions.
//
// Lifecycle transitions report whether they changed anything, so bulk
// callers can count an already-satisfied target as skipped instead of
// failed.
package accounts
