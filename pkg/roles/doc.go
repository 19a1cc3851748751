// Package roles manages group-scoped roles, the permissions they grant,
// and user role assignments.
//
// A role either derives from a platform template (editable afterwards
// but never deletable) or is a custom role defined by the group. Users
// may hold several roles at once; effective permissions are the union
// across all of them.
//
// Grant edits run through two protections. Anti-escalation: an editor
// can only add permissions they themselves hold in the group, so nobody
// composes a role more powerful than their own. Self-lockout: removing
// a critical permission the editor holds only through the edited role
// returns a warning instead of persisting, and requires an explicit
// confirmation to save anyway.
package roles
