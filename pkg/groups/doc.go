// Package groups manages community groups.
//
// Groups come in three kinds. Engagement groups are the ordinary
// user-facing unit and the scope of group-tier permission resolution.
// System groups ("All Members", "Platform Administrators") are
// platform-scoped: permissions held through them apply in every context
// group. Personal groups are single-user workspaces.
//
// Creating an engagement group provisions it in one transaction: every
// mandatory role template is instantiated as a group role with the
// template's grants copied, and the creator joins as an active member
// holding the steward role, so a new group always starts with a
// privileged holder.
package groups
