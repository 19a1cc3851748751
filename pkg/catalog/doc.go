// Package catalog defines the fixed permission catalog and role templates.
//
// Permissions are platform-defined: groups compose them into roles but can
// never mint new ones. The catalog is seeded at deploy time from the built-in
// DefaultSeed or an operator-supplied YAML file, and Apply is idempotent so
// re-seeding on every deploy is safe.
//
// Critical permissions (administer_platform, manage_roles) are the ones the
// guard layer protects: the last holder of a critical permission in a scope
// cannot lose it without an explicit confirmation.
package catalog
