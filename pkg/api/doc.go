// Package api is the HTTP surface over the engine: groups, memberships,
// roles and grants, permission checks, the admin user listing with its
// selection support, bulk actions, the permission catalog, and audit
// search. Handlers are thin JSON glue — every rule lives in the service
// packages, and every mutation reads the acting user from the request
// context put there by the actor middleware.
package api
