// Package adminops is the bulk admin action orchestrator. It computes
// per-action eligibility for a heterogeneous user selection (every
// disabled action carries a reason the UI can show), gates destructive
// actions behind a confirmation prompt, and executes actions over the
// selection sequentially with per-item error isolation.
//
// Executions are correlated by a bulk operation id: the audit trail
// carries one summary entry per execution, except hard delete, which
// writes one entry per deleted account instead.
package adminops
