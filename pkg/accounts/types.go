package accounts

import "time"

// UserStatus is the account lifecycle state
type UserStatus string

const (
	// StatusActive means the account can sign in and participate
	StatusActive UserStatus = "active"
	// StatusInactive means the account is deactivated but recoverable
	StatusInactive UserStatus = "inactive"
	// StatusDecommissioned is the soft-deleted terminal state. Only an
	// explicit Restore brings an account back from it.
	StatusDecommissioned UserStatus = "decommissioned"
)

// User represents a platform account
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name"`
	Status           UserStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
	DecommissionedAt *time.Time `json:"decommissioned_at,omitempty"`
}

// Session is an authenticated login session
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Token     string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// ListFilter selects users for listing and for select-all-matching.
// Page is 1-based; a zero PageSize means no pagination.
type ListFilter struct {
	Status   UserStatus `json:"status,omitempty"`
	Search   string     `json:"search,omitempty"`
	Page     int        `json:"page,omitempty"`
	PageSize int        `json:"page_size,omitempty"`
}
