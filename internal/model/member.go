package model

import "time"

// Role gates the privileged status transitions and ledger postings.
type Role string

const (
	RoleParent Role = "parent"
	RoleKid    Role = "kid"
)

// Privileged reports whether the role may approve, mark missed/skipped,
// revert approvals, and post payouts or adjustments.
func (r Role) Privileged() bool {
	return r == RoleParent
}

// FamilyMember is a person in the household. The PIN hash never leaves the
// store; HasPIN tells the UI whether to challenge.
type FamilyMember struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	AvatarEmoji string    `json:"avatar_emoji"`
	Role        Role      `json:"role"`
	HasPIN      bool      `json:"has_pin"`
	Active      bool      `json:"active"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
