package model

import "time"

// User is a chat user admitted through an invite (or configured as admin).
type User struct {
	ID       int64     `json:"id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invite is a one-time access code.
type Invite struct {
	Code      string     `json:"code"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UsedBy    *int64     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Used reports whether the invite was already consumed.
func (i Invite) Used() bool {
	return i.UsedBy != nil
}
