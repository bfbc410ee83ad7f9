package models

import "time"

// User is the slice of the user record the realtime core reads and writes.
type User struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Online      bool      `db:"online" json:"online"`
	LastSeen    time.Time `db:"last_seen" json:"lastSeen"`
}

// Presence is the online/last-seen fact reported for an identity.
type Presence struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}
