package models

import "time"

// Group represents a chat group. Members always include every admin and the creator.
type Group struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CreatedBy  string    `db:"created_by" json:"createdBy"`
	Admins     []string  `db:"-" json:"admins"`
	Members    []string  `db:"-" json:"members"`
	PictureURL string    `db:"picture_url" json:"pictureUrl,omitempty"`
	MusicURL   string    `db:"music_url" json:"musicUrl,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// GroupMember is one row of group membership.
type GroupMember struct {
	GroupID string `db:"group_id" json:"groupId"`
	UserID  string `db:"user_id" json:"userId"`
	IsAdmin bool   `db:"is_admin" json:"isAdmin"`
}

func (g Group) IsMember(userID string) bool {
	return contains(g.Members, userID)
}

func (g Group) IsAdmin(userID string) bool {
	return contains(g.Admins, userID)
}

func (g Group) IsCreator(userID string) bool {
	return g.CreatedBy == userID
}

// Clone returns a copy whose member slices can be edited independently.
func (g Group) Clone() Group {
	out := g
	out.Admins = append([]string(nil), g.Admins...)
	out.Members = append([]string(nil), g.Members...)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Without returns list minus v, preserving order.
func Without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
