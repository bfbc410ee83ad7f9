package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses so transitions can be checked for regression.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next goes forward.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// DeletedPlaceholder replaces the content of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// Message is a group message.
type Message struct {
	ID                string        `db:"id" json:"id"`
	GroupID           string        `db:"group_id" json:"groupId"`
	SenderID          string        `db:"sender_id" json:"senderId"`
	SenderDisplayName string        `db:"sender_name" json:"senderDisplayName"`
	Type              MessageType   `db:"type" json:"type"`
	Content           string        `db:"content" json:"content"`
	FileType          string        `db:"file_type" json:"fileType,omitempty"`
	FileName          string        `db:"file_name" json:"fileName,omitempty"`
	Duration          float64       `db:"duration" json:"duration,omitempty"`
	Status            MessageStatus `db:"status" json:"status"`
	DeletedFor        []string      `db:"-" json:"deletedFor"`
	DeletedForAll     bool          `db:"deleted_for_all" json:"deletedForAll"`
	Pinned            bool          `db:"pinned" json:"pinned"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
}

// HiddenFor reports whether userID soft-deleted the message.
func (m Message) HiddenFor(userID string) bool {
	return contains(m.DeletedFor, userID)
}
