package models

import (
	"encoding/json"
	"time"
)

// Outbound event names.
const (
	EventAck                = "ack"
	EventGroupCreated       = "group_created"
	EventPlayGroupMusic     = "play_group_music"
	EventAddedToGroup       = "added_to_group"
	EventGroupMembersAdded  = "group_members_added"
	EventGroupMemberRemoved = "group_member_removed"
	EventRemovedFromGroup   = "removed_from_group"
	EventGroupUpdated       = "group_updated"
	EventGroupDeleted       = "group_deleted"
	EventNewTextMessage     = "new_text_message"
	EventNewVoiceMessage    = "new_voice_message"
	EventNewMediaMessage    = "new_media_message"
	EventMessageStatus      = "message_status_update"
	EventMessageRead        = "message_read"
	EventMessageDeleted     = "message_deleted"
	EventUserTyping         = "user_typing"
	EventSessionReplaced    = "session_replaced"
)

// Event is a server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound is a client-to-server frame. Data is decoded per event name.
type Inbound struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the structured acknowledgment returned for an inbound event.
type Ack struct {
	Event   string `json:"event"`
	AckID   string `json:"ackId,omitempty"`
	Request string `json:"request"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// GroupPayload wraps a group for fan-out events.
type GroupPayload struct {
	Group Group `json:"group"`
}

type PlayMusicPayload struct {
	GroupID  string `json:"groupId"`
	MusicURL string `json:"musicUrl"`
}

type MembersAddedPayload struct {
	GroupID string   `json:"groupId"`
	AddedBy string   `json:"addedBy"`
	Members []string `json:"members"`
	Group   Group    `json:"group"`
}

type MemberRemovedPayload struct {
	GroupID   string `json:"groupId"`
	UserID    string `json:"userId"`
	RemovedBy string `json:"removedBy"`
	Left      bool   `json:"left"`
}

type GroupDeletedPayload struct {
	GroupID   string `json:"groupId"`
	DeletedBy string `json:"deletedBy"`
}

type MessagePayload struct {
	Message Message `json:"message"`
}

type StatusUpdatePayload struct {
	GroupID    string        `json:"groupId"`
	MessageIDs []string      `json:"messageIds"`
	Status     MessageStatus `json:"status"`
	UpdatedBy  string        `json:"updatedBy,omitempty"`
}

type MessageReadPayload struct {
	GroupID   string    `json:"groupId"`
	MessageID string    `json:"messageId"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type MessageDeletedPayload struct {
	GroupID     string `json:"groupId"`
	MessageID   string `json:"messageId"`
	DeletedBy   string `json:"deletedBy"`
	ForEveryone bool   `json:"forEveryone"`
	Content     string `json:"content,omitempty"`
}

type TypingPayload struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	Typing  bool   `json:"typing"`
}

type SessionReplacedPayload struct {
	UserID string `json:"userId"`
}
