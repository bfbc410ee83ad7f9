package models

// Inbound event names.
const (
	RequestJoin              = "join"
	RequestCreateGroup       = "create_group"
	RequestAddGroupMembers   = "add_group_members"
	RequestRemoveGroupMember = "remove_group_member"
	RequestLeaveGroup        = "leave_group"
	RequestUpdateGroup       = "update_group"
	RequestDeleteGroup       = "delete_group"
	RequestSendText          = "send_text_message"
	RequestSendVoice         = "send_voice_message"
	RequestSendMedia         = "send_media"
	RequestMarkRead          = "mark_message_read"
	RequestDeleteMessage     = "delete_message"
	RequestTyping            = "typing"
	RequestGetMessages       = "get_group_messages"
	RequestJoinRoom          = "join_group_room"
	RequestLeaveRoom         = "leave_group_room"
	RequestOnlineStatus      = "get_online_status"
)

type JoinRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

type CreateGroupRequest struct {
	Name       string   `json:"name"`
	MemberIDs  []string `json:"memberIds"`
	MusicURL   string   `json:"musicUrl,omitempty"`
	PictureURL string   `json:"pictureUrl,omitempty"`
}

type AddMembersRequest struct {
	GroupID   string   `json:"groupId"`
	MemberIDs []string `json:"memberIds"`
}

type RemoveMemberRequest struct {
	GroupID  string `json:"groupId"`
	TargetID string `json:"targetId"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

// UpdateGroupRequest carries optional fields; nil means unchanged.
type UpdateGroupRequest struct {
	GroupID    string  `json:"groupId"`
	Name       *string `json:"name,omitempty"`
	PictureURL *string `json:"pictureUrl,omitempty"`
	MusicURL   *string `json:"musicUrl,omitempty"`
}

type SendTextRequest struct {
	GroupID string `json:"groupId"`
	Content string `json:"content"`
}

type SendVoiceRequest struct {
	GroupID  string  `json:"groupId"`
	Content  string  `json:"content"`
	Duration float64 `json:"duration"`
	MimeType string  `json:"mimeType"`
}

// MediaFile is one uploaded attachment already stored by the media collaborator.
type MediaFile struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

type SendMediaRequest struct {
	GroupID string      `json:"groupId"`
	Files   []MediaFile `json:"files"`
}

type MessageRequest struct {
	MessageID string `json:"messageId"`
}

type DeleteMessageRequest struct {
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone"`
}

type TypingRequest struct {
	GroupID string `json:"groupId"`
	Typing  bool   `json:"typing"`
}

type GetMessagesRequest struct {
	GroupID string `json:"groupId"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

type OnlineStatusRequest struct {
	UserIDs []string `json:"userIds"`
}

// MessagePage is one page of group history, oldest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	HasMore  bool      `json:"hasMore"`
}

// AddMembersResult reports which identities were actually added.
type AddMembersResult struct {
	Group Group    `json:"group"`
	Added []string `json:"added"`
}
