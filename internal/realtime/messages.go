package realtime

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	deliveryTimeout  = 5 * time.Second
)

// MessageService creates messages and moves them through sent, delivered
// and read. Status changes of one message are serialized, and sends hold the
// group lock so they cannot interleave with a group deletion.
type MessageService struct {
	groups    repositories.GroupRepository
	messages  repositories.MessageRepository
	users     repositories.UserRepository
	registry  *Registry
	rooms     *Rooms
	typing    *Typing
	scheduler *Scheduler
	audit     *telemetry.AuditEmitter
	delay     time.Duration
	locks     *keyedMutex
	groupLock *keyedMutex
	now       func() time.Time
	newID     func() string
}

// NewMessageService constructs a MessageService. delay is how long a message
// stays sent before it is marked delivered.
func NewMessageService(groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository,
	registry *Registry, rooms *Rooms, typing *Typing, scheduler *Scheduler, audit *telemetry.AuditEmitter, delay time.Duration) *MessageService {
	return &MessageService{
		groups:    groups,
		messages:  messages,
		users:     users,
		registry:  registry,
		rooms:     rooms,
		typing:    typing,
		scheduler: scheduler,
		audit:     audit,
		delay:     delay,
		locks:     newKeyedMutex(),
		groupLock: newKeyedMutex(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SendText posts a text message to a group.
func (s *MessageService) SendText(ctx context.Context, senderID string, req models.SendTextRequest) (models.Message, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return models.Message{}, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return models.Message{}, apperrors.Validation("Message content is required")
	}

	msgs, err := s.send(ctx, senderID, req.GroupID, models.EventNewTextMessage, []models.Message{{
		Type:    models.MessageText,
		Content: content,
	}})
	if err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// SendVoice posts a voice note. content is the stored recording URL.
func (s *MessageService) SendVoice(ctx context.Context, senderID string, req models.SendVoiceRequest) (models.Message, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return models.Message{}, err
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return models.Message{}, apperrors.Validation("Voice message content is required")
	}
	if req.Duration <= 0 || req.Duration > maxVoiceSeconds {
		return models.Message{}, apperrors.Validation("Voice message duration must be between 0 and 180 seconds")
	}
	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	if !strings.HasPrefix(mime, "audio/") {
		return models.Message{}, apperrors.Validation("Invalid audio type")
	}

	msgs, err := s.send(ctx, senderID, req.GroupID, models.EventNewVoiceMessage, []models.Message{{
		Type:     models.MessageVoice,
		Content:  content,
		FileType: mime,
		Duration: req.Duration,
	}})
	if err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// SendMedia posts one message per attached file.
func (s *MessageService) SendMedia(ctx context.Context, senderID string, req models.SendMediaRequest) ([]models.Message, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, apperrors.Validation("At least one file is required")
	}
	if len(req.Files) > maxMediaFiles {
		return nil, apperrors.Validation("No more than 10 files can be sent at once")
	}

	drafts := make([]models.Message, 0, len(req.Files))
	for _, file := range req.Files {
		draft, err := mediaDraft(file)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return s.send(ctx, senderID, req.GroupID, models.EventNewMediaMessage, drafts)
}

func mediaDraft(file models.MediaFile) (models.Message, error) {
	url := strings.TrimSpace(file.URL)
	if url == "" {
		return models.Message{}, apperrors.Validation("File url is required")
	}
	mime := strings.ToLower(strings.TrimSpace(file.MimeType))
	draft := models.Message{Content: url, FileType: mime, FileName: strings.TrimSpace(file.FileName)}
	switch {
	case strings.HasPrefix(mime, "image/"):
		draft.Type = models.MessageImage
	case strings.HasPrefix(mime, "video/"):
		draft.Type = models.MessageVideo
	case mime == "":
		return models.Message{}, apperrors.Validation("File type is required")
	default:
		if draft.FileName == "" {
			return models.Message{}, apperrors.Validation("File name is required")
		}
		draft.Type = models.MessageFile
	}
	return draft, nil
}

func (s *MessageService) send(ctx context.Context, senderID, groupID, event string, drafts []models.Message) ([]models.Message, error) {
	unlock := s.groupLock.Lock(groupID)
	defer unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(senderID) {
		return nil, apperrors.Authorization("You are not a member of this group")
	}
	name := s.displayName(ctx, senderID)

	sent := make([]models.Message, 0, len(drafts))
	for _, draft := range drafts {
		msg := draft
		msg.ID = s.newID()
		msg.GroupID = groupID
		msg.SenderID = senderID
		msg.SenderDisplayName = name
		msg.Status = models.StatusSent
		msg.DeletedFor = []string{}
		msg.CreatedAt = s.now().UTC()

		if err := s.messages.Create(ctx, msg); err != nil {
			return nil, apperrors.Internal("create message", err)
		}
		observability.IncMessageSent(string(msg.Type))
		s.rooms.Broadcast(groupID, models.Event{Event: event, Data: models.MessagePayload{Message: msg}})
		s.scheduleDelivery(msg.ID)
		sent = append(sent, msg)
	}

	if s.typing != nil {
		s.typing.ClearMember(groupID, senderID)
	}
	s.emitAudit(ctx, "INFO", "Message sent: "+event, senderID)
	return sent, nil
}

func (s *MessageService) scheduleDelivery(messageID string) {
	if s.scheduler == nil {
		return
	}
	s.scheduler.Schedule(messageID, s.delay, func() {
		s.markDelivered(messageID)
	})
}

// markDelivered runs off the request path; failures are logged and dropped.
// The status broadcast happens under the message lock so it cannot trail a
// later read update.
func (s *MessageService) markDelivered(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	unlock := s.locks.Lock(messageID)
	defer unlock()

	msg, changed, err := s.advanceLocked(ctx, messageID, models.StatusDelivered)
	if err != nil {
		if !errors.Is(err, repositories.ErrMessageNotFound) {
			log.Printf("delivery update failed: message_id=%s err=%v", messageID, err)
			observability.IncDeliveryTask("failed")
		}
		return
	}
	if !changed {
		observability.IncDeliveryTask("skipped")
		return
	}
	observability.IncDeliveryTask("delivered")
	s.rooms.Broadcast(msg.GroupID, models.Event{
		Event: models.EventMessageStatus,
		Data: models.StatusUpdatePayload{
			GroupID:    msg.GroupID,
			MessageIDs: []string{msg.ID},
			Status:     models.StatusDelivered,
		},
	})
}

// advanceLocked moves a message forward to status. It reports false when the
// message is deleted for everyone or already at or past status. The caller
// holds the message lock.
func (s *MessageService) advanceLocked(ctx context.Context, messageID string, status models.MessageStatus) (models.Message, bool, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.Message{}, false, err
	}
	if msg.DeletedForAll || !msg.Status.Advances(status) {
		return msg, false, nil
	}
	if err := s.messages.UpdateStatus(ctx, messageID, status); err != nil {
		return models.Message{}, false, err
	}
	msg.Status = status
	return msg, true, nil
}

// MarkRead marks a message read. Read is terminal, so the update is
// applied even when the message is already read.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID string) (models.Message, error) {
	if err := requireID(messageID, "messageId"); err != nil {
		return models.Message{}, err
	}

	unlock := s.locks.Lock(messageID)
	defer unlock()

	msg, group, err := s.loadForMember(ctx, userID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(messageID)
	}
	if err := s.messages.UpdateStatus(ctx, messageID, models.StatusRead); err != nil {
		return models.Message{}, s.storeError("mark message read", err)
	}
	msg.Status = models.StatusRead

	s.rooms.Broadcast(group.ID, models.Event{
		Event: models.EventMessageStatus,
		Data: models.StatusUpdatePayload{
			GroupID:    group.ID,
			MessageIDs: []string{msg.ID},
			Status:     models.StatusRead,
			UpdatedBy:  userID,
		},
	})
	if conn, ok := s.registry.Lookup(msg.SenderID); ok {
		_ = conn.Send(models.Event{
			Event: models.EventMessageRead,
			Data: models.MessageReadPayload{
				GroupID:   group.ID,
				MessageID: msg.ID,
				ReadBy:    userID,
				ReadAt:    s.now().UTC(),
			},
		})
	}
	return msg, nil
}

// Delete hides a message for userID, or rewrites it for everyone when
// forEveryone is set. Only the sender may delete for everyone.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string, forEveryone bool) (models.Message, error) {
	if err := requireID(messageID, "messageId"); err != nil {
		return models.Message{}, err
	}

	unlock := s.locks.Lock(messageID)
	defer unlock()

	msg, group, err := s.loadForMember(ctx, userID, messageID)
	if err != nil {
		return models.Message{}, err
	}

	payload := models.MessageDeletedPayload{GroupID: group.ID, MessageID: msg.ID, DeletedBy: userID, ForEveryone: forEveryone}
	if forEveryone {
		if msg.SenderID != userID {
			return models.Message{}, apperrors.Authorization("You can only delete your own messages for everyone")
		}
		if s.scheduler != nil {
			s.scheduler.Cancel(messageID)
		}
		msg.Type = models.MessageText
		msg.Content = models.DeletedPlaceholder
		msg.FileType = ""
		msg.FileName = ""
		msg.Duration = 0
		msg.DeletedFor = []string{}
		msg.DeletedForAll = true
		if err := s.messages.UpdateContent(ctx, msg); err != nil {
			return models.Message{}, s.storeError("delete message for everyone", err)
		}
		payload.Content = msg.Content
		s.emitAudit(ctx, "INFO", "Message deleted for everyone", userID)
	} else if !msg.HiddenFor(userID) {
		if err := s.messages.AddDeletedFor(ctx, messageID, userID); err != nil {
			return models.Message{}, s.storeError("delete message for user", err)
		}
		msg.DeletedFor = append(msg.DeletedFor, userID)
	}

	s.rooms.Broadcast(group.ID, models.Event{Event: models.EventMessageDeleted, Data: payload})
	return msg, nil
}

// List returns one page of history for a member, oldest first within the
// page. Messages from others still marked sent are flipped to delivered.
func (s *MessageService) List(ctx context.Context, userID string, req models.GetMessagesRequest) (models.MessagePage, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return models.MessagePage{}, err
	}
	page, limit := normalizePage(req.Page, req.Limit)

	group, err := s.loadGroup(ctx, req.GroupID)
	if err != nil {
		return models.MessagePage{}, err
	}
	if !group.IsMember(userID) {
		return models.MessagePage{}, apperrors.Authorization("You are not a member of this group")
	}

	stored, err := s.messages.FindByGroup(ctx, group.ID, page, limit)
	if err != nil {
		return models.MessagePage{}, apperrors.Internal("list messages", err)
	}

	visible := make([]models.Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if !stored[i].HiddenFor(userID) {
			visible = append(visible, stored[i])
		}
	}

	// Candidates are locked in id order and held until the batch update is
	// broadcast, so a concurrent read update of one of them always follows it.
	pending := make(map[string]int)
	var ids []string
	for i, msg := range visible {
		if msg.SenderID == userID || msg.DeletedForAll || msg.Status != models.StatusSent {
			continue
		}
		pending[msg.ID] = i
		ids = append(ids, msg.ID)
	}
	sort.Strings(ids)

	unlocks := make([]func(), 0, len(ids))
	defer func() {
		for _, unlock := range unlocks {
			unlock()
		}
	}()

	var flipped []string
	for _, id := range ids {
		unlocks = append(unlocks, s.locks.Lock(id))

		updated, changed, err := s.advanceLocked(ctx, id, models.StatusDelivered)
		if err != nil {
			log.Printf("delivery flip failed: message_id=%s user_id=%s err=%v", id, userID, err)
			continue
		}
		visible[pending[id]].Status = updated.Status
		if changed {
			if s.scheduler != nil {
				s.scheduler.Cancel(id)
			}
			flipped = append(flipped, id)
		}
	}
	if len(flipped) > 0 {
		s.rooms.Broadcast(group.ID, models.Event{
			Event: models.EventMessageStatus,
			Data: models.StatusUpdatePayload{
				GroupID:    group.ID,
				MessageIDs: flipped,
				Status:     models.StatusDelivered,
				UpdatedBy:  userID,
			},
		})
	}

	return models.MessagePage{
		Messages: visible,
		Page:     page,
		Limit:    limit,
		HasMore:  len(stored) == limit,
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func (s *MessageService) loadForMember(ctx context.Context, userID, messageID string) (models.Message, models.Group, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.Message{}, models.Group{}, s.storeError("load message", err)
	}
	group, err := s.loadGroup(ctx, msg.GroupID)
	if err != nil {
		return models.Message{}, models.Group{}, err
	}
	if !group.IsMember(userID) {
		return models.Message{}, models.Group{}, apperrors.Authorization("You are not a member of this group")
	}
	return msg, group, nil
}

func (s *MessageService) loadGroup(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return models.Group{}, apperrors.NotFound("Group not found")
		}
		return models.Group{}, apperrors.Internal("load group", err)
	}
	return group, nil
}

func (s *MessageService) displayName(ctx context.Context, userID string) string {
	if s.users == nil {
		return userID
	}
	name, err := s.users.DisplayName(ctx, userID)
	if err != nil || name == "" {
		if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
			log.Printf("display name lookup failed: user_id=%s err=%v", userID, err)
		}
		return userID
	}
	return name
}

func (s *MessageService) storeError(op string, err error) error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return apperrors.NotFound("Message not found")
	}
	return apperrors.Internal(op, err)
}

func (s *MessageService) emitAudit(ctx context.Context, level, text, userID string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, level, text, uuid.NewString(), &userID)
}
