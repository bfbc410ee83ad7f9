package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

const maxPresenceLookup = 100

// Verifier resolves the identity a connection claims in its join event.
type Verifier interface {
	Verify(ctx context.Context, req models.JoinRequest) (string, error)
}

// Gateway dispatches inbound events of each connection to the core services.
type Gateway struct {
	registry *Registry
	rooms    *Rooms
	typing   *Typing
	groups   *GroupService
	messages *MessageService
	verifier Verifier
	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, s *Session, raw json.RawMessage) (any, error)

// NewGateway wires a gateway over the given services.
func NewGateway(registry *Registry, rooms *Rooms, typing *Typing, groups *GroupService, messages *MessageService, verifier Verifier) *Gateway {
	g := &Gateway{
		registry: registry,
		rooms:    rooms,
		typing:   typing,
		groups:   groups,
		messages: messages,
		verifier: verifier,
	}
	g.handlers = map[string]handlerFunc{
		models.RequestCreateGroup:       handle(g.createGroup),
		models.RequestAddGroupMembers:   handle(g.addMembers),
		models.RequestRemoveGroupMember: handle(g.removeMember),
		models.RequestLeaveGroup:        handle(g.leaveGroup),
		models.RequestUpdateGroup:       handle(g.updateGroup),
		models.RequestDeleteGroup:       handle(g.deleteGroup),
		models.RequestSendText:          handle(g.sendText),
		models.RequestSendVoice:         handle(g.sendVoice),
		models.RequestSendMedia:         handle(g.sendMedia),
		models.RequestMarkRead:          handle(g.markRead),
		models.RequestDeleteMessage:     handle(g.deleteMessage),
		models.RequestGetMessages:       handle(g.listMessages),
		models.RequestJoinRoom:          handle(g.joinRoom),
		models.RequestLeaveRoom:         handle(g.leaveRoom),
		models.RequestOnlineStatus:      handle(g.onlineStatus),
	}
	return g
}

// Session is the per-connection state of the gateway. Handle must not be
// called concurrently for one session.
type Session struct {
	gw        *Gateway
	conn      Conn
	mu        sync.Mutex
	userID    string
	closeOnce sync.Once
}

// Open starts a session for conn. The identity is unknown until join.
func (g *Gateway) Open(conn Conn) *Session {
	return &Session{gw: g, conn: conn}
}

// UserID returns the bound identity, or "" before join.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Handle runs one inbound event and returns the acknowledgment to send back,
// or nil for events without one. close reports that the connection must be
// terminated, which only happens when join fails.
func (s *Session) Handle(ctx context.Context, in models.Inbound) (*models.Ack, bool) {
	ctx, span := otel.Tracer("chat-realtime/realtime").Start(ctx, "ws.event "+in.Event)
	defer span.End()
	span.SetAttributes(attribute.String("ws.event", in.Event), attribute.String("ws.conn_id", s.conn.ID()))
	observability.IncWSEvent("group", in.Event)

	if in.Event == models.RequestJoin {
		data, err := s.join(ctx, in.Data)
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
		}
		return s.ack(in, data, err), err != nil
	}

	userID := s.UserID()
	if userID == "" {
		return s.ack(in, nil, apperrors.Authentication("Join required")), false
	}
	span.SetAttributes(attribute.String("user.id", userID))

	if in.Event == models.RequestTyping {
		s.typing(in.Data)
		return nil, false
	}

	fn, ok := s.gw.handlers[in.Event]
	if !ok {
		return s.ack(in, nil, apperrors.Validation("Unknown event: "+in.Event)), false
	}
	data, err := fn(ctx, s, in.Data)
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return s.ack(in, data, err), false
}

// Close runs disconnect cleanup once: the connection leaves every room, the
// session is unbound and any typing markers of the identity are cleared.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.gw.rooms.LeaveAll(s.conn)
		userID := s.UserID()
		if userID == "" {
			return
		}
		if s.gw.registry.Unbind(ctx, userID, s.conn) {
			s.gw.typing.ClearForUser(userID, s.conn)
		}
	})
}

func (s *Session) join(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decode[models.JoinRequest](raw)
	if err != nil {
		return nil, err
	}
	if s.gw.verifier == nil {
		return nil, apperrors.Authentication("Authentication unavailable")
	}
	userID, err := s.gw.verifier.Verify(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAuthentication, "Authentication failed", err)
	}
	if !ValidIdentity(userID) {
		return nil, apperrors.Authentication("Invalid identity")
	}

	s.mu.Lock()
	current := s.userID
	if current == "" {
		s.userID = userID
	}
	s.mu.Unlock()
	if current != "" && current != userID {
		return nil, apperrors.Conflict("Connection already joined as another user")
	}

	if prev := s.gw.registry.Bind(ctx, userID, s.conn); prev != nil {
		_ = prev.Send(models.Event{Event: models.EventSessionReplaced, Data: models.SessionReplacedPayload{UserID: userID}})
		s.gw.rooms.LeaveAll(prev)
		_ = prev.Close()
	}

	groups, err := s.gw.groups.ResyncRooms(ctx, userID, s.conn)
	if err != nil {
		s.gw.registry.Unbind(ctx, userID, s.conn)
		if current == "" {
			s.mu.Lock()
			s.userID = ""
			s.mu.Unlock()
		}
		return nil, err
	}

	return map[string]any{"userId": userID, "groups": groups}, nil
}

// typing is fire-and-forget: malformed events and rooms the connection is
// not subscribed to are ignored.
func (s *Session) typing(raw json.RawMessage) {
	req, err := decode[models.TypingRequest](raw)
	if err != nil || !ValidIdentity(req.GroupID) {
		return
	}
	if !s.gw.rooms.Contains(req.GroupID, s.conn.ID()) {
		return
	}
	s.gw.typing.Set(req.GroupID, s.UserID(), s.conn, req.Typing)
}

func (s *Session) ack(in models.Inbound, data any, err error) *models.Ack {
	ack := &models.Ack{Event: models.EventAck, AckID: in.AckID, Request: in.Event, Success: err == nil}
	if err == nil {
		ack.Data = data
		return ack
	}

	appErr := apperrors.From(err)
	if appErr.Code == apperrors.CodeInternal {
		log.Printf("gateway event failed: event=%s user_id=%s conn_id=%s err=%v", in.Event, s.UserID(), s.conn.ID(), err)
	}
	ack.Code = string(appErr.Code)
	ack.Message = apperrors.PublicMessage(appErr)
	return ack
}

func decode[T any](raw json.RawMessage) (T, error) {
	var req T
	if len(raw) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, apperrors.Validation("Invalid payload")
	}
	return req, nil
}

func handle[T any](fn func(ctx context.Context, s *Session, req T) (any, error)) handlerFunc {
	return func(ctx context.Context, s *Session, raw json.RawMessage) (any, error) {
		req, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, s, req)
	}
}

func (g *Gateway) createGroup(ctx context.Context, s *Session, req models.CreateGroupRequest) (any, error) {
	return g.groups.Create(ctx, s.UserID(), req, s.conn)
}

func (g *Gateway) addMembers(ctx context.Context, s *Session, req models.AddMembersRequest) (any, error) {
	return g.groups.AddMembers(ctx, s.UserID(), req.GroupID, req.MemberIDs)
}

func (g *Gateway) removeMember(ctx context.Context, s *Session, req models.RemoveMemberRequest) (any, error) {
	return g.groups.RemoveMember(ctx, s.UserID(), req.GroupID, req.TargetID)
}

func (g *Gateway) leaveGroup(ctx context.Context, s *Session, req models.GroupRequest) (any, error) {
	userID := s.UserID()
	if _, err := g.groups.RemoveMember(ctx, userID, req.GroupID, userID); err != nil {
		return nil, err
	}
	g.rooms.Leave(s.conn, req.GroupID)
	return map[string]string{"groupId": req.GroupID}, nil
}

func (g *Gateway) updateGroup(ctx context.Context, s *Session, req models.UpdateGroupRequest) (any, error) {
	return g.groups.Update(ctx, s.UserID(), req)
}

func (g *Gateway) deleteGroup(ctx context.Context, s *Session, req models.GroupRequest) (any, error) {
	if err := g.groups.Delete(ctx, s.UserID(), req.GroupID); err != nil {
		return nil, err
	}
	return map[string]string{"groupId": req.GroupID}, nil
}

func (g *Gateway) sendText(ctx context.Context, s *Session, req models.SendTextRequest) (any, error) {
	return g.messages.SendText(ctx, s.UserID(), req)
}

func (g *Gateway) sendVoice(ctx context.Context, s *Session, req models.SendVoiceRequest) (any, error) {
	return g.messages.SendVoice(ctx, s.UserID(), req)
}

func (g *Gateway) sendMedia(ctx context.Context, s *Session, req models.SendMediaRequest) (any, error) {
	return g.messages.SendMedia(ctx, s.UserID(), req)
}

func (g *Gateway) markRead(ctx context.Context, s *Session, req models.MessageRequest) (any, error) {
	return g.messages.MarkRead(ctx, s.UserID(), req.MessageID)
}

func (g *Gateway) deleteMessage(ctx context.Context, s *Session, req models.DeleteMessageRequest) (any, error) {
	return g.messages.Delete(ctx, s.UserID(), req.MessageID, req.ForEveryone)
}

func (g *Gateway) listMessages(ctx context.Context, s *Session, req models.GetMessagesRequest) (any, error) {
	return g.messages.List(ctx, s.UserID(), req)
}

func (g *Gateway) joinRoom(ctx context.Context, s *Session, req models.GroupRequest) (any, error) {
	if _, err := g.groups.Get(ctx, s.UserID(), req.GroupID); err != nil {
		return nil, err
	}
	g.rooms.Join(s.conn, req.GroupID)
	return map[string]string{"groupId": req.GroupID}, nil
}

func (g *Gateway) leaveRoom(_ context.Context, s *Session, req models.GroupRequest) (any, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return nil, err
	}
	g.rooms.Leave(s.conn, req.GroupID)
	return map[string]string{"groupId": req.GroupID}, nil
}

func (g *Gateway) onlineStatus(_ context.Context, _ *Session, req models.OnlineStatusRequest) (any, error) {
	if len(req.UserIDs) > maxPresenceLookup {
		return nil, apperrors.Validation("Too many user ids")
	}
	ids, err := dedupeIdentities(req.UserIDs, "user id")
	if err != nil {
		return nil, err
	}
	presence := make([]models.Presence, 0, len(ids))
	for _, id := range ids {
		presence = append(presence, g.registry.Presence(id))
	}
	return presence, nil
}
