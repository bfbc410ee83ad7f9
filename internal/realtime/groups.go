package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

// GroupPolicy holds the configurable authorization rules for group mutations.
type GroupPolicy struct {
	// AdminsCanAddMembers lets any admin add members, not only the creator.
	AdminsCanAddMembers bool
}

// GroupService validates and applies membership and role changes, then
// broadcasts the result. Mutations of one group are serialized.
type GroupService struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	registry *Registry
	rooms    *Rooms
	typing   *Typing
	audit    *telemetry.AuditEmitter
	policy   GroupPolicy
	locks    *keyedMutex
	now      func() time.Time
	newID    func() string
}

// NewGroupService constructs a GroupService.
func NewGroupService(groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository,
	registry *Registry, rooms *Rooms, typing *Typing, audit *telemetry.AuditEmitter, policy GroupPolicy) *GroupService {
	return &GroupService{
		groups:   groups,
		messages: messages,
		users:    users,
		registry: registry,
		rooms:    rooms,
		typing:   typing,
		audit:    audit,
		policy:   policy,
		locks:    newKeyedMutex(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create makes a new group owned by requester. origin, when set, is the
// requester's connection and joins the new room even if it is not the bound session.
func (s *GroupService) Create(ctx context.Context, requester string, req models.CreateGroupRequest, origin Conn) (models.Group, error) {
	name, err := validateGroupName(req.Name)
	if err != nil {
		return models.Group{}, err
	}
	musicURL, err := validateMediaURL(req.MusicURL, audioExtensions, "musicUrl")
	if err != nil {
		return models.Group{}, err
	}
	pictureURL, err := validateMediaURL(req.PictureURL, imageExtensions, "pictureUrl")
	if err != nil {
		return models.Group{}, err
	}
	candidates, err := dedupeIdentities(req.MemberIDs, "member id")
	if err != nil {
		return models.Group{}, err
	}

	members := []string{requester}
	for _, id := range candidates {
		if id != requester {
			members = append(members, id)
		}
	}
	if err := s.requireUsers(ctx, members[1:]); err != nil {
		return models.Group{}, err
	}

	now := s.now().UTC()
	group := models.Group{
		ID:         s.newID(),
		Name:       name,
		CreatedBy:  requester,
		Admins:     []string{requester},
		Members:    members,
		PictureURL: pictureURL,
		MusicURL:   musicURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	unlock := s.locks.Lock(group.ID)
	defer unlock()

	if err := s.groups.Create(ctx, group); err != nil {
		return models.Group{}, apperrors.Internal("create group", err)
	}

	if origin != nil {
		s.rooms.Join(origin, group.ID)
	}
	for _, memberID := range group.Members {
		if conn, ok := s.registry.Lookup(memberID); ok {
			s.rooms.Join(conn, group.ID)
		}
	}

	s.rooms.Broadcast(group.ID, models.Event{Event: models.EventGroupCreated, Data: models.GroupPayload{Group: group}})
	if group.MusicURL != "" {
		s.rooms.Broadcast(group.ID, models.Event{
			Event: models.EventPlayGroupMusic,
			Data:  models.PlayMusicPayload{GroupID: group.ID, MusicURL: group.MusicURL},
		})
	}
	s.emitAudit(ctx, "INFO", "Group created", requester)
	return group, nil
}

// AddMembers adds memberIDs to the group. Candidates already present are
// skipped; if none remain the call succeeds with nothing added.
func (s *GroupService) AddMembers(ctx context.Context, requester, groupID string, memberIDs []string) (models.AddMembersResult, error) {
	if err := requireID(groupID, "groupId"); err != nil {
		return models.AddMembersResult{}, err
	}
	if len(memberIDs) == 0 {
		return models.AddMembersResult{}, apperrors.Validation("memberIds must not be empty")
	}
	candidates, err := dedupeIdentities(memberIDs, "member id")
	if err != nil {
		return models.AddMembersResult{}, err
	}

	unlock := s.locks.Lock(groupID)
	defer unlock()

	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.AddMembersResult{}, err
	}
	if !s.canAddMembers(group, requester) {
		if s.policy.AdminsCanAddMembers {
			return models.AddMembersResult{}, apperrors.Authorization("Only group admins can add members")
		}
		return models.AddMembersResult{}, apperrors.Authorization("Only the group creator can add members")
	}

	added := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !group.IsMember(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return models.AddMembersResult{Group: group, Added: added}, nil
	}
	if err := s.requireUsers(ctx, added); err != nil {
		return models.AddMembersResult{}, err
	}

	updated := group.Clone()
	updated.Members = append(updated.Members, added...)
	updated.UpdatedAt = s.now().UTC()
	if err := s.groups.Save(ctx, updated); err != nil {
		return models.AddMembersResult{}, s.storeError("add group members", err)
	}

	newConns := make([]string, 0, len(added))
	for _, id := range added {
		conn, ok := s.registry.Lookup(id)
		if !ok {
			continue
		}
		s.rooms.Join(conn, groupID)
		newConns = append(newConns, conn.ID())
		_ = conn.Send(models.Event{Event: models.EventAddedToGroup, Data: models.GroupPayload{Group: updated}})
	}
	s.rooms.Broadcast(groupID, models.Event{
		Event: models.EventGroupMembersAdded,
		Data:  models.MembersAddedPayload{GroupID: groupID, AddedBy: requester, Members: added, Group: updated},
	}, newConns...)

	s.emitAudit(ctx, "INFO", fmt.Sprintf("Group members added: %d", len(added)), requester)
	return models.AddMembersResult{Group: updated, Added: added}, nil
}

// RemoveMember removes targetID from the group. When requester equals
// targetID this is a leave.
func (s *GroupService) RemoveMember(ctx context.Context, requester, groupID, targetID string) (models.Group, error) {
	if err := requireID(groupID, "groupId"); err != nil {
		return models.Group{}, err
	}
	if err := requireID(targetID, "targetId"); err != nil {
		return models.Group{}, err
	}

	unlock := s.locks.Lock(groupID)
	defer unlock()

	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}

	leaving := requester == targetID
	if leaving {
		if err := checkLeave(group, requester); err != nil {
			return models.Group{}, err
		}
	} else if err := checkRemoval(group, requester, targetID); err != nil {
		return models.Group{}, err
	}

	updated := group.Clone()
	updated.Members = models.Without(updated.Members, targetID)
	updated.Admins = models.Without(updated.Admins, targetID)
	updated.UpdatedAt = s.now().UTC()
	if err := s.groups.Save(ctx, updated); err != nil {
		return models.Group{}, s.storeError("remove group member", err)
	}

	payload := models.MemberRemovedPayload{GroupID: groupID, UserID: targetID, RemovedBy: requester, Left: leaving}
	if conn, ok := s.registry.Lookup(targetID); ok {
		s.rooms.Leave(conn, groupID)
		_ = conn.Send(models.Event{Event: models.EventRemovedFromGroup, Data: payload})
	}
	if s.typing != nil {
		s.typing.ClearMember(groupID, targetID)
	}
	s.rooms.Broadcast(groupID, models.Event{Event: models.EventGroupMemberRemoved, Data: payload})

	if leaving {
		s.emitAudit(ctx, "INFO", "Group left", requester)
	} else {
		s.emitAudit(ctx, "INFO", "Group member removed", requester)
	}
	return updated, nil
}

func checkLeave(group models.Group, userID string) error {
	if group.IsCreator(userID) {
		return apperrors.Authorization("Group creator cannot leave the group; delete it instead")
	}
	if !group.IsMember(userID) {
		return apperrors.NotFound("You are not a member of this group")
	}
	if group.IsAdmin(userID) {
		remaining := 0
		for _, admin := range group.Admins {
			if admin != userID && group.IsMember(admin) {
				remaining++
			}
		}
		if remaining == 0 {
			return apperrors.Conflict("You are the only admin; promote another admin first")
		}
	}
	return nil
}

func checkRemoval(group models.Group, requester, targetID string) error {
	if group.IsCreator(targetID) {
		return apperrors.Authorization("Cannot remove group creator")
	}
	requesterIsCreator := group.IsCreator(requester)
	if !requesterIsCreator && !group.IsAdmin(requester) {
		return apperrors.Authorization("Only group admins can remove members")
	}
	if !requesterIsCreator && group.IsAdmin(targetID) {
		return apperrors.Authorization("Admins cannot remove other admins")
	}
	if !group.IsMember(targetID) {
		return apperrors.NotFound("User is not a member of this group")
	}
	return nil
}

// Update changes the name, picture or music of a group.
func (s *GroupService) Update(ctx context.Context, requester string, req models.UpdateGroupRequest) (models.Group, error) {
	if err := requireID(req.GroupID, "groupId"); err != nil {
		return models.Group{}, err
	}
	if req.Name == nil && req.PictureURL == nil && req.MusicURL == nil {
		return models.Group{}, apperrors.Validation("No fields to update")
	}

	unlock := s.locks.Lock(req.GroupID)
	defer unlock()

	group, err := s.load(ctx, req.GroupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.IsCreator(requester) && !group.IsAdmin(requester) {
		return models.Group{}, apperrors.Authorization("Only group admins can update the group")
	}

	updated := group.Clone()
	if req.Name != nil {
		if updated.Name, err = validateGroupName(*req.Name); err != nil {
			return models.Group{}, err
		}
	}
	if req.PictureURL != nil {
		if updated.PictureURL, err = validateMediaURL(*req.PictureURL, imageExtensions, "pictureUrl"); err != nil {
			return models.Group{}, err
		}
	}
	if req.MusicURL != nil {
		if updated.MusicURL, err = validateMediaURL(*req.MusicURL, audioExtensions, "musicUrl"); err != nil {
			return models.Group{}, err
		}
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.groups.Save(ctx, updated); err != nil {
		return models.Group{}, s.storeError("update group", err)
	}
	s.rooms.Broadcast(updated.ID, models.Event{Event: models.EventGroupUpdated, Data: models.GroupPayload{Group: updated}})
	s.emitAudit(ctx, "INFO", "Group updated", requester)
	return updated, nil
}

// Delete removes a group and all of its messages. Creator only.
func (s *GroupService) Delete(ctx context.Context, requester, groupID string) error {
	if err := requireID(groupID, "groupId"); err != nil {
		return err
	}

	unlock := s.locks.Lock(groupID)
	defer unlock()

	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsCreator(requester) {
		return apperrors.Authorization("Only the group creator can delete the group")
	}

	if err := s.messages.DeleteByGroup(ctx, groupID); err != nil {
		return apperrors.Internal("delete group messages", err)
	}
	if err := s.groups.DeleteByID(ctx, groupID); err != nil {
		return s.storeError("delete group", err)
	}

	s.rooms.Broadcast(groupID, models.Event{
		Event: models.EventGroupDeleted,
		Data:  models.GroupDeletedPayload{GroupID: groupID, DeletedBy: requester},
	})
	s.rooms.Close(groupID)
	if s.typing != nil {
		s.typing.ClearGroup(groupID)
	}
	s.emitAudit(ctx, "INFO", "Group deleted", requester)
	return nil
}

// Get returns a group the requester belongs to.
func (s *GroupService) Get(ctx context.Context, requester, groupID string) (models.Group, error) {
	if err := requireID(groupID, "groupId"); err != nil {
		return models.Group{}, err
	}
	group, err := s.load(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.IsMember(requester) {
		return models.Group{}, apperrors.Authorization("You are not a member of this group")
	}
	return group, nil
}

// ListForUser returns every group userID belongs to.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	groups, err := s.groups.FindByMember(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("list groups", err)
	}
	if groups == nil {
		groups = []models.Group{}
	}
	return groups, nil
}

// ResyncRooms subscribes conn to every group userID belongs to and drops
// rooms of groups it no longer belongs to. Each group is re-read under its
// lock, so a membership change that raced the listing is never undone.
func (s *GroupService) ResyncRooms(ctx context.Context, userID string, conn Conn) ([]models.Group, error) {
	listed, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(listed))
	seen := make(map[string]struct{}, len(listed))
	for _, group := range listed {
		ids = append(ids, group.ID)
		seen[group.ID] = struct{}{}
	}
	for _, id := range s.rooms.Groups(conn) {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}

	groups := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		group, member, err := s.resyncRoom(ctx, userID, conn, id)
		if err != nil {
			return nil, err
		}
		if member {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

func (s *GroupService) resyncRoom(ctx context.Context, userID string, conn Conn, groupID string) (models.Group, bool, error) {
	unlock := s.locks.Lock(groupID)
	defer unlock()

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil && !errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, false, apperrors.Internal("load group", err)
	}
	if err != nil || !group.IsMember(userID) {
		s.rooms.Leave(conn, groupID)
		return models.Group{}, false, nil
	}
	s.rooms.Join(conn, groupID)
	return group, true, nil
}

func (s *GroupService) canAddMembers(group models.Group, requester string) bool {
	if group.IsCreator(requester) {
		return true
	}
	return s.policy.AdminsCanAddMembers && group.IsAdmin(requester)
}

func (s *GroupService) load(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return models.Group{}, s.storeError("load group", err)
	}
	return group, nil
}

func (s *GroupService) requireUsers(ctx context.Context, ids []string) error {
	if s.users == nil || len(ids) == 0 {
		return nil
	}
	missing, err := s.users.FindMissing(ctx, ids)
	if err != nil {
		return apperrors.Internal("check users", err)
	}
	if len(missing) > 0 {
		return apperrors.NotFound("User not found: " + strings.Join(missing, ", "))
	}
	return nil
}

func (s *GroupService) storeError(op string, err error) error {
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return apperrors.NotFound("Group not found")
	}
	return apperrors.Internal(op, err)
}

func (s *GroupService) emitAudit(ctx context.Context, level, text, userID string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, level, text, uuid.NewString(), &userID)
}
