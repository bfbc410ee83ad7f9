package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

func TestCreateGroupNotifiesOnlineMembers(t *testing.T) {
	f := newFixture(t, Options{})
	aliceConn, _ := f.connect(t, alice)
	bobConn, _ := f.connect(t, bob)

	group, err := f.core.Groups.Create(context.Background(), alice, models.CreateGroupRequest{
		Name:      "Team",
		MemberIDs: []string{bob, alice, bob},
		MusicURL:  "https://cdn.example.com/theme.mp3",
	}, aliceConn)
	require.NoError(t, err)

	assert.Equal(t, alice, group.CreatedBy)
	assert.Equal(t, []string{alice}, group.Admins)
	assert.Equal(t, []string{alice, bob}, group.Members)

	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		assert.Equal(t, []string{models.EventGroupCreated, models.EventPlayGroupMusic}, conn.names())
		assert.True(t, f.core.Rooms.Contains(group.ID, conn.ID()))
	}

	stored, err := f.groups.FindByID(context.Background(), group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice, bob}, stored.Members)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.core.Groups.Create(ctx, alice, models.CreateGroupRequest{Name: " ab "}, nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.core.Groups.Create(ctx, alice, models.CreateGroupRequest{Name: "Team", PictureURL: "https://x.example.com/a.mp3"}, nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.core.Groups.Create(ctx, alice, models.CreateGroupRequest{Name: "Team", MemberIDs: []string{"bob"}}, nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	stranger := "99999999-9999-4999-8999-999999999999"
	_, err = f.core.Groups.Create(ctx, alice, models.CreateGroupRequest{Name: "Team", MemberIDs: []string{stranger}}, nil)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestAddMembers(t *testing.T) {
	f := newFixture(t, Options{AdminsCanAddMembers: true})
	ctx := context.Background()
	aliceConn, _ := f.connect(t, alice)
	carolConn, _ := f.connect(t, carol)
	group := f.createGroup(t, alice, bob)
	aliceConn.reset()

	result, err := f.core.Groups.AddMembers(ctx, alice, group.ID, []string{carol, bob, dave})
	require.NoError(t, err)
	assert.Equal(t, []string{carol, dave}, result.Added)
	assert.Equal(t, []string{alice, bob, carol, dave}, result.Group.Members)

	assert.Equal(t, []string{models.EventAddedToGroup}, carolConn.names(), "new members get only the direct notice")
	assert.Equal(t, []string{models.EventGroupMembersAdded}, aliceConn.names())
	assert.True(t, f.core.Rooms.Contains(group.ID, carolConn.ID()))

	again, err := f.core.Groups.AddMembers(ctx, alice, group.ID, []string{carol})
	require.NoError(t, err)
	assert.Empty(t, again.Added)
	assert.Len(t, again.Group.Members, 4)
}

func TestAddMembersAuthorization(t *testing.T) {
	f := newFixture(t, Options{AdminsCanAddMembers: true})
	ctx := context.Background()
	group := f.createGroup(t, alice, bob)

	_, err := f.core.Groups.AddMembers(ctx, bob, group.ID, []string{carol})
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))
	assert.Equal(t, "Only group admins can add members", apperrors.PublicMessage(err))

	_, err = f.core.Groups.AddMembers(ctx, alice, group.ID, nil)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = f.core.Groups.AddMembers(ctx, alice, groupA, []string{carol})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestAddMembersCreatorOnlyPolicy(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("FindByID", mock.Anything, groupA).Return(models.Group{
		ID: groupA, CreatedBy: alice, Admins: []string{alice, bob}, Members: []string{alice, bob},
	}, nil)
	svc := NewGroupService(groups, nil, nil, NewRegistry(nil), NewRooms(), nil, nil, GroupPolicy{AdminsCanAddMembers: false})

	_, err := svc.AddMembers(context.Background(), bob, groupA, []string{carol})
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))
	assert.Equal(t, "Only the group creator can add members", apperrors.PublicMessage(err))
	groups.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRemoveMemberCannotRemoveCreator(t *testing.T) {
	f := newFixture(t, Options{})
	group := f.createGroup(t, alice, bob)

	_, err := f.core.Groups.RemoveMember(context.Background(), bob, group.ID, alice)
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))
	assert.Equal(t, "Cannot remove group creator", apperrors.PublicMessage(err))
}

func TestRemoveMemberNotifiesTargetAndRoom(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	aliceConn, _ := f.connect(t, alice)
	bobConn, _ := f.connect(t, bob)
	group := f.createGroup(t, alice, bob)
	f.core.Typing.Set(group.ID, bob, bobConn, true)
	aliceConn.reset()
	bobConn.reset()

	updated, err := f.core.Groups.RemoveMember(ctx, alice, group.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, updated.Members)

	assert.Equal(t, []string{models.EventRemovedFromGroup}, bobConn.names())
	assert.False(t, f.core.Rooms.Contains(group.ID, bobConn.ID()))
	assert.Empty(t, f.core.Typing.Users(group.ID))
	assert.Equal(t, []string{models.EventUserTyping, models.EventGroupMemberRemoved}, aliceConn.names())

	_, err = f.core.Groups.RemoveMember(ctx, alice, group.ID, bob)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestRemoveMemberAdminRules(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("FindByID", mock.Anything, groupA).Return(models.Group{
		ID: groupA, CreatedBy: alice, Admins: []string{alice, bob, carol}, Members: []string{alice, bob, carol, dave},
	}, nil)
	groups.On("Save", mock.Anything, mock.AnythingOfType("models.Group")).Return(nil)
	svc := NewGroupService(groups, nil, nil, NewRegistry(nil), NewRooms(), nil, nil, GroupPolicy{})
	ctx := context.Background()

	_, err := svc.RemoveMember(ctx, bob, groupA, carol)
	assert.Equal(t, "Admins cannot remove other admins", apperrors.PublicMessage(err))

	_, err = svc.RemoveMember(ctx, dave, groupA, bob)
	assert.Equal(t, "Only group admins can remove members", apperrors.PublicMessage(err))

	updated, err := svc.RemoveMember(ctx, bob, groupA, dave)
	require.NoError(t, err)
	assert.NotContains(t, updated.Members, dave)

	updated, err = svc.RemoveMember(ctx, alice, groupA, carol)
	require.NoError(t, err)
	assert.NotContains(t, updated.Admins, carol)
	assert.NotContains(t, updated.Members, carol)
}

func TestLeaveGroupRules(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("FindByID", mock.Anything, groupA).Return(models.Group{
		ID: groupA, CreatedBy: dave, Admins: []string{bob}, Members: []string{alice, bob},
	}, nil)
	groups.On("FindByID", mock.Anything, groupB).Return(models.Group{
		ID: groupB, CreatedBy: alice, Admins: []string{alice, bob}, Members: []string{alice, bob, carol},
	}, nil)
	groups.On("Save", mock.Anything, mock.AnythingOfType("models.Group")).Return(nil)
	svc := NewGroupService(groups, nil, nil, NewRegistry(nil), NewRooms(), nil, nil, GroupPolicy{})
	ctx := context.Background()

	_, err := svc.RemoveMember(ctx, bob, groupA, bob)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	assert.Contains(t, apperrors.PublicMessage(err), "promote another admin")

	_, err = svc.RemoveMember(ctx, alice, groupB, alice)
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))

	updated, err := svc.RemoveMember(ctx, bob, groupB, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{alice}, updated.Admins)
	assert.Contains(t, updated.Members, alice, "the creator stays an admin member")

	updated, err = svc.RemoveMember(ctx, carol, groupB, carol)
	require.NoError(t, err)
	assert.NotContains(t, updated.Members, carol)
}

func TestUpdateGroup(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	bobConn, _ := f.connect(t, bob)
	group := f.createGroup(t, alice, bob)
	bobConn.reset()

	_, err := f.core.Groups.Update(ctx, alice, models.UpdateGroupRequest{GroupID: group.ID})
	assert.Equal(t, "No fields to update", apperrors.PublicMessage(err))

	name := "Renamed"
	_, err = f.core.Groups.Update(ctx, bob, models.UpdateGroupRequest{GroupID: group.ID, Name: &name})
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))

	picture := "https://cdn.example.com/p.png"
	updated, err := f.core.Groups.Update(ctx, alice, models.UpdateGroupRequest{GroupID: group.ID, Name: &name, PictureURL: &picture})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, picture, updated.PictureURL)

	event, ok := bobConn.last(models.EventGroupUpdated)
	require.True(t, ok)
	assert.Equal(t, "Renamed", event.Data.(models.GroupPayload).Group.Name)

	bad := "https://cdn.example.com/p.txt"
	_, err = f.core.Groups.Update(ctx, alice, models.UpdateGroupRequest{GroupID: group.ID, PictureURL: &bad})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestDeleteGroupCascades(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	bobConn, _ := f.connect(t, bob)
	group := f.createGroup(t, alice, bob)
	msg, err := f.core.Messages.SendText(ctx, alice, models.SendTextRequest{GroupID: group.ID, Content: "hi"})
	require.NoError(t, err)

	err = f.core.Groups.Delete(ctx, bob, group.ID)
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))

	require.NoError(t, f.core.Groups.Delete(ctx, alice, group.ID))
	assert.Equal(t, 1, bobConn.count(models.EventGroupDeleted))
	assert.Empty(t, f.core.Rooms.Conns(group.ID))

	_, err = f.groups.FindByID(ctx, group.ID)
	assert.ErrorIs(t, err, repositories.ErrGroupNotFound)
	_, err = f.messages.FindByID(ctx, msg.ID)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	err = f.core.Groups.Delete(ctx, alice, group.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestGetAndListGroups(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	group := f.createGroup(t, alice, bob)

	got, err := f.core.Groups.Get(ctx, bob, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.ID)

	_, err = f.core.Groups.Get(ctx, carol, group.ID)
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))

	list, err := f.core.Groups.ListForUser(ctx, carol)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGroupStoreFailureIsInternal(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("FindByMember", mock.Anything, alice).Return(nil, errors.New("connection reset"))
	svc := NewGroupService(groups, nil, nil, NewRegistry(nil), NewRooms(), nil, nil, GroupPolicy{})

	_, err := svc.ListForUser(context.Background(), alice)
	assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(err))
	assert.Equal(t, "Internal server error", apperrors.PublicMessage(err))
}
