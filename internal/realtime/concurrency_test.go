package realtime

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

// listingGate holds FindByMember for one identity after the rows are read,
// until release is closed.
type listingGate struct {
	repositories.GroupRepository
	userID  string
	once    sync.Once
	listed  chan struct{}
	release chan struct{}
}

func newListingGate(userID string) *listingGate {
	return &listingGate{userID: userID, listed: make(chan struct{}), release: make(chan struct{})}
}

func (g *listingGate) FindByMember(ctx context.Context, userID string) ([]models.Group, error) {
	groups, err := g.GroupRepository.FindByMember(ctx, userID)
	if userID == g.userID {
		g.once.Do(func() { close(g.listed) })
		<-g.release
	}
	return groups, err
}

// insertGate holds message inserts until release is closed.
type insertGate struct {
	repositories.MessageRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *insertGate) Create(ctx context.Context, msg models.Message) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.MessageRepository.Create(ctx, msg)
}

// joinAsync starts a join for userID and returns the channel its ack lands on.
func joinAsync(t *testing.T, f *fixture, userID string) (*fakeConn, <-chan *models.Ack) {
	t.Helper()
	conn := newFakeConn("conn-" + userID)
	session := f.core.Gateway.Open(conn)
	join := inbound(t, models.RequestJoin, models.JoinRequest{UserID: userID})

	acks := make(chan *models.Ack, 1)
	go func() {
		ack, _ := session.Handle(context.Background(), join)
		acks <- ack
	}()
	return conn, acks
}

func TestJoinKeepsRoomOfGroupCreatedWhileListing(t *testing.T) {
	gate := newListingGate(bob)
	f := newFixtureWith(t, Options{}, func(d *Deps) {
		gate.GroupRepository = d.Groups
		d.Groups = gate
	})
	ctx := context.Background()

	conn, acks := joinAsync(t, f, bob)
	<-gate.listed

	group := f.createGroup(t, alice, bob)
	require.True(t, f.core.Rooms.Contains(group.ID, conn.ID()))

	close(gate.release)
	ack := <-acks
	require.True(t, ack.Success, ack.Message)
	assert.True(t, f.core.Rooms.Contains(group.ID, conn.ID()), "the room joined by the concurrent create survives the join")

	_, err := f.core.Messages.SendText(ctx, alice, models.SendTextRequest{GroupID: group.ID, Content: "welcome"})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.count(models.EventNewTextMessage))
}

func TestJoinDropsRoomOfGroupLeftWhileListing(t *testing.T) {
	gate := newListingGate(bob)
	f := newFixtureWith(t, Options{}, func(d *Deps) {
		gate.GroupRepository = d.Groups
		d.Groups = gate
	})
	ctx := context.Background()
	group := f.createGroup(t, alice, bob)

	conn, acks := joinAsync(t, f, bob)
	<-gate.listed

	_, err := f.core.Groups.RemoveMember(ctx, alice, group.ID, bob)
	require.NoError(t, err)

	close(gate.release)
	ack := <-acks
	require.True(t, ack.Success, ack.Message)
	assert.False(t, f.core.Rooms.Contains(group.ID, conn.ID()), "a removed member is not resubscribed")
	assert.Equal(t, 1, conn.count(models.EventRemovedFromGroup))

	data, ok := ack.Data.(map[string]any)
	require.True(t, ok)
	assert.Empty(t, data["groups"])
}

func TestSendIsSerializedWithGroupDeletion(t *testing.T) {
	gate := &insertGate{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, Options{}, func(d *Deps) {
		gate.MessageRepository = d.Messages
		d.Messages = gate
	})
	ctx := context.Background()
	group := f.createGroup(t, alice, bob)

	sent := make(chan error, 1)
	go func() {
		_, err := f.core.Messages.SendText(ctx, bob, models.SendTextRequest{GroupID: group.ID, Content: "last words"})
		sent <- err
	}()
	<-gate.entered

	deleted := make(chan error, 1)
	go func() { deleted <- f.core.Groups.Delete(ctx, alice, group.ID) }()
	assert.Never(t, func() bool { return len(deleted) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"delete waits for the in-flight send")

	close(gate.release)
	require.NoError(t, <-sent)
	require.NoError(t, <-deleted)

	left, err := f.messages.FindByGroup(ctx, group.ID, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, left, "deleting the group cascades to the message sent just before")

	_, err = f.core.Messages.SendText(ctx, bob, models.SendTextRequest{GroupID: group.ID, Content: "too late"})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestConcurrentAddMembersAddsOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	bobConn, _ := f.connect(t, bob)
	group := f.createGroup(t, alice)

	const callers = 8
	var (
		wg    sync.WaitGroup
		added atomic.Int32
	)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.core.Groups.AddMembers(ctx, alice, group.ID, []string{bob, carol})
			if err != nil {
				errs <- err
				return
			}
			if len(res.Added) > 0 {
				added.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), added.Load())
	assert.Equal(t, 1, bobConn.count(models.EventAddedToGroup))

	stored, err := f.groups.FindByID(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice, bob, carol}, stored.Members)
}

func TestReadIsNeverFollowedByDelivered(t *testing.T) {
	f := newFixture(t, Options{DeliveryDelay: time.Millisecond})
	ctx := context.Background()
	aliceConn, _ := f.connect(t, alice)
	group := f.createGroup(t, alice, bob)

	const rounds = 20
	ids := make([]string, 0, rounds)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		msg, err := f.core.Messages.SendText(ctx, alice, models.SendTextRequest{GroupID: group.ID, Content: "ping"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.core.Messages.MarkRead(ctx, bob, id)
			assert.NoError(t, err)
		}(msg.ID)
	}
	wg.Wait()

	assert.Never(t, func() bool {
		for _, id := range ids {
			stored, err := f.messages.FindByID(ctx, id)
			if err != nil || stored.Status != models.StatusRead {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 10*time.Millisecond)

	updates := statusUpdates(aliceConn)
	for _, id := range ids {
		var last models.MessageStatus
		for _, update := range updates {
			if slices.Contains(update.MessageIDs, id) {
				last = update.Status
			}
		}
		assert.Equal(t, models.StatusRead, last, "last status update of %s", id)
	}
}
