package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/db"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

const (
	alice = "11111111-1111-4111-8111-111111111111"
	bob   = "22222222-2222-4222-8222-222222222222"
	carol = "33333333-3333-4333-8333-333333333333"
	dave  = "44444444-4444-4444-8444-444444444444"
)

var (
	errSendFailed = errors.New("send failed")
	connSeq       atomic.Int64
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	events   []models.Event
	failSend bool
	closed   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed {
		return errSendFailed
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.Event)
	}
	return names
}

func (c *fakeConn) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Event == name {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(name string) (models.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Event == name {
			return c.events[i], true
		}
	}
	return models.Event{}, false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// trustVerifier accepts the userId a join claims.
type trustVerifier struct{}

func (trustVerifier) Verify(_ context.Context, req models.JoinRequest) (string, error) {
	if req.UserID == "" {
		return "", errors.New("missing user")
	}
	return req.UserID, nil
}

type fixture struct {
	core     *Core
	db       *sqlx.DB
	messages *repositories.MessageRepo
	groups   *repositories.GroupRepo
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureWith(t, opts, nil)
}

// newFixtureWith lets wrap replace the collaborators the core is built on.
// The fixture's own repositories stay unwrapped for assertions.
func newFixtureWith(t *testing.T, opts Options, wrap func(*Deps)) *fixture {
	t.Helper()
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	for _, u := range []struct{ id, name string }{{alice, "Alice"}, {bob, "Bob"}, {carol, "Carol"}, {dave, "Dave"}} {
		_, err := database.Exec(`INSERT INTO users (id, display_name) VALUES (?, ?)`, u.id, u.name)
		require.NoError(t, err)
	}

	if opts.DeliveryDelay == 0 {
		opts.DeliveryDelay = time.Hour
	}
	groups := repositories.NewGroupRepo(database)
	messages := repositories.NewMessageRepo(database)
	deps := Deps{
		Groups:   groups,
		Messages: messages,
		Users:    repositories.NewUserRepo(database),
		Verifier: trustVerifier{},
	}
	if wrap != nil {
		wrap(&deps)
	}
	core := NewCore(deps, opts)
	t.Cleanup(core.Shutdown)

	return &fixture{core: core, db: database, messages: messages, groups: groups}
}

// connect opens a gateway session for userID and joins it.
func (f *fixture) connect(t *testing.T, userID string) (*fakeConn, *Session) {
	t.Helper()
	conn := newFakeConn(fmt.Sprintf("conn-%d", connSeq.Add(1)))
	session := f.core.Gateway.Open(conn)
	ack, closeConn := session.Handle(context.Background(), inbound(t, models.RequestJoin, models.JoinRequest{UserID: userID}))
	require.NotNil(t, ack)
	require.True(t, ack.Success, ack.Message)
	require.False(t, closeConn)
	return conn, session
}

func (f *fixture) createGroup(t *testing.T, creator string, members ...string) models.Group {
	t.Helper()
	group, err := f.core.Groups.Create(context.Background(), creator, models.CreateGroupRequest{Name: "Team", MemberIDs: members}, nil)
	require.NoError(t, err)
	return group
}

func inbound(t *testing.T, event string, data any) models.Inbound {
	t.Helper()
	in := models.Inbound{Event: event, AckID: "1"}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		in.Data = raw
	}
	return in
}
