package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

func typingPayloads(c *fakeConn) []models.TypingPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.TypingPayload
	for _, e := range c.events {
		if e.Event == models.EventUserTyping {
			out = append(out, e.Data.(models.TypingPayload))
		}
	}
	return out
}

func TestTypingBroadcastsTransitionsOnly(t *testing.T) {
	rooms := NewRooms()
	typist := newFakeConn("c1")
	watcher := newFakeConn("c2")
	rooms.Join(typist, groupA)
	rooms.Join(watcher, groupA)
	tracker := NewTyping(rooms)

	assert.True(t, tracker.Set(groupA, alice, typist, true))
	assert.False(t, tracker.Set(groupA, alice, typist, true))
	assert.Equal(t, []string{alice}, tracker.Users(groupA))

	assert.True(t, tracker.Set(groupA, alice, typist, false))
	assert.False(t, tracker.Set(groupA, alice, typist, false))
	assert.Empty(t, tracker.Users(groupA))
	assert.Equal(t, 0, tracker.Groups(), "groups without typists are dropped")

	payloads := typingPayloads(watcher)
	require.Len(t, payloads, 2)
	assert.True(t, payloads[0].Typing)
	assert.False(t, payloads[1].Typing)
	assert.Equal(t, alice, payloads[0].UserID)
	assert.Empty(t, typingPayloads(typist), "the typist does not receive its own indicator")
}

func TestTypingClearForUser(t *testing.T) {
	rooms := NewRooms()
	watcher := newFakeConn("c2")
	rooms.Join(watcher, groupA)
	rooms.Join(watcher, groupB)
	tracker := NewTyping(rooms)

	tracker.Set(groupA, alice, nil, true)
	tracker.Set(groupB, alice, nil, true)
	tracker.Set(groupB, bob, nil, true)
	watcher.reset()

	assert.Equal(t, []string{groupA, groupB}, tracker.ClearForUser(alice, nil))
	assert.Empty(t, tracker.Users(groupA))
	assert.Equal(t, []string{bob}, tracker.Users(groupB))

	payloads := typingPayloads(watcher)
	require.Len(t, payloads, 2)
	for _, p := range payloads {
		assert.Equal(t, alice, p.UserID)
		assert.False(t, p.Typing)
	}
	assert.Empty(t, tracker.ClearForUser(alice, nil))
}

func TestTypingClearGroupIsSilent(t *testing.T) {
	rooms := NewRooms()
	watcher := newFakeConn("c2")
	rooms.Join(watcher, groupA)
	tracker := NewTyping(rooms)
	tracker.Set(groupA, alice, nil, true)
	watcher.reset()

	tracker.ClearGroup(groupA)
	assert.Empty(t, tracker.Users(groupA))
	assert.Empty(t, watcher.names())
}
