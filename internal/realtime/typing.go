package realtime

import (
	"sort"
	"sync"

	"chat-realtime/internal/models"
)

// Typing tracks which identities are composing a message in each group.
// A group key exists only while its set is non-empty.
type Typing struct {
	mu     sync.Mutex
	groups map[string]map[string]struct{}
	pub    Publisher
}

func NewTyping(pub Publisher) *Typing {
	return &Typing{
		groups: make(map[string]map[string]struct{}),
		pub:    pub,
	}
}

// Set records a typing transition and broadcasts it to the room, excluding
// origin. Repeating the current state is a no-op and reports false.
func (t *Typing) Set(groupID, userID string, origin Conn, typing bool) bool {
	t.mu.Lock()
	set := t.groups[groupID]
	_, current := set[userID]
	if current == typing {
		t.mu.Unlock()
		return false
	}
	if typing {
		if set == nil {
			set = make(map[string]struct{})
			t.groups[groupID] = set
		}
		set[userID] = struct{}{}
	} else {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.groups, groupID)
		}
	}
	t.mu.Unlock()

	t.publish(groupID, userID, origin, typing)
	return true
}

// ClearForUser removes userID from every group it is typing in and
// broadcasts typing:false for each. It returns the affected groups.
func (t *Typing) ClearForUser(userID string, origin Conn) []string {
	t.mu.Lock()
	var cleared []string
	for groupID, set := range t.groups {
		if _, ok := set[userID]; !ok {
			continue
		}
		delete(set, userID)
		if len(set) == 0 {
			delete(t.groups, groupID)
		}
		cleared = append(cleared, groupID)
	}
	t.mu.Unlock()

	sort.Strings(cleared)
	for _, groupID := range cleared {
		t.publish(groupID, userID, origin, false)
	}
	return cleared
}

// ClearMember stops userID typing in groupID, e.g. after removal from the group.
func (t *Typing) ClearMember(groupID, userID string) bool {
	return t.Set(groupID, userID, nil, false)
}

// ClearGroup drops all typing state for a deleted group without broadcasting.
func (t *Typing) ClearGroup(groupID string) {
	t.mu.Lock()
	delete(t.groups, groupID)
	t.mu.Unlock()
}

// Users returns the identities typing in groupID, sorted.
func (t *Typing) Users(groupID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]string, 0, len(t.groups[groupID]))
	for userID := range t.groups[groupID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Groups reports how many groups currently have someone typing.
func (t *Typing) Groups() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.groups)
}

func (t *Typing) publish(groupID, userID string, origin Conn, typing bool) {
	if t.pub == nil {
		return
	}
	t.pub.Publish(groupID, models.Event{
		Event: models.EventUserTyping,
		Data:  models.TypingPayload{UserID: userID, GroupID: groupID, Typing: typing},
	}, connID(origin))
}
