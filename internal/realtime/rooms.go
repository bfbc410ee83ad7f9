package realtime

import (
	"log"
	"sort"
	"sync"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Rooms maintains the set of subscribed connections per group.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	byConn map[string]map[string]struct{}
}

// NewRooms creates an empty router.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

var _ Publisher = (*Rooms)(nil)

// Join subscribes conn to groupID. It reports whether conn was newly added.
func (r *Rooms) Join(conn Conn, groupID string) bool {
	if conn == nil || groupID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(conn, groupID)
}

func (r *Rooms) joinLocked(conn Conn, groupID string) bool {
	id := conn.ID()
	room, ok := r.rooms[groupID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[groupID] = room
	}
	if _, exists := room[id]; exists {
		return false
	}
	room[id] = conn

	groups, ok := r.byConn[id]
	if !ok {
		groups = make(map[string]struct{})
		r.byConn[id] = groups
	}
	groups[groupID] = struct{}{}
	return true
}

// Leave unsubscribes conn from groupID. Leaving a room twice is a no-op.
func (r *Rooms) Leave(conn Conn, groupID string) bool {
	if conn == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(conn.ID(), groupID)
}

func (r *Rooms) leaveLocked(id, groupID string) bool {
	room, ok := r.rooms[groupID]
	if !ok {
		return false
	}
	if _, exists := room[id]; !exists {
		return false
	}
	delete(room, id)
	if len(room) == 0 {
		delete(r.rooms, groupID)
	}
	if groups, ok := r.byConn[id]; ok {
		delete(groups, groupID)
		if len(groups) == 0 {
			delete(r.byConn, id)
		}
	}
	return true
}

// LeaveAll removes conn from every room and returns the groups it left.
func (r *Rooms) LeaveAll(conn Conn) []string {
	if conn == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	left := make([]string, 0, len(r.byConn[id]))
	for groupID := range r.byConn[id] {
		left = append(left, groupID)
	}
	for _, groupID := range left {
		r.leaveLocked(id, groupID)
	}
	sort.Strings(left)
	return left
}

// Close evicts every connection from groupID and returns them.
func (r *Rooms) Close(groupID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[groupID]
	conns := make([]Conn, 0, len(room))
	for id, conn := range room {
		conns = append(conns, conn)
		if groups, ok := r.byConn[id]; ok {
			delete(groups, groupID)
			if len(groups) == 0 {
				delete(r.byConn, id)
			}
		}
	}
	delete(r.rooms, groupID)
	return conns
}

func (r *Rooms) Contains(groupID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[groupID][connID]
	return ok
}

// Conns snapshots the connections currently in groupID.
func (r *Rooms) Conns(groupID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[groupID]
	conns := make([]Conn, 0, len(room))
	for _, conn := range room {
		conns = append(conns, conn)
	}
	return conns
}

// Groups returns the rooms conn is subscribed to.
func (r *Rooms) Groups(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make([]string, 0, len(r.byConn[conn.ID()]))
	for groupID := range r.byConn[conn.ID()] {
		groups = append(groups, groupID)
	}
	sort.Strings(groups)
	return groups
}

// Broadcast delivers event to every connection in groupID except the excluded
// connection ids. Failed sends are skipped. It returns the number delivered.
func (r *Rooms) Broadcast(groupID string, event models.Event, exclude ...string) int {
	conns := r.Conns(groupID)
	observability.IncBroadcast(event.Event)

	delivered := 0
	for _, conn := range conns {
		if excluded(conn.ID(), exclude) {
			continue
		}
		if err := conn.Send(event); err != nil {
			log.Printf("room delivery skipped: group_id=%s conn_id=%s event=%s err=%v", groupID, conn.ID(), event.Event, err)
			observability.IncDeliveryFailure(event.Event)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Rooms) Publish(topic string, event models.Event, exclude ...string) int {
	return r.Broadcast(topic, event, exclude...)
}

func (r *Rooms) Subscribe(conn Conn, topic string) bool {
	return r.Join(conn, topic)
}

func (r *Rooms) Unsubscribe(conn Conn, topic string) bool {
	return r.Leave(conn, topic)
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e != "" && e == id {
			return true
		}
	}
	return false
}
