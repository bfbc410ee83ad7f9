package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
)

// Binding ties an identity to its live connection.
type Binding struct {
	UserID   string
	Conn     Conn
	JoinedAt time.Time
}

// Registry maps each identity to at most one live connection. Transitions of
// one identity are serialized with their presence write, so the stored online
// flag always matches the last transition.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Binding
	users    repositories.UserRepository
	userLock *keyedMutex
	now      func() time.Time
}

// NewRegistry creates an empty registry. users may be nil when presence is not persisted.
func NewRegistry(users repositories.UserRepository) *Registry {
	return &Registry{
		sessions: make(map[string]Binding),
		users:    users,
		userLock: newKeyedMutex(),
		now:      time.Now,
	}
}

// Bind makes conn the session for userID and returns the connection it
// superseded, if any. The caller decides whether to close it.
func (r *Registry) Bind(ctx context.Context, userID string, conn Conn) Conn {
	unlock := r.userLock.Lock(userID)
	defer unlock()

	r.mu.Lock()
	prev, existed := r.sessions[userID]
	r.sessions[userID] = Binding{UserID: userID, Conn: conn, JoinedAt: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetOnlineUsers(count)
	r.setOnline(ctx, userID, true)

	if existed && prev.Conn != nil && prev.Conn.ID() != conn.ID() {
		return prev.Conn
	}
	return nil
}

// Unbind removes the session for userID. When conn is non-nil the session is
// only removed if it still belongs to conn, so a superseded connection cannot
// unbind its replacement. It reports whether a session was removed.
func (r *Registry) Unbind(ctx context.Context, userID string, conn Conn) bool {
	unlock := r.userLock.Lock(userID)
	defer unlock()

	r.mu.Lock()
	current, ok := r.sessions[userID]
	if !ok || (conn != nil && current.Conn.ID() != conn.ID()) {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, userID)
	count := len(r.sessions)
	r.mu.Unlock()

	observability.SetOnlineUsers(count)
	r.setOnline(ctx, userID, false)
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// Lookup returns the live connection of userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return session.Conn, true
}

func (r *Registry) Binding(userID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Presence reports the online fact for userID.
func (r *Registry) Presence(userID string) models.Presence {
	session, ok := r.Binding(userID)
	if !ok {
		return models.Presence{UserID: userID}
	}
	joinedAt := session.JoinedAt
	return models.Presence{UserID: userID, Online: true, JoinedAt: &joinedAt}
}

func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) setOnline(ctx context.Context, userID string, online bool) {
	if r.users == nil {
		return
	}
	if err := r.users.SetOnline(ctx, userID, online); err != nil {
		log.Printf("presence update failed: user_id=%s online=%t err=%v", userID, online, err)
	}
}
