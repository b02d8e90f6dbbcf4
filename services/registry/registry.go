// Package registry tracks each authenticated user's live connection. It is
// the single owner of the username→connection table; every push the server
// sends to a player goes through it.
package registry

import (
	"sort"
	"sync"
	"time"

	redis_models "Renju/models/redis"
	"Renju/protocol"
)

// Pusher is one live client connection able to receive server pushes.
type Pusher interface {
	Push(p protocol.Push) error
}

// PresenceSink mirrors online status into an external store (Redis in
// production). A nil sink disables mirroring.
type PresenceSink interface {
	SetPresence(p *redis_models.PlayerPresence) error
	DeletePresence(username string) error
}

// Registry is the connection table. All mutation happens under one mutex.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Pusher
	presence PresenceSink
}

func New(presence PresenceSink) *Registry {
	return &Registry{
		conns:    make(map[string]Pusher),
		presence: presence,
	}
}

// Bind attaches a connection to a username. A second concurrent login of
// the same account is rejected.
func (r *Registry) Bind(username string, conn Pusher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[username]; ok {
		return protocol.NewError(protocol.CodeAlreadyLoggedIn, "account already logged in")
	}
	r.conns[username] = conn
	r.mirror(username, redis_models.StatusOnline)
	return nil
}

// Unbind detaches a username's connection. Detaching a connection that was
// already replaced or removed is a no-op.
func (r *Registry) Unbind(username string, conn Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[username]; ok && (conn == nil || cur == conn) {
		delete(r.conns, username)
		if r.presence != nil {
			_ = r.presence.DeletePresence(username)
		}
	}
}

// Push delivers a frame to a user's live connection.
func (r *Registry) Push(username string, p protocol.Push) error {
	r.mu.RLock()
	conn, ok := r.conns[username]
	r.mu.RUnlock()
	if !ok {
		return protocol.NewError(protocol.CodeUnknownUser, "user is offline")
	}
	return conn.Push(p)
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[username]
	return ok
}

// Online returns all connected usernames, sorted for deterministic output.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.conns))
	for u := range r.conns {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Count returns the number of connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SetStatus updates a connected user's mirrored presence status.
func (r *Registry) SetStatus(username string, status redis_models.PlayerStatus) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.conns[username]; ok {
		r.mirror(username, status)
	}
}

func (r *Registry) mirror(username string, status redis_models.PlayerStatus) {
	if r.presence == nil {
		return
	}
	_ = r.presence.SetPresence(&redis_models.PlayerPresence{
		Username: username,
		Status:   status,
		LastSeen: time.Now().Unix(),
	})
}
