package chathub

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrAlreadyIdentified = errors.New("connection already identified")
	ErrConnNotFound      = errors.New("connection not found")
	ErrSendBufferFull    = errors.New("send buffer full")
)

type connection struct {
	client    Client
	send      chan<- []byte
	principal uint // authenticated user of the transport, 0 if none

	userID     uint
	identified bool
	counted    bool // the presence tracker has counted this connection
	rooms      map[uint]struct{}
}

// Departure describes a connection that was just removed.
type Departure struct {
	UserID     uint
	Identified bool
	// Counted reports whether the presence tracker had counted the connection.
	Counted bool
	// WasLast reports whether it was the user's last registered connection.
	WasLast bool
}

// Registry maps live connections to their user and joined rooms, with
// indices for addressing by user and by room.
//
// Send and Unregister are mutually excluded: Send runs under the read lock
// and Unregister closes the client under the write lock, so a frame is never
// enqueued on a closed channel.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	byUser map[uint]map[string]struct{}
	byRoom map[uint]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*connection),
		byUser: make(map[uint]map[string]struct{}),
		byRoom: make(map[uint]map[string]struct{}),
	}
}

// Register adds a connection with no user and no rooms. principal is the
// user the transport authenticated, or 0.
func (r *Registry) Register(client Client, principal uint) error {
	id := client.GetConnID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return ErrAlreadyRegistered
	}
	r.conns[id] = &connection{
		client:    client,
		send:      client.GetSendChannel(),
		principal: principal,
		rooms:     make(map[uint]struct{}),
	}
	return nil
}

// Identify binds a connection to a user. A connection is identified at most once.
func (r *Registry) Identify(connID string, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	if c.identified {
		return ErrAlreadyIdentified
	}
	c.userID = userID
	c.identified = true
	addIndex(r.byUser, userID, connID)
	return nil
}

// MarkCounted records that the presence tracker counted the connection.
// It returns false when the connection is already gone, in which case the
// caller owns undoing the count.
func (r *Registry) MarkCounted(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	c.counted = true
	return true
}

// Principal returns the authenticated user of the transport, 0 if none.
func (r *Registry) Principal(connID string) (uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return 0, ErrConnNotFound
	}
	return c.principal, nil
}

// JoinRoom adds the connection to a room. Joining twice is a no-op.
func (r *Registry) JoinRoom(connID string, roomID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	c.rooms[roomID] = struct{}{}
	addIndex(r.byRoom, roomID, connID)
	return nil
}

// LeaveRoom removes the connection from a room. Leaving a room that was never
// joined is a no-op.
func (r *Registry) LeaveRoom(connID string, roomID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	delete(c.rooms, roomID)
	removeIndex(r.byRoom, roomID, connID)
	return nil
}

// Unregister removes the connection from every index and closes its client.
func (r *Registry) Unregister(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Departure{}, false
	}
	delete(r.conns, connID)
	for roomID := range c.rooms {
		removeIndex(r.byRoom, roomID, connID)
	}

	dep := Departure{UserID: c.userID, Identified: c.identified, Counted: c.counted}
	if c.identified {
		removeIndex(r.byUser, c.userID, connID)
		dep.WasLast = len(r.byUser[c.userID]) == 0
	}

	c.client.Close()
	return dep, true
}

// UserOf returns the identified user of a connection.
func (r *Registry) UserOf(connID string) (uint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok || !c.identified {
		return 0, false
	}
	return c.userID, true
}

func (r *Registry) ConnectionsForRoom(roomID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byRoom[roomID])
}

func (r *Registry) ConnectionsForUser(userID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byUser[userID])
}

// Connections returns every registered connection id.
func (r *Registry) Connections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send enqueues a frame without blocking.
func (r *Registry) Send(connID string, frame []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func addIndex(index map[uint]map[string]struct{}, key uint, connID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[connID] = struct{}{}
}

func removeIndex(index map[uint]map[string]struct{}, key uint, connID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(index, key)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
