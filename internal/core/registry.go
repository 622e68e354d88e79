package core

import (
	"errors"
	"sort"
	"sync"
)

// ErrRegistryClosed is returned when registering into a registry that was shut down.
var ErrRegistryClosed = errors.New("registry closed")

// RoomKind separates channel rooms from ad hoc call rooms.
type RoomKind int

const (
	// RoomChannel is a room backed by a persistent channel.
	RoomChannel RoomKind = iota
	// RoomCall is a transient room used for one call's signaling.
	RoomCall
)

func (k RoomKind) String() string {
	switch k {
	case RoomChannel:
		return "channel"
	case RoomCall:
		return "call"
	default:
		return "unknown"
	}
}

// RoomKey identifies a room within its namespace.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

// ChannelRoom returns the key of a channel room.
func ChannelRoom(id string) RoomKey { return RoomKey{Kind: RoomChannel, ID: id} }

// CallRoom returns the key of a call room.
func CallRoom(id string) RoomKey { return RoomKey{Kind: RoomCall, ID: id} }

func (k RoomKey) String() string { return k.Kind.String() + "/" + k.ID }

// room groups sessions subscribed to the same key.
type room struct {
	members map[*Session]struct{}
}

func newRoom() *room {
	return &room{members: make(map[*Session]struct{})}
}

func (r *room) add(s *Session) bool {
	if _, exists := r.members[s]; exists {
		return false
	}
	r.members[s] = struct{}{}
	return true
}

func (r *room) remove(s *Session) bool {
	if _, exists := r.members[s]; !exists {
		return false
	}
	delete(r.members, s)
	return true
}

// snapshot copies the member set, skipping exclude.
func (r *room) snapshot(exclude *Session) []*Session {
	out := make([]*Session, 0, len(r.members))
	for s := range r.members {
		if s != exclude {
			out = append(out, s)
		}
	}
	return out
}

func (r *room) empty() bool {
	return len(r.members) == 0
}

// Delivery is an outbound event addressed to a fixed set of sessions.
type Delivery struct {
	To    []*Session
	Event *Event
}

// Departure describes one room a disconnecting session was removed from.
type Departure struct {
	Room      RoomKey
	Remaining []*Session
}

// Registry tracks connected sessions and the rooms they joined. All methods
// are safe for concurrent use; member lists handed out are snapshots taken
// under the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[RoomKey]*room
	joined   map[*Session]map[RoomKey]struct{}
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[RoomKey]*room),
		joined:   make(map[*Session]map[RoomKey]struct{}),
	}
}

// Register makes a session reachable by handle.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	r.sessions[s.ID] = s
	r.joined[s] = make(map[RoomKey]struct{})
	return nil
}

// Lookup finds a connected session by handle.
func (r *Registry) Lookup(handle string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[handle]
	return s, ok
}

// Join adds s to the room. It returns the other members at the instant of the
// join and whether s was newly added; rejoining is a no-op reporting false.
// Sessions that are not registered are ignored.
func (r *Registry) Join(s *Session, key RoomKey) ([]*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[s]
	if !ok {
		return nil, false
	}
	rm, ok := r.rooms[key]
	if !ok {
		rm = newRoom()
		r.rooms[key] = rm
	}
	if !rm.add(s) {
		return nil, false
	}
	rooms[key] = struct{}{}
	return rm.snapshot(s), true
}

// Leave removes s from the room. It returns the remaining members and whether
// s was a member; leaving a room not joined is a no-op.
func (r *Registry) Leave(s *Session, key RoomKey) ([]*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(s, key)
}

func (r *Registry) leaveLocked(s *Session, key RoomKey) ([]*Session, bool) {
	rm, ok := r.rooms[key]
	if !ok || !rm.remove(s) {
		return nil, false
	}
	if rooms, ok := r.joined[s]; ok {
		delete(rooms, key)
	}
	if rm.empty() {
		delete(r.rooms, key)
		return nil, true
	}
	return rm.snapshot(nil), true
}

// Members returns a snapshot of the room's members, excluding exclude when non-nil.
func (r *Registry) Members(key RoomKey, exclude *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[key]
	if !ok {
		return nil
	}
	return rm.snapshot(exclude)
}

// Broadcast addresses ev to every current member of the room except exclude.
func (r *Registry) Broadcast(key RoomKey, ev *Event, exclude *Session) Delivery {
	return Delivery{To: r.Members(key, exclude), Event: ev}
}

// IsMember reports whether s currently belongs to the room.
func (r *Registry) IsMember(s *Session, key RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.joined[s][key]
	return ok
}

// RoomsOf lists the rooms s belongs to, ordered by kind then id.
func (r *Registry) RoomsOf(s *Session) []RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]RoomKey, 0, len(r.joined[s]))
	for key := range r.joined[s] {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

// Disconnect removes s from every room and from the handle index. It returns
// one departure per room s was in. Calling it again is a no-op.
func (r *Registry) Disconnect(s *Session) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[s]
	if !ok {
		return nil
	}
	keys := make([]RoomKey, 0, len(rooms))
	for key := range rooms {
		keys = append(keys, key)
	}
	sortKeys(keys)

	departures := make([]Departure, 0, len(keys))
	for _, key := range keys {
		remaining, _ := r.leaveLocked(s, key)
		departures = append(departures, Departure{Room: key, Remaining: remaining})
	}

	delete(r.joined, s)
	if cur, ok := r.sessions[s.ID]; ok && cur == s {
		delete(r.sessions, s.ID)
	}
	return departures
}

// Stats returns the number of connected sessions and live rooms.
func (r *Registry) Stats() (sessions, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.rooms)
}

// Close closes every session and refuses further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func sortKeys(keys []RoomKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
}
