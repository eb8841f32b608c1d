package server

import "sync"

// Membership tracks the single room each connection currently belongs to.
type Membership struct {
	mu      sync.RWMutex
	rooms   map[string]string
	members map[string]map[string]struct{}
}

func NewMembership() *Membership {
	return &Membership{
		rooms:   make(map[string]string),
		members: make(map[string]map[string]struct{}),
	}
}

// Join moves connId into room, leaving whatever room it was in before.
// The previous room is returned, or "" if there was none.
func (m *Membership) Join(connId, room string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.rooms[connId]
	if ok {
		m.removeLocked(connId, prev)
	}

	m.rooms[connId] = room
	if m.members[room] == nil {
		m.members[room] = make(map[string]struct{})
	}
	m.members[room][connId] = struct{}{}

	return prev
}

func (m *Membership) Leave(connId string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[connId]
	if !ok {
		return "", false
	}

	m.removeLocked(connId, room)
	delete(m.rooms, connId)
	return room, true
}

func (m *Membership) removeLocked(connId, room string) {
	if conns, ok := m.members[room]; ok {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(m.members, room)
		}
	}
}

func (m *Membership) Room(connId string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[connId]
	return room, ok
}

// Members returns the connection ids currently in room.
func (m *Membership) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.members[room]))
	for id := range m.members[room] {
		ids = append(ids, id)
	}
	return ids
}
