// File: storage/memory.go
// Package storage
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process registry guarded by one RWMutex. Mutations are mutually
// exclusive; queries run under the read lock against a consistent view and
// return copies, so callers iterate without holding the lock.

package storage

import (
	"sort"
	"strconv"
	"sync"

	"github.com/momentics/hioload-rws/session"
)

// Memory is the "memory" backend.
type Memory struct {
	mu    sync.RWMutex
	conns []*session.Conn // registration order
	index map[int64]*session.Conn
	rooms map[string]map[int64]struct{}
	hooks Hooks
}

var _ Storage = (*Memory)(nil)

// NewMemory creates an empty registry.
func NewMemory(hooks Hooks) *Memory {
	return &Memory{
		index: make(map[int64]*session.Conn),
		rooms: make(map[string]map[int64]struct{}),
		hooks: hooks,
	}
}

func (m *Memory) Add(c *session.Conn) {
	m.mu.Lock()
	if _, ok := m.index[c.ID]; ok {
		m.mu.Unlock()
		return
	}
	m.conns = append(m.conns, c)
	m.index[c.ID] = c
	count := len(m.conns)
	m.mu.Unlock()

	if m.hooks.OnAdd != nil {
		m.hooks.OnAdd(c, count)
	}
}

func (m *Memory) Remove(c *session.Conn) bool {
	c.Close()

	m.mu.Lock()
	cur, ok := m.index[c.ID]
	if !ok || cur != c {
		m.mu.Unlock()
		return false
	}
	delete(m.index, c.ID)
	for i, x := range m.conns {
		if x == c {
			m.conns = append(m.conns[:i], m.conns[i+1:]...)
			break
		}
	}
	m.exitAllLocked(c.ID)
	count := len(m.conns)
	m.mu.Unlock()

	if m.hooks.OnRemove != nil {
		m.hooks.OnRemove(c, count)
	}
	return true
}

func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Memory) All() []*session.Conn {
	return m.Find(nil)
}

func (m *Memory) Find(q Query) []*session.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		if q.match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) FindOne(q Query) *session.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		if q.match(c) {
			return c
		}
	}
	return nil
}

func (m *Memory) ListIDs(order Order) []int64 {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.conns))
	for _, c := range m.conns {
		ids = append(ids, c.ID)
	}
	m.mu.RUnlock()

	switch order {
	case Asc:
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	case Desc:
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	}
	return ids
}

func (m *Memory) Exists(c *session.Conn) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cur, ok := m.index[c.ID]
	return ok && cur == c
}

func (m *Memory) SetNickname(c *session.Conn, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.conns {
		if other != c && other.Nickname() == name {
			name += nickSuffix(c.ID)
			break
		}
	}
	c.SetNickname(name)
	return name
}

// nickSuffix returns the last five digits of id.
func nickSuffix(id int64) string {
	s := strconv.FormatInt(id, 10)
	if len(s) > 5 {
		s = s[len(s)-5:]
	}
	return s
}

func (m *Memory) RoomEnter(c *session.Conn, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[c.ID]; !ok {
		return
	}
	members, ok := m.rooms[name]
	if !ok {
		members = make(map[int64]struct{})
		m.rooms[name] = members
	}
	members[c.ID] = struct{}{}
}

func (m *Memory) RoomExit(c *session.Conn, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitLocked(c.ID, name)
}

func (m *Memory) RoomExitAll(c *session.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitAllLocked(c.ID)
}

func (m *Memory) exitLocked(id int64, name string) {
	members, ok := m.rooms[name]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(m.rooms, name)
	}
}

func (m *Memory) exitAllLocked(id int64) {
	for name := range m.rooms {
		m.exitLocked(id, name)
	}
}

func (m *Memory) RoomList() []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Room, 0, len(m.rooms))
	for name, members := range m.rooms {
		out = append(out, snapshotRoom(name, members))
	}
	sortRooms(out)
	return out
}

func (m *Memory) RoomListOf(id int64) []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Room, 0)
	for name, members := range m.rooms {
		if _, ok := members[id]; ok {
			out = append(out, snapshotRoom(name, members))
		}
	}
	sortRooms(out)
	return out
}

func (m *Memory) RoomFindOne(name string) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.rooms[name]
	if !ok {
		return Room{}, false
	}
	return snapshotRoom(name, members), true
}

func snapshotRoom(name string, members map[int64]struct{}) Room {
	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Room{Name: name, ConnIDs: ids}
}

func sortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
}
