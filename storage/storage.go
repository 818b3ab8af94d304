// File: storage/storage.go
// Package storage defines the connection registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The registry is the only state shared across connections: the live set of
// connections and the room index. Backends own their synchronization.

package storage

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-rws/session"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// BackendMemory is the in-process backend.
const BackendMemory = "memory"

// Order selects the ordering of ListIDs.
type Order int

const (
	Unsorted Order = iota
	Asc
	Desc
)

// Room is a named group of connection ids.
type Room struct {
	Name    string  `json:"name"`
	ConnIDs []int64 `json:"socketIds"`
}

// Hooks are invoked after the registry changed, outside any registry lock.
// count is the number of live connections after the change.
type Hooks struct {
	OnAdd    func(c *session.Conn, count int)
	OnRemove func(c *session.Conn, count int)
}

// Storage is the connection registry contract.
type Storage interface {
	// Add registers c. Adding a registered connection is a no-op.
	Add(c *session.Conn)
	// Remove closes the socket, unregisters c and drops it from every room,
	// pruning rooms left empty. It reports whether c was registered.
	Remove(c *session.Conn) bool
	Count() int
	All() []*session.Conn
	Find(q Query) []*session.Conn
	FindOne(q Query) *session.Conn
	ListIDs(order Order) []int64
	Exists(c *session.Conn) bool

	// SetNickname assigns name to c. A name already held by another
	// connection gets the last five digits of c's id appended. The final
	// name is returned.
	SetNickname(c *session.Conn, name string) string

	RoomEnter(c *session.Conn, name string)
	RoomExit(c *session.Conn, name string)
	RoomExitAll(c *session.Conn)
	RoomList() []Room
	RoomListOf(id int64) []Room
	RoomFindOne(name string) (Room, bool)
}

// New returns the backend registered under kind.
func New(kind string, hooks Hooks) (Storage, error) {
	switch kind {
	case BackendMemory, "":
		return NewMemory(hooks), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
}

// Known reports whether kind names a supported backend.
func Known(kind string) bool {
	return kind == BackendMemory
}
