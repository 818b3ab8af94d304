// File: subprotocol/subprotocol.go
// Package subprotocol interprets frame payloads.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Subprotocol converts inbound strings to messages, outbound messages to
// strings, and executes the commands carried by inbound messages.

package subprotocol

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/storage"
)

// Subprotocol names negotiated in Sec-WebSocket-Protocol.
const (
	NameJSONRWS = "jsonRWS"
	NameRaw     = "raw"
)

// Errors reported by dispatch.
var (
	ErrUnknownSubprotocol = errors.New("unknown subprotocol")
	ErrBadPayload         = errors.New("bad payload")
	ErrUnknownRecipient   = errors.New("unknown recipient")
)

// Transfer is the egress side of the transfer engine.
type Transfer interface {
	SendOne(msg any, c *session.Conn)
	Send(msg any, conns []*session.Conn)
	Broadcast(msg any, sender *session.Conn)
	SendAll(msg any)
	SendRoom(msg any, sender *session.Conn, room string)
}

// RouteFunc receives "route" commands together with the sending connection.
type RouteFunc func(env *Envelope, c *session.Conn)

// Deps are the collaborators a command may act on.
type Deps struct {
	Transfer Transfer
	Storage  storage.Storage
	Route    RouteFunc
	Log      *zerolog.Logger
}

// Subprotocol is one interpretation layer.
type Subprotocol interface {
	Name() string
	// Incoming converts an inbound payload string into a message.
	Incoming(msg string) (any, error)
	// Outgoing converts a message into the payload string to frame.
	Outgoing(msg any) (string, error)
	// Process executes msg received on c.
	Process(msg any, c *session.Conn, deps Deps) error
}

// New returns the subprotocol registered under name.
func New(name string) (Subprotocol, error) {
	switch name {
	case NameJSONRWS:
		return JSONRWS{}, nil
	case NameRaw:
		return Raw{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSubprotocol, name)
}

// Known reports whether name is a supported subprotocol.
func Known(name string) bool {
	_, err := New(name)
	return err == nil
}
