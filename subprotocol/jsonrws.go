// File: subprotocol/jsonrws.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// jsonRWS: JSON envelopes with a fixed command vocabulary. Unknown commands
// are ignored without a reply.

package subprotocol

import (
	"encoding/json"
	"fmt"

	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/storage"
)

// Commands understood by JSONRWS.
const (
	CmdSendOne     = "socket/sendone"
	CmdSend        = "socket/send"
	CmdBroadcast   = "socket/broadcast"
	CmdSendAll     = "socket/sendall"
	CmdNick        = "socket/nick"
	CmdRoomEnter   = "room/enter"
	CmdRoomExit    = "room/exit"
	CmdRoomExitAll = "room/exitall"
	CmdRoomSend    = "room/send"
	CmdRoute       = "route"
	CmdInfoID      = "info/socket/id"
	CmdInfoList    = "info/socket/list"
	CmdInfoRooms   = "info/room/list"
	CmdInfoMyRooms = "info/room/listmy"
	CmdError       = "error"
)

// ConnSummary is one entry of the info/socket/list reply.
type ConnSummary struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// JSONRWS implements the jsonRWS subprotocol.
type JSONRWS struct{}

var _ Subprotocol = JSONRWS{}

func (JSONRWS) Name() string { return NameJSONRWS }

// Incoming parses and validates an envelope. The result is *Envelope.
func (JSONRWS) Incoming(msg string) (any, error) {
	return ParseEnvelope([]byte(msg))
}

// Outgoing serializes an envelope. Maps are checked against the envelope
// field set before encoding.
func (JSONRWS) Outgoing(msg any) (string, error) {
	switch m := msg.(type) {
	case *Envelope:
		return encode(m)
	case Envelope:
		return encode(&m)
	case map[string]any:
		if err := checkFields(keysOf(m)); err != nil {
			return "", err
		}
		return encode(m)
	}
	return "", fmt.Errorf("%w: outgoing %T", ErrBadEnvelope, msg)
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Process executes one command on behalf of c.
func (JSONRWS) Process(msg any, c *session.Conn, deps Deps) error {
	env, ok := msg.(*Envelope)
	if !ok {
		return fmt.Errorf("%w: %T", ErrBadEnvelope, msg)
	}

	switch env.Cmd {
	case CmdSendOne:
		id, ok := env.To.AsID()
		if !ok {
			return fmt.Errorf("%w: %s needs a single id", ErrBadEnvelope, env.Cmd)
		}
		to := deps.Storage.FindOne(storage.ByID(id))
		if to == nil {
			return fmt.Errorf("%w: %d", ErrUnknownRecipient, id)
		}
		deps.Transfer.SendOne(env, to)

	case CmdSend:
		ids, ok := env.To.AsIDs()
		if !ok {
			return fmt.Errorf("%w: %s needs a list of ids", ErrBadEnvelope, env.Cmd)
		}
		deps.Transfer.Send(env, deps.Storage.Find(storage.IDIn(ids...)))

	case CmdBroadcast:
		deps.Transfer.Broadcast(env, c)

	case CmdSendAll:
		deps.Transfer.SendAll(env)

	case CmdNick:
		name, ok := env.PayloadString()
		if !ok {
			return fmt.Errorf("%w: nickname must be a string", ErrBadPayload)
		}
		c.SendSelf(env.Reply(deps.Storage.SetNickname(c, name)))

	case CmdRoomEnter:
		name, ok := env.PayloadString()
		if !ok {
			return fmt.Errorf("%w: room name must be a string", ErrBadPayload)
		}
		deps.Storage.RoomEnter(c, name)
		c.SendSelf(env.Reply(fmt.Sprintf("Entered in the room '%s'", name)))

	case CmdRoomExit:
		name, ok := env.PayloadString()
		if !ok {
			return fmt.Errorf("%w: room name must be a string", ErrBadPayload)
		}
		deps.Storage.RoomExit(c, name)
		c.SendSelf(env.Reply(fmt.Sprintf("Exited from the room '%s'", name)))

	case CmdRoomExitAll:
		deps.Storage.RoomExitAll(c)
		c.SendSelf(env.Reply("Exited from all rooms"))

	case CmdRoomSend:
		if env.To.Kind != TargetName {
			return fmt.Errorf("%w: %s needs a room name", ErrBadEnvelope, env.Cmd)
		}
		deps.Transfer.SendRoom(env, c, env.To.Name)

	case CmdRoute:
		if deps.Route != nil {
			deps.Route(env, c)
		}

	case CmdInfoID:
		c.SendSelf(env.Reply(c.ID))

	case CmdInfoList:
		conns := deps.Storage.All()
		list := make([]ConnSummary, 0, len(conns))
		for _, x := range conns {
			list = append(list, ConnSummary{ID: x.ID, Nickname: x.Nickname()})
		}
		c.SendSelf(env.Reply(list))

	case CmdInfoRooms:
		c.SendSelf(env.Reply(deps.Storage.RoomList()))

	case CmdInfoMyRooms:
		c.SendSelf(env.Reply(deps.Storage.RoomListOf(env.From)))
	}
	return nil
}
