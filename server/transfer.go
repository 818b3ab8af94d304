// File: server/transfer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Egress side of the transfer engine. Every operation is built on deliver,
// which is best effort per recipient: failures are logged and never abort
// delivery to the remaining recipients.

package server

import (
	"encoding/hex"

	"github.com/momentics/hioload-rws/protocol"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/storage"
	"github.com/momentics/hioload-rws/subprotocol"
)

var _ subprotocol.Transfer = (*Server)(nil)

// deliver serializes msg with the subprotocol, frames it unmasked and queues
// it on c.
func (s *Server) deliver(msg any, c *session.Conn) {
	if c == nil {
		s.log.Warn().Msg("deliver: connection is not defined")
		return
	}
	text, err := s.proto.Outgoing(msg)
	if err != nil {
		c.Logger().Warn().Err(err).Msg("deliver: outgoing message rejected")
		return
	}
	frame, err := protocol.Encode(text, false)
	if err != nil {
		c.Logger().Warn().Err(err).Msg("deliver: encode frame")
		return
	}
	if s.debug.Load() {
		s.logFrame(c, "out", frame)
	}
	if err := c.Write(frame); err != nil {
		c.Logger().Warn().Err(err).Str("msg", text).Msg("deliver: socket is not writable")
		return
	}
	s.control.AddMetric("frames_out", 1)
}

// logFrame dumps header fields and payload bytes of an encoded frame.
func (s *Server) logFrame(c *session.Conn, dir string, raw []byte) {
	f, _, err := protocol.ParseFrame(raw, 0)
	if err != nil {
		return
	}
	c.Logger().Debug().
		Str("dir", dir).
		Str("header", f.String()).
		Str("payload_hex", hex.EncodeToString(f.Payload)).
		Msg("frame")
}

// SendOne delivers msg to exactly one connection.
func (s *Server) SendOne(msg any, c *session.Conn) {
	s.deliver(msg, c)
}

// Send delivers msg to each connection in list order.
func (s *Server) Send(msg any, conns []*session.Conn) {
	for _, c := range conns {
		s.deliver(msg, c)
	}
}

// Broadcast delivers msg to every registered connection except sender.
func (s *Server) Broadcast(msg any, sender *session.Conn) {
	q := storage.All()
	if sender != nil {
		q = storage.Not(storage.ByID(sender.ID))
	}
	for _, c := range s.store.Find(q) {
		s.deliver(msg, c)
	}
}

// SendAll delivers msg to every registered connection.
func (s *Server) SendAll(msg any) {
	for _, c := range s.store.All() {
		s.deliver(msg, c)
	}
}

// SendRoom delivers msg to the members of room except sender. A missing room
// is a no-op.
func (s *Server) SendRoom(msg any, sender *session.Conn, room string) {
	r, ok := s.store.RoomFindOne(room)
	if !ok {
		return
	}
	for _, c := range s.store.Find(storage.IDIn(r.ConnIDs...)) {
		if sender != nil && c.ID == sender.ID {
			continue
		}
		s.deliver(msg, c)
	}
}

// SendError delivers err to c as a message with cmd "error".
func (s *Server) SendError(err error, c *session.Conn) {
	var to int64
	if c != nil {
		to = c.ID
	}
	s.deliver(s.errorEnvelope(err, to), c)
}

// SendID delivers c's own id to c with cmd "info/socket/id".
func (s *Server) SendID(c *session.Conn) {
	s.deliver(&subprotocol.Envelope{
		ID:      s.ids.Next(),
		From:    0,
		To:      subprotocol.ToID(c.ID),
		Cmd:     subprotocol.CmdInfoID,
		Payload: c.ID,
	}, c)
}
