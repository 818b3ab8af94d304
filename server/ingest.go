// File: server/ingest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ingestion side of the transfer engine: one loop per connection reading
// frames in arrival order. Control frames are answered here, data frames are
// reassembled and handed to the subprotocol. Malformed input is logged and
// dropped; the connection stays open unless CloseOnBadMessage is set.

package server

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/momentics/hioload-rws/protocol"
	"github.com/momentics/hioload-rws/session"
)

// closeFlushWait bounds how long the close echo may wait in the outbox.
const closeFlushWait = 100 * time.Millisecond

// Ingest reads frames from c until the peer closes, the socket fails or the
// connection is removed. It removes c from the registry before returning.
func (s *Server) Ingest(c *session.Conn) {
	log := c.Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("ingestion panicked")
		}
		s.store.Remove(c)
	}()

	var (
		inMessage bool
		msgOp     byte
		msgBuf    []byte
	)
	reset := func() {
		inMessage, msgOp, msgBuf = false, 0, nil
	}

	for {
		f, err := protocol.ReadFrame(c.Reader(), s.cfg.MaxPayload)
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrFrameTooLarge):
				log.Warn().Uint64("len", f.Length).Int64("max", s.cfg.MaxPayload).Msg("frame too large, skipped")
				if inMessage && !protocol.IsControl(f.Opcode) {
					log.Warn().Msg("open message dropped with its oversized frame")
					reset()
				}
				continue
			case errors.Is(err, protocol.ErrMessageTooBig), errors.Is(err, protocol.ErrBadLength):
				code := uint16(protocol.CloseMessageTooBig)
				if errors.Is(err, protocol.ErrBadLength) {
					code = protocol.CloseProtocolError
				}
				log.Warn().Err(err).Uint64("len", f.Length).Uint16("code", code).Msg("unreadable frame length, closing")
				if c.Write(protocol.EncodeClose(code, "")) == nil {
					c.Flush(closeFlushWait)
				}
			case errors.Is(err, protocol.ErrControlTooLarge), errors.Is(err, protocol.ErrFragmentedControl):
				log.Warn().Err(err).Msg("bad control frame dropped")
				continue
			case c.Closed(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				log.Debug().Err(err).Msg("read loop finished")
			default:
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if s.debug.Load() {
			log.Debug().
				Str("dir", "in").
				Str("header", f.String()).
				Str("payload_hex", hex.EncodeToString(f.Payload)).
				Msg("frame")
		}

		if f.IsControl() {
			if !s.handleControl(c, f) {
				return
			}
			continue
		}

		switch f.Opcode {
		case protocol.OpcodeText, protocol.OpcodeBinary:
			if inMessage {
				log.Warn().Msg("new message started before previous one finished, previous dropped")
			}
			inMessage, msgOp, msgBuf = true, f.Opcode, f.Payload
		case protocol.OpcodeContinuation:
			if !inMessage {
				log.Warn().Msg("continuation frame without a message, dropped")
				continue
			}
			if int64(len(msgBuf)+len(f.Payload)) > s.cfg.MaxPayload {
				log.Warn().Int64("max", s.cfg.MaxPayload).Msg("fragmented message too large, dropped")
				reset()
				continue
			}
			msgBuf = append(msgBuf, f.Payload...)
		default:
			log.Warn().Str("opcode", fmt.Sprintf("0x%x", f.Opcode)).Msg("reserved opcode, frame dropped")
			continue
		}

		if !f.Fin {
			continue
		}
		payload, op := msgBuf, msgOp
		reset()
		s.dispatch(c, op, payload)
		if c.Closed() {
			return
		}
	}
}

// handleControl answers a control frame; false ends the read loop.
func (s *Server) handleControl(c *session.Conn, f *protocol.Frame) bool {
	log := c.Logger()
	switch f.Opcode {
	case protocol.OpcodeClose:
		code := protocol.CloseCode(f.Payload)
		log.Info().Uint16("code", code).Msg("opcode 0x8: client closed the websocket connection")
		if code == protocol.CloseNoStatusRcvd {
			code = protocol.CloseNormalClosure
		}
		if c.Write(protocol.EncodeClose(code, "")) == nil {
			c.Flush(closeFlushWait)
		}
		return false
	case protocol.OpcodePing:
		log.Debug().Msg("opcode 0x9: ping received")
		if err := c.Write(protocol.EncodeControl(protocol.OpcodePong, f.Payload)); err != nil {
			log.Warn().Err(err).Msg("pong not sent")
		}
	case protocol.OpcodePong:
		log.Debug().Msg("opcode 0xA: pong received")
	}
	return true
}

// dispatch runs one complete message through the subprotocol and notifies
// message listeners.
func (s *Server) dispatch(c *session.Conn, op byte, payload []byte) {
	log := c.Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("dispatch panicked")
		}
	}()
	s.control.AddMetric("messages_in", 1)

	text := string(payload)
	msg, err := s.proto.Incoming(text)
	if err != nil {
		log.Warn().Err(err).Msg("incoming message rejected")
		s.badMessage(c, err, false)
		return
	}
	if err := s.proto.Process(msg, c, s.deps()); err != nil {
		log.Warn().Err(err).Msg("message processing failed")
		s.badMessage(c, err, true)
	}
	s.emitMessage(Message{
		Msg:     msg,
		Text:    text,
		Payload: payload,
		Binary:  op == protocol.OpcodeBinary,
		Conn:    c,
	})
}

// badMessage applies the malformed-message policy. Processing errors are
// echoed to the sender; with CloseOnBadMessage the sender is also removed.
func (s *Server) badMessage(c *session.Conn, err error, echo bool) {
	s.control.AddMetric("bad_messages", 1)
	if echo || s.cfg.CloseOnBadMessage {
		s.SendError(err, c)
	}
	if s.cfg.CloseOnBadMessage {
		time.AfterFunc(s.cfg.CloseDelay, func() { s.store.Remove(c) })
	}
}
