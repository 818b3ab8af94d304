// File: server/upgrade.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Admission pipeline: header validation, admission control, context creation,
// handshake, registration, authentication gate. Steps are separated by the
// configured pacing delay.

package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rws/protocol"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/subprotocol"
)

// Upgrade admits the websocket connection requested by req, whose header
// block has already been consumed from br. On success the connection is
// registered, authenticated, and ready for Ingest. On failure the error is
// reported to the peer, the socket is closed after Config.CloseDelay, and the
// error is returned.
func (s *Server) Upgrade(ctx context.Context, nc net.Conn, br *bufio.Reader, req *http.Request) (*session.Conn, error) {
	attempt := uuid.NewString()
	ip, port := peerAddr(req.Header, nc.RemoteAddr())
	log := s.log.With().Str("attempt", attempt).Str("ip", ip).Int("port", port).Logger()

	offered := protocol.ParseSubprotocols(req.Header)
	if err := s.checkHeaders(req.Header, offered); err != nil {
		s.rejectHTTP(nc, err, &log)
		return nil, err
	}
	if err := s.gate.acquire(ip); err != nil {
		s.rejectHTTP(nc, err, &log)
		return nil, err
	}
	abort := func(err error, c *session.Conn) (*session.Conn, error) {
		s.gate.release(ip)
		if c != nil {
			c.Close()
		} else {
			nc.Close()
		}
		log.Warn().Err(err).Msg("websocket admission aborted")
		return nil, err
	}
	if err := s.pace(ctx); err != nil {
		return abort(err, nil)
	}

	info := session.Info{
		ID:        s.ids.Next(),
		IP:        ip,
		Port:      port,
		Time:      time.Now(),
		UserAgent: req.UserAgent(),
		Origin:    req.Header.Get("Origin"),
		URL:       req.URL.RequestURI(),
		Query:     flattenQuery(req),
	}
	c := session.New(nc, br, info, session.Options{
		Timeout:     s.cfg.Timeout,
		OutboxLimit: s.cfg.OutboxLimit,
		Logger:      s.log.With().Str("attempt", attempt).Logger(),
		Sender:      s,
		OnTimeout:   s.expired,
	})
	if err := s.pace(ctx); err != nil {
		return abort(err, c)
	}

	resp := protocol.BuildResponse(req.Header.Get(protocol.HeaderSecWebSocketKey),
		s.cfg.Version, offered, s.cfg.Subprotocol, c.ID, s.cfg.Timeout)
	if err := c.Write([]byte(resp)); err != nil {
		return abort(fmt.Errorf("write handshake: %w", err), c)
	}
	if s.debug.Load() {
		c.Logger().Debug().Str("response", resp).Msg("handshake sent")
	}
	if err := s.pace(ctx); err != nil {
		return abort(err, c)
	}

	if c.Closed() {
		return abort(session.ErrConnClosed, c)
	}
	s.store.Add(c)
	s.emitConnection(c)
	if err := s.pace(ctx); err != nil {
		s.store.Remove(c)
		return nil, err
	}

	if !c.Auth().Passed() {
		err := errUnauthenticated(ip, info.UserAgent)
		s.rejectConn(c, err)
		return nil, err
	}
	return c, nil
}

func (s *Server) checkHeaders(h http.Header, offered []string) error {
	if !protocol.HeaderContainsToken(h, protocol.HeaderUpgrade, "websocket") {
		return errNoUpgrade()
	}
	if h.Get(protocol.HeaderSecWebSocketKey) == "" {
		return errNoKey()
	}
	ver := h.Get(protocol.HeaderSecWebSocketVer)
	if v, err := strconv.Atoi(ver); err != nil || v != s.cfg.Version {
		return errVersion(ver, s.cfg.Version)
	}
	if len(offered) > 0 && !containsToken(offered, s.cfg.Subprotocol) {
		return errSubprotocol(offered, s.cfg.Subprotocol)
	}
	return nil
}

func containsToken(list []string, tok string) bool {
	for _, x := range list {
		if x == tok {
			return true
		}
	}
	return false
}

// pace sleeps for the current tightening delay.
func (s *Server) pace(ctx context.Context) error {
	d := time.Duration(s.tightening.Load())
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rejectHTTP answers a request that never reached the handshake. The body is
// the error envelope; the socket is closed after CloseDelay.
func (s *Server) rejectHTTP(nc net.Conn, err error, log *zerolog.Logger) {
	s.control.AddMetric("rejected_total", 1)
	log.Error().Err(err).Msg("websocket admission rejected")

	body, encErr := s.proto.Outgoing(s.errorEnvelope(err, 0))
	if encErr != nil {
		body = clientMessage(err)
	}
	status := httpStatus(err)
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, http.StatusText(status), len(body), body)

	_ = nc.SetWriteDeadline(time.Now().Add(s.cfg.CloseDelay + time.Second))
	if _, werr := nc.Write([]byte(resp)); werr != nil {
		log.Warn().Err(werr).Msg("write rejection")
	}
	time.AfterFunc(s.cfg.CloseDelay, func() { nc.Close() })
}

// rejectConn sends err as an error message to a registered connection and
// removes it after CloseDelay.
func (s *Server) rejectConn(c *session.Conn, err error) {
	s.control.AddMetric("rejected_total", 1)
	c.Logger().Error().Err(err).Msg("websocket admission rejected")
	s.SendError(err, c)
	time.AfterFunc(s.cfg.CloseDelay, func() { s.store.Remove(c) })
}

func (s *Server) errorEnvelope(err error, to int64) *subprotocol.Envelope {
	return &subprotocol.Envelope{
		ID:      s.ids.Next(),
		From:    0,
		To:      subprotocol.ToID(to),
		Cmd:     subprotocol.CmdError,
		Payload: clientMessage(err),
	}
}
