// File: server/http.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HTTP boundary: the upgrade event arrives either through net/http (hijack)
// or through Serve's own accept loop. Non-upgrade requests receive the
// welcome text.

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/momentics/hioload-rws/protocol"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/transport/tcp"
)

// Welcome is the body returned to plain HTTP requests.
const Welcome = "Welcome to hioload-rws WebSocket HTTP Server !\n"

// requestReadTimeout bounds reading the upgrade request on raw listeners.
const requestReadTimeout = 10 * time.Second

// ServeHTTP upgrades websocket requests and answers anything else with the
// welcome text.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !protocol.HeaderContainsToken(r.Header, protocol.HeaderUpgrade, "websocket") {
		WriteWelcome(w)
		return
	}
	if s.isClosed() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "websocket upgrade is not supported by this response writer", http.StatusInternalServerError)
		return
	}
	nc, rw, err := hj.Hijack()
	if err != nil {
		s.log.Error().Err(err).Msg("hijack failed")
		return
	}
	_ = nc.SetDeadline(time.Time{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serveConn(nc, rw.Reader, r)
	}()
}

// WriteWelcome writes the welcome response with permissive CORS headers.
func WriteWelcome(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD")
	h.Set("Access-Control-Max-Age", "3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Welcome))
}

// serveConn runs the admission pipeline and, on success, the ingestion loop.
func (s *Server) serveConn(nc net.Conn, br *bufio.Reader, r *http.Request) {
	c, err := s.Upgrade(s.ctx, nc, br, r)
	if err != nil || c == nil {
		return
	}
	s.Ingest(c)
}

// Serve accepts connections on ln, reads the HTTP request itself and hands
// upgrade requests to the admission pipeline. It returns ErrServerClosed
// after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrack(ln)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("websocket server listening")

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveRaw(nc)
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) serveRaw(nc net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("connection handler panicked")
			nc.Close()
		}
	}()
	_ = nc.SetReadDeadline(time.Now().Add(requestReadTimeout))
	br := bufio.NewReader(nc)
	req, err := http.ReadRequest(br)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", nc.RemoteAddr().String()).Msg("bad http request")
		nc.Close()
		return
	}
	_ = nc.SetReadDeadline(time.Time{})

	if !protocol.HeaderContainsToken(req.Header, protocol.HeaderUpgrade, "websocket") {
		resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=utf-8\r\n"+
			"Access-Control-Allow-Origin: *\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
			len(Welcome), Welcome)
		_, _ = nc.Write([]byte(resp))
		nc.Close()
		return
	}
	s.serveConn(nc, br, req)
}

// ListenAndServe opens a TCP listener on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := tcp.Listen(s.ctx, tcp.DefaultListenerConfig(addr))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrack(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting, cancels admissions in flight, sends close 1001 to
// every registered connection and removes it, then waits for connection
// goroutines until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	lns := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		lns = append(lns, ln)
	}
	s.mu.Unlock()

	for _, ln := range lns {
		_ = ln.Close()
	}
	s.cancel()

	conns := s.store.All()
	bye := protocol.EncodeClose(protocol.CloseGoingAway, "server shutdown")
	for _, c := range conns {
		_ = c.Write(bye)
	}
	for _, c := range conns {
		c.Flush(closeFlushWait)
		s.store.Remove(c)
	}
	s.log.Info().Int("closed", len(conns)).Msg("websocket server shut down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Conns returns the registered connections.
func (s *Server) Conns() []*session.Conn { return s.store.All() }
