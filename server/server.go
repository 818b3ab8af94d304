// File: server/server.go
// Package server implements the admission pipeline and the transfer engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server owns the registry, the subprotocol, the admission gate and the
// runtime control surface. Listeners for the three notification points
// (connection established, message received, route requested) are registered
// before serving starts.

package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rws/adapters"
	"github.com/momentics/hioload-rws/api"
	"github.com/momentics/hioload-rws/internal/concurrency"
	"github.com/momentics/hioload-rws/internal/logging"
	"github.com/momentics/hioload-rws/protocol"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/storage"
	"github.com/momentics/hioload-rws/subprotocol"
)

// Runtime-mutable config keys held by the control store.
const (
	KeyDebug        = "debug"
	KeyTighteningMS = "tightening_ms"
)

// Message is the payload of the "message received" notification: the parsed
// message, its raw text and bytes, and the sending connection.
type Message struct {
	Msg     any
	Text    string
	Payload []byte
	Binary  bool
	Conn    *session.Conn
}

// Listener callbacks.
type (
	ConnectionFunc func(c *session.Conn)
	MessageFunc    func(m Message)
	RouteFunc      = subprotocol.RouteFunc
)

// Server is the websocket engine.
type Server struct {
	cfg     *Config
	log     zerolog.Logger
	store   storage.Storage
	proto   subprotocol.Subprotocol
	ids     *concurrency.IDGenerator
	gate    *gate
	control *adapters.ControlAdapter

	debug      atomic.Bool
	tightening atomic.Int64

	lmu          sync.RWMutex
	onConnection []ConnectionFunc
	onMessage    []MessageFunc
	onRoute      []RouteFunc

	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool
	wg        sync.WaitGroup
}

var _ api.GracefulShutdown = (*Server)(nil)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithIDGenerator replaces the connection and message id source.
func WithIDGenerator(g *concurrency.IDGenerator) Option {
	return func(s *Server) { s.ids = g }
}

// OnConnection registers a listener at construction.
func OnConnection(fn ConnectionFunc) Option {
	return func(s *Server) { s.OnConnection(fn) }
}

// OnMessage registers a listener at construction.
func OnMessage(fn MessageFunc) Option {
	return func(s *Server) { s.OnMessage(fn) }
}

// OnRoute registers a listener at construction.
func OnRoute(fn RouteFunc) Option {
	return func(s *Server) { s.OnRoute(fn) }
}

// New builds a Server from cfg (nil selects DefaultConfig).
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proto, err := subprotocol.New(cfg.Subprotocol)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		log:       logging.New(logging.Options{Debug: cfg.Debug, Component: "rws"}),
		proto:     proto,
		ids:       concurrency.NewIDGenerator(),
		gate:      newGate(cfg.MaxConns, cfg.MaxIPConns),
		control:   adapters.NewControlAdapter(),
		listeners: make(map[net.Listener]struct{}),
		started:   time.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.debug.Store(cfg.Debug)
	s.tightening.Store(int64(cfg.Tightening))

	for _, o := range opts {
		o(s)
	}

	s.store, err = storage.New(cfg.Storage, storage.Hooks{
		OnAdd:    s.registered,
		OnRemove: s.unregistered,
	})
	if err != nil {
		return nil, err
	}

	s.initControl()
	s.log.Info().
		Str("storage", cfg.Storage).
		Str("subprotocol", cfg.Subprotocol).
		Dur("timeout", cfg.Timeout).
		Msg("websocket server booted up")
	return s, nil
}

func (s *Server) initControl() {
	s.control.SetConfig(map[string]any{
		KeyDebug:        s.cfg.Debug,
		KeyTighteningMS: s.cfg.Tightening.Milliseconds(),
		"timeout_ms":    s.cfg.Timeout.Milliseconds(),
		"max_conns":     s.cfg.MaxConns,
		"max_ip_conns":  s.cfg.MaxIPConns,
		"storage":       s.cfg.Storage,
		"subprotocol":   s.cfg.Subprotocol,
	})
	s.control.OnReload(s.applyRuntimeConfig)
	s.control.SetMetric("connections", 0)
	s.control.RegisterDebugProbe("storage.connections", func() any { return s.store.Count() })
	s.control.RegisterDebugProbe("storage.rooms", func() any { return len(s.store.RoomList()) })
}

// applyRuntimeConfig picks up debug and tightening changes made through the
// control store. Wire dumps still need a logger built at debug level.
func (s *Server) applyRuntimeConfig() {
	cfg := s.control.GetConfig()
	if v, ok := cfg[KeyDebug].(bool); ok {
		s.debug.Store(v)
	}
	var ms int64
	switch v := cfg[KeyTighteningMS].(type) {
	case int64:
		ms = v
	case int:
		ms = int64(v)
	case float64:
		ms = int64(v)
	default:
		return
	}
	if ms >= 0 {
		s.tightening.Store(int64(time.Duration(ms) * time.Millisecond))
	}
}

// OnConnection registers a "connection established" listener. Listeners run
// after registration and before the authentication gate, so they may call
// Conn.Authenticate.
func (s *Server) OnConnection(fn ConnectionFunc) {
	s.lmu.Lock()
	s.onConnection = append(s.onConnection, fn)
	s.lmu.Unlock()
}

// OnMessage registers a "message received" listener.
func (s *Server) OnMessage(fn MessageFunc) {
	s.lmu.Lock()
	s.onMessage = append(s.onMessage, fn)
	s.lmu.Unlock()
}

// OnRoute registers a "route requested" listener.
func (s *Server) OnRoute(fn RouteFunc) {
	s.lmu.Lock()
	s.onRoute = append(s.onRoute, fn)
	s.lmu.Unlock()
}

func (s *Server) emitConnection(c *session.Conn) {
	s.lmu.RLock()
	fns := append([]ConnectionFunc(nil), s.onConnection...)
	s.lmu.RUnlock()
	for _, fn := range fns {
		s.safeCall(c, "connection listener", func() { fn(c) })
	}
}

func (s *Server) emitMessage(m Message) {
	s.lmu.RLock()
	fns := append([]MessageFunc(nil), s.onMessage...)
	s.lmu.RUnlock()
	for _, fn := range fns {
		s.safeCall(m.Conn, "message listener", func() { fn(m) })
	}
}

func (s *Server) emitRoute(env *subprotocol.Envelope, c *session.Conn) {
	s.lmu.RLock()
	fns := append([]RouteFunc(nil), s.onRoute...)
	s.lmu.RUnlock()
	for _, fn := range fns {
		s.safeCall(c, "route listener", func() { fn(env, c) })
	}
}

// safeCall runs fn and logs a recovered panic instead of propagating it.
func (s *Server) safeCall(c *session.Conn, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log := &s.log
			if c != nil {
				log = c.Logger()
			}
			log.Error().Str("panic", fmt.Sprint(r)).Msg(what + " panicked")
		}
	}()
	fn()
}

func (s *Server) registered(c *session.Conn, count int) {
	s.control.SetMetric("connections", count)
	s.control.AddMetric("admitted_total", 1)
	c.Logger().Info().
		Int("count", count).
		Dur("timeout", c.Timeout()).
		Msg("websocket connected")
}

func (s *Server) unregistered(c *session.Conn, count int) {
	s.gate.release(c.IP)
	s.control.SetMetric("connections", count)
	c.Logger().Info().Int("count", count).Msg("websocket closed")
}

func (s *Server) expired(c *session.Conn) {
	timeout := c.Timeout()
	s.store.Remove(c)
	c.Logger().Info().
		Int("count", s.store.Count()).
		Dur("timeout", timeout).
		Msg("websocket timeout after inactivity")
}

// Config returns the active configuration.
func (s *Server) Config() *Config { return s.cfg }

// Storage returns the connection registry.
func (s *Server) Storage() storage.Storage { return s.store }

// Subprotocol returns the negotiated subprotocol.
func (s *Server) Subprotocol() subprotocol.Subprotocol { return s.proto }

// Control exposes runtime config, metrics and debug probes.
func (s *Server) Control() api.Control { return s.control }

// Info describes the running server.
func (s *Server) Info() api.ServiceInfo {
	return api.ServiceInfo{
		Name:        "hioload-rws",
		Version:     protocol.ServerVersion,
		Subprotocol: s.proto.Name(),
		Storage:     s.cfg.Storage,
		StartedAt:   s.started,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Connections: s.store.Count(),
	}
}

// Logger returns the base logger.
func (s *Server) Logger() *zerolog.Logger { return &s.log }

// NextID returns a fresh message id.
func (s *Server) NextID() int64 { return s.ids.Next() }

func (s *Server) deps() subprotocol.Deps {
	return subprotocol.Deps{
		Transfer: s,
		Storage:  s.store,
		Route:    s.emitRoute,
		Log:      &s.log,
	}
}
