// File: session/conn.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn: typed connection record with inactivity timer and egress writer.

package session

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rws/internal/concurrency"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("connection is closed")

// AuthState is the outcome of the authentication callback.
type AuthState int32

const (
	Unauthenticated AuthState = iota
	Authenticated
	Anonymous
)

func (a AuthState) String() string {
	switch a {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unauthenticated"
	}
}

// Passed reports whether the state lets the connection through the gate.
func (a AuthState) Passed() bool {
	return a == Authenticated || a == Anonymous
}

// Info is the peer metadata collected from the upgrade request.
type Info struct {
	ID        int64
	IP        string
	Port      int
	Time      time.Time
	UserAgent string
	Origin    string
	URL       string
	Query     map[string]string
}

// Sender delivers a message to one connection. It is the back-reference used
// by SendSelf.
type Sender interface {
	SendOne(msg any, c *Conn)
}

// Options configures a Conn.
type Options struct {
	Timeout     time.Duration // inactivity timeout, 0 = never
	OutboxLimit int           // max queued frames, 0 = unlimited
	Logger      zerolog.Logger
	Sender      Sender
	OnTimeout   func(*Conn) // defaults to Close
}

// Conn is one accepted socket.
type Conn struct {
	Info

	nc     net.Conn
	reader *bufio.Reader
	out    *concurrency.Outbox
	log    zerolog.Logger
	sender Sender

	onTimeout func(*Conn)

	mu       sync.Mutex
	nickname string
	timeout  time.Duration
	timer    *time.Timer
	timerGen uint64

	auth     atomic.Int32
	values   *Store
	inflight atomic.Int64 // queued or being written

	done       chan struct{}
	closeOnce  sync.Once
	writerDone chan struct{}
}

// New wraps nc and starts its writer goroutine. br must be the reader that
// consumed the upgrade request, so bytes already buffered are not lost. The
// inactivity timer is armed according to opts.Timeout.
func New(nc net.Conn, br *bufio.Reader, info Info, opts Options) *Conn {
	if br == nil {
		br = bufio.NewReader(nc)
	}
	if info.Query == nil {
		info.Query = map[string]string{}
	}
	if info.Time.IsZero() {
		info.Time = time.Now()
	}
	c := &Conn{
		Info:       info,
		nc:         nc,
		reader:     br,
		out:        concurrency.NewOutbox(opts.OutboxLimit),
		sender:     opts.Sender,
		onTimeout:  opts.OnTimeout,
		values:     NewStore(),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.log = opts.Logger.With().
		Int64("conn_id", info.ID).
		Str("ip", info.IP).
		Int("port", info.Port).
		Logger()

	go c.writeLoop()
	c.ChangeTimeout(opts.Timeout)
	return c
}

// Reader returns the buffered stream frames are read from.
func (c *Conn) Reader() *bufio.Reader { return c.reader }

// NetConn exposes the underlying socket.
func (c *Conn) NetConn() net.Conn { return c.nc }

// Logger returns the connection's child logger.
func (c *Conn) Logger() *zerolog.Logger { return &c.log }

// Store returns the per-connection key/value store.
func (c *Conn) Store() *Store { return c.values }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Write queues raw bytes (an encoded frame or the handshake response) for the
// writer goroutine. It never blocks on the socket.
func (c *Conn) Write(raw []byte) error {
	if c.Closed() {
		return ErrConnClosed
	}
	c.inflight.Add(1)
	if err := c.out.Push(raw); err != nil {
		c.inflight.Add(-1)
		if errors.Is(err, concurrency.ErrOutboxClosed) {
			return ErrConnClosed
		}
		return err
	}
	return nil
}

// Pending returns the number of frames not yet written to the socket.
func (c *Conn) Pending() int { return int(c.inflight.Load()) }

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.out.Ready():
			if !c.flush() {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) flush() bool {
	for {
		raw, ok := c.out.Pop()
		if !ok {
			return true
		}
		_, err := c.nc.Write(raw)
		c.inflight.Add(-1)
		if err != nil {
			if !c.Closed() {
				c.log.Warn().Err(err).Msg("socket write failed")
				c.Close()
			}
			return false
		}
	}
}

// Flush waits up to d for queued frames to reach the socket.
func (c *Conn) Flush(d time.Duration) {
	deadline := time.Now().Add(d)
	for c.Pending() > 0 && !c.Closed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops the timer and the writer and closes the socket. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.timerGen++
		c.mu.Unlock()

		close(c.done)
		c.out.Close()
		err = c.nc.Close()
	})
	return err
}

// Timeout returns the effective inactivity timeout.
func (c *Conn) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// ChangeTimeout re-arms the inactivity timer with d. A zero d disarms it.
// The timer is not reset by traffic; it fires once per arming.
func (c *Conn) ChangeTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
	c.timeout = d
	if d <= 0 || c.Closed() {
		return
	}
	gen := c.timerGen
	c.timer = time.AfterFunc(d, func() { c.expire(gen) })
}

func (c *Conn) expire(gen uint64) {
	c.mu.Lock()
	stale := gen != c.timerGen
	if !stale {
		c.timer = nil
	}
	c.mu.Unlock()
	if stale || c.Closed() {
		return
	}
	if c.onTimeout != nil {
		c.onTimeout(c)
		return
	}
	c.Close()
}

// Auth returns the current authentication state.
func (c *Conn) Auth() AuthState { return AuthState(c.auth.Load()) }

// SetAuth sets the authentication state directly, for external providers.
func (c *Conn) SetAuth(a AuthState) { c.auth.Store(int32(a)) }

// Authenticate compares key against the "authkey" URL query parameter.
// An empty key yields Anonymous.
func (c *Conn) Authenticate(key string) AuthState {
	var state AuthState
	switch {
	case key == "":
		state = Anonymous
	case key == c.Query["authkey"]:
		state = Authenticated
	default:
		state = Unauthenticated
	}
	c.SetAuth(state)
	c.log.Info().Str("auth", state.String()).Msg("websocket authentication")
	return state
}

// Nickname returns the nickname, empty if never set.
func (c *Conn) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

// SetNickname assigns name as is. Collision handling belongs to the registry.
func (c *Conn) SetNickname(name string) {
	c.mu.Lock()
	c.nickname = name
	c.mu.Unlock()
}

// SendSelf delivers msg to this connection through the transfer engine.
func (c *Conn) SendSelf(msg any) {
	if c.sender == nil {
		c.log.Warn().Msg("sendSelf without sender")
		return
	}
	c.sender.SendOne(msg, c)
}

// Field returns a queryable attribute by name.
func (c *Conn) Field(name string) (string, bool) {
	switch name {
	case "id":
		return strconv.FormatInt(c.ID, 10), true
	case "ip":
		return c.IP, true
	case "port":
		return strconv.Itoa(c.Port), true
	case "nickname":
		return c.Nickname(), true
	case "userAgent":
		return c.UserAgent, true
	case "origin":
		return c.Origin, true
	case "url":
		return c.URL, true
	case "time":
		return c.Time.Format(time.RFC3339Nano), true
	case "auth":
		return c.Auth().String(), true
	}
	return "", false
}

// String identifies the connection in logs.
func (c *Conn) String() string {
	return strconv.FormatInt(c.ID, 10) + "@" + net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}
