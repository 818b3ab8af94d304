package session_test

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/internal/logging"
	"github.com/momentics/hioload-rws/session"
)

func newPipeConn(t *testing.T, info session.Info, opts session.Options) (*session.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	opts.Logger = logging.Nop()
	c := session.New(server, nil, info, opts)
	t.Cleanup(func() {
		c.Close()
		client.Close()
	})
	return c, client
}

func TestConnWriteReachesSocket(t *testing.T) {
	c, peer := newPipeConn(t, session.Info{ID: 1}, session.Options{})

	require.NoError(t, c.Write([]byte("hello")))
	buf := make([]byte, 5)
	_, err := io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestConnCloseIdempotent(t *testing.T) {
	c, _ := newPipeConn(t, session.Info{ID: 1}, session.Options{})

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.Write([]byte("x")), session.ErrConnClosed)
}

func TestConnTimeoutFiresOnce(t *testing.T) {
	var fired atomic.Int32
	c, _ := newPipeConn(t, session.Info{ID: 1}, session.Options{
		Timeout: 50 * time.Millisecond,
		OnTimeout: func(c *session.Conn) {
			fired.Add(1)
			c.Close()
		},
	})

	time.Sleep(60 * time.Millisecond)
	require.Eventually(t, c.Closed, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestConnZeroTimeoutNeverFires(t *testing.T) {
	var fired atomic.Int32
	c, _ := newPipeConn(t, session.Info{ID: 1}, session.Options{
		OnTimeout: func(*session.Conn) { fired.Add(1) },
	})

	time.Sleep(100 * time.Millisecond)
	assert.False(t, c.Closed())
	assert.Zero(t, fired.Load())
}

func TestConnChangeTimeoutRearms(t *testing.T) {
	var fired atomic.Int32
	c, _ := newPipeConn(t, session.Info{ID: 1}, session.Options{
		Timeout:   30 * time.Millisecond,
		OnTimeout: func(*session.Conn) { fired.Add(1) },
	})

	c.ChangeTimeout(0)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())

	c.ChangeTimeout(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, c.Timeout())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnAuthenticate(t *testing.T) {
	c, _ := newPipeConn(t, session.Info{ID: 1, Query: map[string]string{"authkey": "TRTmrt"}}, session.Options{})

	assert.Equal(t, session.Unauthenticated, c.Auth())
	assert.False(t, c.Auth().Passed())

	assert.Equal(t, session.Unauthenticated, c.Authenticate("wrong"))
	assert.Equal(t, session.Authenticated, c.Authenticate("TRTmrt"))
	assert.True(t, c.Auth().Passed())
	assert.Equal(t, session.Anonymous, c.Authenticate(""))
	assert.True(t, c.Auth().Passed())
}

func TestConnFields(t *testing.T) {
	c, _ := newPipeConn(t, session.Info{ID: 42, IP: "10.0.0.1", Port: 5000, UserAgent: "Mozilla"}, session.Options{})
	c.SetNickname("peter")

	for name, want := range map[string]string{
		"id": "42", "ip": "10.0.0.1", "port": "5000", "nickname": "peter", "userAgent": "Mozilla",
	} {
		got, ok := c.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := c.Field("unknown")
	assert.False(t, ok)
}

type recordSender struct{ got []any }

func (r *recordSender) SendOne(msg any, _ *session.Conn) { r.got = append(r.got, msg) }

func TestConnSendSelf(t *testing.T) {
	rec := &recordSender{}
	c, _ := newPipeConn(t, session.Info{ID: 1}, session.Options{Sender: rec})
	c.SendSelf("ping")
	assert.Equal(t, []any{"ping"}, rec.got)
}
