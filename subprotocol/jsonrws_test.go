package subprotocol_test

import (
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/internal/logging"
	"github.com/momentics/hioload-rws/session"
	"github.com/momentics/hioload-rws/storage"
	"github.com/momentics/hioload-rws/subprotocol"
)

type delivery struct {
	to  int64
	msg any
}

// recorder captures egress instead of writing to sockets.
type recorder struct {
	mu    sync.Mutex
	store storage.Storage
	out   []delivery
}

func (r *recorder) record(msg any, c *session.Conn) {
	r.mu.Lock()
	r.out = append(r.out, delivery{to: c.ID, msg: msg})
	r.mu.Unlock()
}

func (r *recorder) SendOne(msg any, c *session.Conn) { r.record(msg, c) }

func (r *recorder) Send(msg any, conns []*session.Conn) {
	for _, c := range conns {
		r.record(msg, c)
	}
}

func (r *recorder) Broadcast(msg any, sender *session.Conn) {
	for _, c := range r.store.Find(storage.Not(storage.ByID(sender.ID))) {
		r.record(msg, c)
	}
}

func (r *recorder) SendAll(msg any) {
	for _, c := range r.store.All() {
		r.record(msg, c)
	}
}

func (r *recorder) SendRoom(msg any, sender *session.Conn, name string) {
	room, ok := r.store.RoomFindOne(name)
	if !ok {
		return
	}
	for _, c := range r.store.Find(storage.IDIn(room.ConnIDs...)) {
		if c.ID != sender.ID {
			r.record(msg, c)
		}
	}
}

func (r *recorder) recipients() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.out))
	for _, d := range r.out {
		ids = append(ids, d.to)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *recorder) last() delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out[len(r.out)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.out = nil
	r.mu.Unlock()
}

type fixture struct {
	rec   *recorder
	store storage.Storage
	deps  subprotocol.Deps
	conns map[int64]*session.Conn
}

func newFixture(t *testing.T, ids ...int64) *fixture {
	t.Helper()
	store := storage.NewMemory(storage.Hooks{})
	rec := &recorder{store: store}
	log := logging.Nop()
	f := &fixture{
		rec:   rec,
		store: store,
		deps:  subprotocol.Deps{Transfer: rec, Storage: store, Log: &log},
		conns: make(map[int64]*session.Conn),
	}
	for _, id := range ids {
		server, client := net.Pipe()
		c := session.New(server, nil, session.Info{ID: id, IP: "127.0.0.1"}, session.Options{Logger: log, Sender: rec})
		t.Cleanup(func() {
			c.Close()
			client.Close()
		})
		store.Add(c)
		f.conns[id] = c
	}
	return f
}

func (f *fixture) dispatch(t *testing.T, from int64, raw string) error {
	t.Helper()
	msg, err := subprotocol.JSONRWS{}.Incoming(raw)
	require.NoError(t, err)
	return subprotocol.JSONRWS{}.Process(msg, f.conns[from], f.deps)
}

func TestSendToListSkipsUnregistered(t *testing.T) {
	f := newFixture(t, 10, 20, 21)
	require.NoError(t, f.dispatch(t, 10, `{"id":1,"from":10,"to":[20,21,22],"cmd":"socket/send","payload":"hi"}`))
	assert.Equal(t, []int64{20, 21}, f.rec.recipients())
}

func TestSendOne(t *testing.T) {
	f := newFixture(t, 10, 20)
	require.NoError(t, f.dispatch(t, 10, `{"id":1,"from":10,"to":20,"cmd":"socket/sendone","payload":"hi"}`))
	assert.Equal(t, []int64{20}, f.rec.recipients())

	f.rec.reset()
	err := f.dispatch(t, 10, `{"id":1,"from":10,"to":99,"cmd":"socket/sendone","payload":"hi"}`)
	assert.ErrorIs(t, err, subprotocol.ErrUnknownRecipient)
	assert.Empty(t, f.rec.recipients())
}

func TestBroadcastExcludesSender(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	require.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":0,"cmd":"socket/broadcast","payload":"x"}`))
	assert.Equal(t, []int64{2, 3}, f.rec.recipients())
}

func TestSendAllIncludesSender(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	require.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":0,"cmd":"socket/sendall","payload":"x"}`))
	assert.Equal(t, []int64{1, 2, 3}, f.rec.recipients())
}

func TestNickEchoesResolvedName(t *testing.T) {
	f := newFixture(t, 1611937889492111, 1611937889492222)
	require.NoError(t, f.dispatch(t, 1611937889492111, `{"id":1,"from":1611937889492111,"to":0,"cmd":"socket/nick","payload":"Peter"}`))
	require.NoError(t, f.dispatch(t, 1611937889492222, `{"id":2,"from":1611937889492222,"to":0,"cmd":"socket/nick","payload":"Peter"}`))

	last := f.rec.last()
	assert.Equal(t, int64(1611937889492222), last.to)
	assert.Equal(t, "Peter92222", last.msg.(*subprotocol.Envelope).Payload)

	err := f.dispatch(t, 1611937889492111, `{"id":3,"from":1611937889492111,"to":0,"cmd":"socket/nick","payload":5}`)
	assert.ErrorIs(t, err, subprotocol.ErrBadPayload)
}

func TestRoomCommands(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	require.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":0,"cmd":"room/enter","payload":"chat"}`))
	assert.Equal(t, "Entered in the room 'chat'", f.rec.last().msg.(*subprotocol.Envelope).Payload)
	require.NoError(t, f.dispatch(t, 2, `{"id":1,"from":2,"to":0,"cmd":"room/enter","payload":"chat"}`))

	f.rec.reset()
	require.NoError(t, f.dispatch(t, 1, `{"id":2,"from":1,"to":"chat","cmd":"room/send","payload":"hello room"}`))
	assert.Equal(t, []int64{2}, f.rec.recipients())

	f.rec.reset()
	require.NoError(t, f.dispatch(t, 1, `{"id":3,"from":1,"to":"nowhere","cmd":"room/send","payload":"x"}`))
	assert.Empty(t, f.rec.recipients())

	require.NoError(t, f.dispatch(t, 1, `{"id":4,"from":1,"to":0,"cmd":"info/room/listmy"}`))
	assert.Equal(t, []storage.Room{{Name: "chat", ConnIDs: []int64{1, 2}}}, f.rec.last().msg.(*subprotocol.Envelope).Payload)

	require.NoError(t, f.dispatch(t, 1, `{"id":5,"from":1,"to":0,"cmd":"room/exit","payload":"chat"}`))
	assert.Equal(t, "Exited from the room 'chat'", f.rec.last().msg.(*subprotocol.Envelope).Payload)
	require.NoError(t, f.dispatch(t, 2, `{"id":6,"from":2,"to":0,"cmd":"room/exitall"}`))
	assert.Equal(t, "Exited from all rooms", f.rec.last().msg.(*subprotocol.Envelope).Payload)
	assert.Empty(t, f.store.RoomList())
}

func TestInfoCommands(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.store.SetNickname(f.conns[2], "bob")

	require.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":1,"cmd":"info/socket/id"}`))
	assert.Equal(t, int64(1), f.rec.last().msg.(*subprotocol.Envelope).Payload)

	require.NoError(t, f.dispatch(t, 1, `{"id":2,"from":1,"to":1,"cmd":"info/socket/list"}`))
	assert.Equal(t, []subprotocol.ConnSummary{{ID: 1}, {ID: 2, Nickname: "bob"}}, f.rec.last().msg.(*subprotocol.Envelope).Payload)

	require.NoError(t, f.dispatch(t, 1, `{"id":3,"from":1,"to":1,"cmd":"info/room/list"}`))
	assert.Equal(t, []storage.Room{}, f.rec.last().msg.(*subprotocol.Envelope).Payload)
}

func TestRouteForwarded(t *testing.T) {
	f := newFixture(t, 1)
	var got *subprotocol.Envelope
	var from *session.Conn
	f.deps.Route = func(env *subprotocol.Envelope, c *session.Conn) {
		got, from = env, c
	}
	require.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":0,"cmd":"route","payload":{"uri":"shop/login","body":{"username":"mark"}}}`))
	require.NotNil(t, got)
	assert.Equal(t, "route", got.Cmd)
	assert.Same(t, f.conns[1], from)
	assert.Empty(t, f.rec.recipients())
}

func TestUnknownCommandIgnored(t *testing.T) {
	f := newFixture(t, 1, 2)
	assert.NoError(t, f.dispatch(t, 1, `{"id":1,"from":1,"to":0,"cmd":"socket/teleport","payload":"x"}`))
	assert.Empty(t, f.rec.recipients())
}
