package protocol_test

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rws/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 65535, 65536} {
		payload := strings.Repeat("x", size)
		enc, err := protocol.Encode(payload, false)
		require.NoError(t, err)

		got, err := protocol.Decode(enc)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, payload, got, "size %d", size)
	}
}

func TestEncodeLengthSelection(t *testing.T) {
	cases := []struct {
		size    int
		lenByte byte
		hdrLen  int
	}{
		{0, 0, 2},
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
	}
	for _, c := range cases {
		enc, err := protocol.Encode(strings.Repeat("a", c.size), false)
		require.NoError(t, err)
		assert.Equal(t, byte(0x81), enc[0], "fin=1 rsv=0 opcode=text")
		assert.Equal(t, c.lenByte, enc[1])
		assert.Len(t, enc, c.hdrLen+c.size)
	}
}

func TestEncodeMaskedUsesKeyAfterLength(t *testing.T) {
	payload := strings.Repeat("masked payload ", 20) // 300 bytes, 16-bit length
	enc, err := protocol.Encode(payload, true)
	require.NoError(t, err)

	require.Equal(t, byte(protocol.MaskBit|126), enc[1])
	var key [4]byte
	copy(key[:], enc[4:8])
	body := append([]byte(nil), enc[8:]...)
	protocol.Mask(body, key)
	assert.Equal(t, payload, string(body))

	got, err := protocol.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMaskInvolution(t *testing.T) {
	buf := []byte("The quick brown fox jumps over the lazy dog")
	orig := append([]byte(nil), buf...)
	vals := []byte{0x00, 0x01, 0x7f, 0x80, 0xff}
	for _, a := range vals {
		for _, b := range vals {
			for _, c := range vals {
				for _, d := range vals {
					key := [4]byte{a, b, c, d}
					protocol.Mask(buf, key)
					protocol.Mask(buf, key)
					require.Equal(t, orig, buf, "key % x", key)
				}
			}
		}
	}
}

func TestDecodeControlFrames(t *testing.T) {
	_, err := protocol.Decode(protocol.EncodeClose(protocol.CloseNormalClosure, "bye"))
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)

	_, err = protocol.Decode(protocol.EncodeControl(protocol.OpcodePing, []byte("p")))
	var sig *protocol.ControlSignal
	require.True(t, errors.As(err, &sig))
	assert.Equal(t, byte(protocol.OpcodePing), sig.Opcode)
	assert.Equal(t, []byte("p"), sig.Payload)

	_, err = protocol.Decode(protocol.EncodeControl(protocol.OpcodePong, nil))
	require.True(t, errors.As(err, &sig))
	assert.Equal(t, byte(protocol.OpcodePong), sig.Opcode)
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := protocol.Decode([]byte{0x81})
	assert.ErrorIs(t, err, protocol.ErrShortFrame)

	_, err = protocol.Decode([]byte{0x81, 0x05, 'a'})
	assert.ErrorIs(t, err, protocol.ErrShortFrame)
}

func TestDecodeClientFrameFromGobwas(t *testing.T) {
	for _, size := range []int{0, 10, 200, 70000} {
		payload := bytes.Repeat([]byte{'z'}, size)
		var buf bytes.Buffer
		require.NoError(t, ws.WriteFrame(&buf, ws.MaskFrame(ws.NewTextFrame(payload))))

		f, err := protocol.ReadFrame(&buf, 0)
		require.NoError(t, err)
		assert.True(t, f.Masked)
		assert.True(t, f.Fin)
		assert.Equal(t, byte(protocol.OpcodeText), f.Opcode)
		assert.Equal(t, payload, f.Payload)
	}
}

func TestEncodedFrameReadableByGobwas(t *testing.T) {
	payload := strings.Repeat("server", 30)
	enc, err := protocol.Encode(payload, false)
	require.NoError(t, err)

	f, err := ws.ReadFrame(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.True(t, f.Header.Fin)
	assert.False(t, f.Header.Masked)
	assert.Equal(t, ws.OpText, f.Header.OpCode)
	assert.Equal(t, payload, string(f.Payload))

	enc, err = protocol.Encode(payload, true)
	require.NoError(t, err)
	f, err = ws.ReadFrame(bytes.NewReader(enc))
	require.NoError(t, err)
	require.True(t, f.Header.Masked)
	ws.Cipher(f.Payload, f.Header.Mask, 0)
	assert.Equal(t, payload, string(f.Payload))
}

func TestReadFrameStream(t *testing.T) {
	first, _ := protocol.Encode("one", true)
	big, _ := protocol.Encode(strings.Repeat("b", 300), true)
	last, _ := protocol.Encode("two", true)

	stream := bufio.NewReader(bytes.NewReader(bytes.Join([][]byte{first, big, last}, nil)))

	f, err := protocol.ReadFrame(stream, 256)
	require.NoError(t, err)
	assert.Equal(t, "one", string(f.Payload))

	f, err = protocol.ReadFrame(stream, 256)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	assert.Equal(t, uint64(300), f.Length)

	f, err = protocol.ReadFrame(stream, 256)
	require.NoError(t, err)
	assert.Equal(t, "two", string(f.Payload))
}

func TestReadFrameFatalLengths(t *testing.T) {
	huge := []byte{0x81, 0xFF, 0x80, 0, 0, 0, 0, 0, 0, 1, 1, 2, 3, 4}
	f, err := protocol.ReadFrame(bytes.NewReader(huge), 256)
	assert.ErrorIs(t, err, protocol.ErrBadLength)
	require.NotNil(t, f)

	// 1 TiB announced, nothing behind it: must fail without draining.
	far := []byte{0x81, 0xFF, 0, 0, 0x01, 0, 0, 0, 0, 0, 1, 2, 3, 4}
	f, err = protocol.ReadFrame(bytes.NewReader(far), 256)
	assert.ErrorIs(t, err, protocol.ErrMessageTooBig)
	assert.Equal(t, uint64(1)<<40, f.Length)

	edge, _ := protocol.Encode(strings.Repeat("e", 1024), true)
	f, err = protocol.ReadFrame(bytes.NewReader(edge), 256)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	assert.Equal(t, uint64(1024), f.Length)

	over, _ := protocol.Encode(strings.Repeat("o", 1025), true)
	_, err = protocol.ReadFrame(bytes.NewReader(over), 256)
	assert.ErrorIs(t, err, protocol.ErrMessageTooBig)
}

func TestReadFrameRejectsOversizedControl(t *testing.T) {
	raw := []byte{0x89, 126, 0x00, 0x80}
	raw = append(raw, bytes.Repeat([]byte{0}, 128)...)
	_, err := protocol.ReadFrame(bytes.NewReader(raw), 0)
	assert.ErrorIs(t, err, protocol.ErrControlTooLarge)
}

func TestCloseCode(t *testing.T) {
	f, _, err := protocol.ParseFrame(protocol.EncodeClose(protocol.CloseGoingAway, ""), 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(protocol.CloseGoingAway), protocol.CloseCode(f.Payload))
	assert.Equal(t, uint16(protocol.CloseNoStatusRcvd), protocol.CloseCode(nil))
}
