// File: protocol/frame_codec.go
// Package protocol implements the buffer-level frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ParseFrame/Decode work on one complete frame held in memory; Encode builds a
// single final text frame. Length selection is symmetric: 7-bit inline for
// payloads below 126 bytes, 16-bit extended up to 0xFFFF, 64-bit extended above.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned by Decode for a close frame. It signals a
// normal peer close, not a data error.
var ErrConnectionClosed = errors.New("opcode 0x8: websocket connection is closed by the client")

// ControlSignal is returned by Decode for ping and pong frames so the caller can
// route them to control handling instead of the dispatcher.
type ControlSignal struct {
	Opcode  byte
	Payload []byte
}

func (c *ControlSignal) Error() string {
	return fmt.Sprintf("opcode 0x%x: %s control frame", c.Opcode, OpcodeName(c.Opcode))
}

// ParseFrame decodes the frame at the start of raw and returns it with the
// number of bytes consumed. Incomplete input yields ErrShortFrame.
func ParseFrame(raw []byte, limit int64) (*Frame, int, error) {
	if limit <= 0 {
		limit = MaxFramePayload
	}
	if len(raw) < 2 {
		return nil, 0, ErrShortFrame
	}
	f := &Frame{
		Fin:    raw[0]&FinBit != 0,
		Rsv:    raw[0] & RsvBits,
		Opcode: raw[0] & OpcodeBits,
		Masked: raw[1]&MaskBit != 0,
		Length: uint64(raw[1] & LenBits),
	}
	offset := 2

	switch f.Length {
	case lenExtended16:
		if len(raw) < offset+2 {
			return nil, 0, fmt.Errorf("%w: extended 16-bit length", ErrShortFrame)
		}
		f.Length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case lenExtended64:
		if len(raw) < offset+8 {
			return nil, 0, fmt.Errorf("%w: extended 64-bit length", ErrShortFrame)
		}
		f.Length = binary.BigEndian.Uint64(raw[offset:])
		offset += 8
	}

	if f.Length > uint64(limit) {
		return f, 0, ErrFrameTooLarge
	}

	if f.Masked {
		if len(raw) < offset+4 {
			return nil, 0, fmt.Errorf("%w: mask key", ErrShortFrame)
		}
		copy(f.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(f.Length)
	if len(raw) < total {
		return nil, 0, fmt.Errorf("%w: payload truncated", ErrShortFrame)
	}
	f.Payload = make([]byte, f.Length)
	copy(f.Payload, raw[offset:total])
	if f.Masked {
		Mask(f.Payload, f.MaskKey)
	}
	return f, total, nil
}

// Decode turns one complete frame into its payload string. A close frame fails
// with ErrConnectionClosed, ping and pong fail with a *ControlSignal.
func Decode(raw []byte) (string, error) {
	f, _, err := ParseFrame(raw, MaxFramePayload)
	if err != nil {
		return "", err
	}
	switch f.Opcode {
	case OpcodeClose:
		return "", ErrConnectionClosed
	case OpcodePing, OpcodePong:
		return "", &ControlSignal{Opcode: f.Opcode, Payload: f.Payload}
	}
	return string(f.Payload), nil
}

// Encode frames payload as a single final text frame. With mask set a fresh
// random key is generated and placed after the length field(s).
func Encode(payload string, mask bool) ([]byte, error) {
	return EncodeFrame(OpcodeText, []byte(payload), mask)
}

// EncodeFrame serializes payload with fin=1, rsv=0 and the given opcode.
// The payload slice is not modified.
func EncodeFrame(opcode byte, payload []byte, mask bool) ([]byte, error) {
	if IsControl(opcode) && len(payload) > MaxControlPayloadLen {
		return nil, ErrControlTooLarge
	}
	plen := len(payload)

	var hdr [MaxFrameHeaderLen]byte
	hdr[0] = FinBit | (opcode & OpcodeBits)
	var maskBit byte
	if mask {
		maskBit = MaskBit
	}
	n := 2
	switch {
	case plen < lenExtended16:
		hdr[1] = byte(plen) | maskBit
	case plen <= 0xFFFF:
		hdr[1] = lenExtended16 | maskBit
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
		n += 2
	default:
		hdr[1] = lenExtended64 | maskBit
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
		n += 8
	}

	var key [4]byte
	if mask {
		var err error
		if key, err = NewMaskKey(); err != nil {
			return nil, err
		}
		copy(hdr[n:], key[:])
		n += 4
	}

	buf := make([]byte, n+plen)
	copy(buf, hdr[:n])
	copy(buf[n:], payload)
	if mask {
		Mask(buf[n:], key)
	}
	return buf, nil
}

// EncodeControl builds an unmasked control frame; payloads above 125 bytes are truncated.
func EncodeControl(opcode byte, payload []byte) []byte {
	if len(payload) > MaxControlPayloadLen {
		payload = payload[:MaxControlPayloadLen]
	}
	buf, _ := EncodeFrame(opcode, payload, false)
	return buf
}

// EncodeClose builds an unmasked close frame carrying a status code and reason.
func EncodeClose(code uint16, reason string) []byte {
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, code)
	payload = append(payload, reason...)
	return EncodeControl(OpcodeClose, payload)
}

// CloseCode extracts the status code of a close frame payload, or
// CloseNoStatusRcvd when the payload carries none.
func CloseCode(payload []byte) uint16 {
	if len(payload) < 2 {
		return CloseNoStatusRcvd
	}
	return binary.BigEndian.Uint16(payload)
}
