// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame representation and stream decoding.
//
// ReadFrame consumes exactly one frame from a byte stream, so frames coalesced
// into one TCP segment or split across several are both handled by the caller's
// buffered reader.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame errors.
var (
	ErrShortFrame        = errors.New("frame too short")
	ErrFrameTooLarge     = errors.New("frame payload exceeds maximum allowed size")
	ErrControlTooLarge   = errors.New("control frame payload exceeds 125 bytes")
	ErrFragmentedControl = errors.New("control frame must not be fragmented")
	ErrBadLength         = errors.New("frame length has the most significant bit set")
	ErrMessageTooBig     = errors.New("frame payload too large to skip")
)

// skipFactor bounds how far past the limit an oversized payload is still
// drained rather than treated as fatal.
const skipFactor = 4

// Frame is one decoded RFC 6455 wire unit. Payload is always unmasked.
type Frame struct {
	Fin     bool
	Rsv     byte // rsv1..rsv3 in bits 6..4 of the first byte
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return IsControl(f.Opcode)
}

// Rsv1, Rsv2 and Rsv3 expose the reserved bits individually.
func (f *Frame) Rsv1() bool { return f.Rsv&0x40 != 0 }
func (f *Frame) Rsv2() bool { return f.Rsv&0x20 != 0 }
func (f *Frame) Rsv3() bool { return f.Rsv&0x10 != 0 }

// String renders the header fields for wire-level debugging.
func (f *Frame) String() string {
	return fmt.Sprintf("fin:%t rsv1:%t rsv2:%t rsv3:%t opcode:0x%x(%s) mask:%t len:%d key:% x",
		f.Fin, f.Rsv1(), f.Rsv2(), f.Rsv3(), f.Opcode, OpcodeName(f.Opcode), f.Masked, f.Length, f.MaskKey)
}

// ReadFrame reads one frame from r. Payloads longer than limit but within
// skipFactor times limit are drained from the stream and reported with
// ErrFrameTooLarge together with the header-only frame, leaving r positioned
// at the next frame. Longer payloads are not read and yield ErrMessageTooBig;
// a 64-bit length with the top bit set yields ErrBadLength. Both leave the
// stream unusable. A limit <= 0 selects MaxFramePayload.
func ReadFrame(r io.Reader, limit int64) (*Frame, error) {
	if limit <= 0 {
		limit = MaxFramePayload
	}
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		Fin:    hdr[0]&FinBit != 0,
		Rsv:    hdr[0] & RsvBits,
		Opcode: hdr[0] & OpcodeBits,
		Masked: hdr[1]&MaskBit != 0,
		Length: uint64(hdr[1] & LenBits),
	}

	switch f.Length {
	case lenExtended16:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		f.Length = uint64(binary.BigEndian.Uint16(ext[:]))
	case lenExtended64:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		f.Length = binary.BigEndian.Uint64(ext[:])
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, err
		}
	}

	if f.Length > 1<<63-1 {
		return f, ErrBadLength
	}
	if f.Length > uint64(limit) {
		if f.Length > skipCeiling(limit) {
			return f, ErrMessageTooBig
		}
		if _, err := io.CopyN(io.Discard, r, int64(f.Length)); err != nil {
			return nil, err
		}
		return f, ErrFrameTooLarge
	}

	f.Payload = make([]byte, f.Length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, err
	}
	if f.Masked {
		Mask(f.Payload, f.MaskKey)
	}

	if f.IsControl() {
		if f.Length > MaxControlPayloadLen {
			return f, ErrControlTooLarge
		}
		if !f.Fin {
			return f, ErrFragmentedControl
		}
	}
	return f, nil
}

func skipCeiling(limit int64) uint64 {
	if uint64(limit) > (1<<63-1)/skipFactor {
		return 1<<63 - 1
	}
	return uint64(limit) * skipFactor
}
