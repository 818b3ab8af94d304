// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the RFC 6455 wire layer for hioload-rws.
//
// Includes:
//   - Frame decoding from a byte stream (ReadFrame) and from a single buffer (ParseFrame, Decode)
//   - Text/control frame encoding with optional random masking
//   - 7-bit, 16-bit and 64-bit payload length encodings
//   - Sec-WebSocket-Accept computation and the 101 response header block
//
// Everything here is free of I/O side effects beyond the reader passed to ReadFrame.
package protocol
