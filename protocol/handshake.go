// File: protocol/handshake.go
// Package protocol implements the server side of the RFC 6455 opening handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BuildResponse is a pure function of its inputs; writing the header block to
// the socket is left to the admission pipeline.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Constants used for handshake processing.
const (
	WebSocketGUID           = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection        = "Connection"
	HeaderUpgrade           = "Upgrade"
	HeaderSecWebSocketKey   = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer   = "Sec-WebSocket-Version"
	HeaderSecWebSocketProto = "Sec-WebSocket-Protocol"
	MaxHandshakeHeadersSize = 8192

	// ServerVersion is advertised in Sec-WebSocket-Server-Version.
	ServerVersion = "1.0.0"
)

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	h := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

// BuildResponse returns the complete 101 response header block, terminated by
// an empty line. Sec-WebSocket-Protocol is included only when the client
// offered at least one subprotocol.
func BuildResponse(clientKey string, version int, requested []string, subprotocol string, connID int64, timeout time.Duration) string {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: " + ComputeAcceptKey(clientKey) + "\r\n")
	sb.WriteString("Sec-WebSocket-Version: " + strconv.Itoa(version) + "\r\n")
	if len(requested) > 0 {
		sb.WriteString("Sec-WebSocket-Protocol: " + subprotocol + "\r\n")
	}
	sb.WriteString("Sec-WebSocket-Server-Version: " + ServerVersion + "\r\n")
	sb.WriteString("Sec-WebSocket-SocketID: " + strconv.FormatInt(connID, 10) + "\r\n")
	sb.WriteString("Sec-WebSocket-Timeout: " + strconv.FormatInt(timeout.Milliseconds(), 10) + "\r\n")
	sb.WriteString("\r\n")
	return sb.String()
}

// ParseSubprotocols splits a Sec-WebSocket-Protocol header value into tokens.
func ParseSubprotocols(h http.Header) []string {
	var out []string
	for _, v := range h.Values(HeaderSecWebSocketProto) {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// HeaderContainsToken checks if headerName contains the given token (case-insensitive).
func HeaderContainsToken(h http.Header, headerName, token string) bool {
	vals := h[http.CanonicalHeaderKey(headerName)]
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// HeadersSize returns the combined length of header names and values.
func HeadersSize(h http.Header) int {
	total := 0
	for k, vs := range h {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
	}
	return total
}
