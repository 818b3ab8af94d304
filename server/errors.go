// File: server/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/momentics/hioload-rws/api"
)

// Admission and lifecycle errors. Admission failures are returned wrapped in
// *api.Error carrying the client-facing message.
var (
	ErrInvalidConfig   = errors.New("invalid server config")
	ErrNoUpgrade       = errors.New("upgrade header missing")
	ErrNoKey           = errors.New("websocket key missing")
	ErrVersion         = errors.New("unsupported websocket version")
	ErrSubprotocol     = errors.New("unsupported subprotocol")
	ErrMaxConns        = errors.New("too many connections")
	ErrMaxIPConns      = errors.New("too many connections from ip")
	ErrUnauthenticated = errors.New("connection not authenticated")
	ErrServerClosed    = errors.New("server closed")
)

func errNoUpgrade() error {
	return api.Wrap(api.ErrCodeBadHandshake, ErrNoUpgrade,
		`HTTP/1.1 400 Bad Request. The "Upgrade: websocket" HTTP header is not sent from the client.`)
}

func errNoKey() error {
	return api.Wrap(api.ErrCodeBadHandshake, ErrNoKey, `Client didn't send "Sec-Websocket-Key" header.`)
}

func errVersion(got string, want int) error {
	return api.Wrap(api.ErrCodeVersion, ErrVersion,
		fmt.Sprintf("Websocket version %s is not supported. Valid version: %d.", got, want))
}

func errSubprotocol(offered []string, want string) error {
	return api.Wrap(api.ErrCodeSubprotocol, ErrSubprotocol,
		fmt.Sprintf(`None of the requested subprotocols "%s" is supported by the server. Supported subprotocol is "%s".`,
			strings.Join(offered, ","), want))
}

func errMaxConns(conns, max int) error {
	return api.Wrap(api.ErrCodeConnLimit, ErrMaxConns,
		fmt.Sprintf("Total connections: %d  Max allowed: %d", conns, max))
}

func errMaxIPConns(ip string, conns, max int) error {
	return api.Wrap(api.ErrCodeConnLimit, ErrMaxIPConns,
		fmt.Sprintf("Total connections from IP %s: %d  Max allowed: %d", ip, conns, max)).
		WithContext("ip", ip)
}

func errUnauthenticated(ip, userAgent string) error {
	return api.Wrap(api.ErrCodeUnauthorized, ErrUnauthenticated,
		fmt.Sprintf("Socket is not authenticated! Client IP: %s , userAgent: %s", ip, userAgent))
}

// clientMessage returns the text sent to the peer for err.
func clientMessage(err error) string {
	var ae *api.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// httpStatus maps an admission error to the pre-handshake HTTP status.
func httpStatus(err error) int {
	var ae *api.Error
	if errors.As(err, &ae) && ae.Code == api.ErrCodeConnLimit {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
