// File: server/peer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// peerAddr returns the client address, honoring reverse-proxy headers:
// X-Real-IP, then the first X-Forwarded-For hop, then the transport peer.
// The port comes from X-Real-Port when present.
func peerAddr(h http.Header, remote net.Addr) (string, int) {
	var host string
	var port int
	if remote != nil {
		if tcp, ok := remote.(*net.TCPAddr); ok {
			host, port = tcp.IP.String(), tcp.Port
		} else if hst, p, err := net.SplitHostPort(remote.String()); err == nil {
			host = hst
			port, _ = strconv.Atoi(p)
		} else {
			host = remote.String()
		}
	}

	ip := strings.TrimSpace(h.Get("X-Real-Ip"))
	if ip == "" {
		if fwd := h.Get("X-Forwarded-For"); fwd != "" {
			ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if ip == "" {
		ip = host
	}
	ip = strings.TrimPrefix(ip, "::ffff:")

	if p, err := strconv.Atoi(strings.TrimSpace(h.Get("X-Real-Port"))); err == nil && p > 0 {
		port = p
	}
	return ip, port
}

// flattenQuery keeps the first value of every URL query parameter.
func flattenQuery(req *http.Request) map[string]string {
	out := make(map[string]string)
	if req.URL == nil {
		return out
	}
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
