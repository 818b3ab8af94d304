// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ListenerConfig holds configuration for the TCP listener.
type ListenerConfig struct {
	Addr      string        // TCP address to bind (e.g., ":3000")
	ReusePort bool          // SO_REUSEPORT where supported
	KeepAlive time.Duration // keep-alive period for accepted connections; <0 disables
}

// DefaultListenerConfig returns a config bound to addr with a 3 minute
// keep-alive period.
func DefaultListenerConfig(addr string) *ListenerConfig {
	return &ListenerConfig{Addr: addr, KeepAlive: 3 * time.Minute}
}

// Listen opens the listening socket described by cfg.
func Listen(ctx context.Context, cfg *ListenerConfig) (net.Listener, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("tcp listen: address is not defined")
	}
	lc := net.ListenConfig{
		KeepAlive: cfg.KeepAlive,
		Control:   controlFunc(cfg),
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen failed: %w", err)
	}
	return &listener{Listener: ln, keepAlive: cfg.KeepAlive}, nil
}

// listener tunes every accepted connection.
type listener struct {
	net.Listener
	keepAlive time.Duration
}

func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		if l.keepAlive >= 0 {
			_ = tc.SetKeepAlive(true)
			if l.keepAlive > 0 {
				_ = tc.SetKeepAlivePeriod(l.keepAlive)
			}
		}
	}
	return c, nil
}
