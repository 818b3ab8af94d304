//go:build !linux
// +build !linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import "syscall"

// controlFunc leaves socket options at the platform defaults.
func controlFunc(cfg *ListenerConfig) func(network, address string, rc syscall.RawConn) error {
	return nil
}
