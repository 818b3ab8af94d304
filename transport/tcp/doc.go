// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp opens the listening sockets used by the websocket server.
// On Linux the listener sets SO_REUSEADDR (and optionally SO_REUSEPORT)
// before bind; accepted connections get TCP_NODELAY and keep-alive.
package tcp
