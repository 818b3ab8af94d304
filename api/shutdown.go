// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown is implemented by components that drain their
// connections before stopping. Shutdown returns ctx.Err() when the drain does
// not finish in time.
type GracefulShutdown interface {
	Shutdown(ctx context.Context) error
}
