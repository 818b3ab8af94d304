// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection for a running server.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and atomic updates with reload listeners
//   - A metrics registry updated by the server on every lifecycle event
//   - Named debug probes, including process and platform probes
package control
