// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection context attached at admission time. A Conn carries the peer
// metadata, the authentication state, the optional nickname, the inactivity
// timer, a key/value store for application state, and the egress queue drained
// by its own writer goroutine.
//
// A Conn is mutated only by its owning ingestion path and by registry removal.

package session
