// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives shared by the server: the per-connection Outbox
// drained by a single writer goroutine, and the monotonic id generator used
// for connection and message ids.
package concurrency
