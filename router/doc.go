// File: router/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package router executes "route" commands. A transaction carries the uri
// and body sent by the client; routes are matched in definition order,
// either as case-insensitive regular expressions or as patterns with
// ":param" segments, and the first match runs its handler chain.
package router
