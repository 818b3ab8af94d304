// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations.

package api

import "time"

// ServiceInfo describes a running server for status endpoints.
type ServiceInfo struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Subprotocol string    `json:"subprotocol"`
	Storage     string    `json:"storage"`
	StartedAt   time.Time `json:"startedAt"`
	Uptime      string    `json:"uptime"`
	Connections int       `json:"connections"`
}
