// File: server/gate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Admission gate: reserves total and per-IP slots before the pacing delays, so
// concurrent attempts cannot overshoot the ceilings. A slot is released when
// the connection leaves the registry or the attempt is rejected.

package server

import "sync"

type gate struct {
	mu         sync.Mutex
	maxConns   int
	maxIPConns int
	total      int
	perIP      map[string]int
}

func newGate(maxConns, maxIPConns int) *gate {
	return &gate{
		maxConns:   maxConns,
		maxIPConns: maxIPConns,
		perIP:      make(map[string]int),
	}
}

// acquire reserves a slot for ip; limits are checked as current + 1 <= max.
func (g *gate) acquire(ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conns := g.total + 1; conns > g.maxConns {
		return errMaxConns(conns, g.maxConns)
	}
	if conns := g.perIP[ip] + 1; conns > g.maxIPConns {
		return errMaxIPConns(ip, conns, g.maxIPConns)
	}
	g.total++
	g.perIP[ip]++
	return nil
}

func (g *gate) release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.total > 0 {
		g.total--
	}
	if n := g.perIP[ip]; n <= 1 {
		delete(g.perIP, ip)
	} else {
		g.perIP[ip] = n - 1
	}
}

func (g *gate) counts(ip string) (total, fromIP int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total, g.perIP[ip]
}
