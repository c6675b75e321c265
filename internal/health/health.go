// Package health tracks the process-wide healthy/unhealthy flag observed by
// a liveness probe. The cell is lock-free; the last writer wins.
package health

import "sync/atomic"

// State is a point-in-time snapshot of the health flag.
type State struct {
	Healthy bool
	Reason  string
}

// Cell is a monotonic, atomically-swapped health flag. Build one with
// NewCell, which starts it Unhealthy, matching the lifecycle in the loader's
// data model: a process is unhealthy until the first successful table
// initialization. The zero value holds no state, and Snapshot on it panics.
type Cell struct {
	state atomic.Pointer[State]
}

// NewCell returns a Cell that starts Unhealthy with the given reason.
func NewCell(startupReason string) *Cell {
	c := &Cell{}
	c.state.Store(&State{Healthy: false, Reason: startupReason})
	return c
}

// SetHealthy transitions the cell to Healthy.
func (c *Cell) SetHealthy() {
	c.state.Store(&State{Healthy: true})
}

// SetUnhealthy transitions the cell to Unhealthy with the given reason.
func (c *Cell) SetUnhealthy(reason string) {
	c.state.Store(&State{Healthy: false, Reason: reason})
}

// Snapshot returns the current state. Readers may observe a value that is
// briefly stale relative to a concurrent writer; no fairness is guaranteed.
func (c *Cell) Snapshot() State {
	return *c.state.Load()
}
