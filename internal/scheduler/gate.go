package scheduler

import "sync"

// gate is a resettable level-triggered signal, the channel equivalent of a
// threading event: Set closes the current channel, Clear swaps in a fresh one.
// Waiters must grab Done() before blocking; a waiter that raced a Clear sees
// the historical Set, which is the same window a condition variable has.
type gate struct {
	mu sync.Mutex
	on bool
	ch chan struct{}
}

func newGate(on bool) *gate {
	g := &gate{on: on, ch: make(chan struct{})}
	if on {
		close(g.ch)
	}
	return g
}

func (g *gate) Set() {
	g.mu.Lock()
	if !g.on {
		g.on = true
		close(g.ch)
	}
	g.mu.Unlock()
}

func (g *gate) Clear() {
	g.mu.Lock()
	if g.on {
		g.on = false
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
}

func (g *gate) On() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.on
}

// Done returns a channel that is closed while the gate is set.
func (g *gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}
