package session

import (
	"sync"
	"sync/atomic"
)

// Gate is the process-wide busy flag: at most one turn holds it.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire takes the gate if it is free. The returned release function
// frees it and may be called any number of times.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.busy.Store(false) })
	}, true
}

func (g *Gate) Busy() bool {
	return g.busy.Load()
}
