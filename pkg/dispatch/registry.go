package dispatch

import (
	"sync"
	"time"

	"github.com/skretail/console/pkg/apiclient"
)

// Registry keeps one Machine per console session, so an operator's scan
// survives page reloads but never leaks into another operator's form.
// Machines untouched for idleTimeout are swept on the next lookup.
type Registry struct {
	mu          sync.Mutex
	machines    map[string]*registered
	resetDelay  time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

type registered struct {
	machine  *Machine
	lastUsed time.Time
}

// NewRegistry creates a registry. A zero idleTimeout keeps machines until
// their session ends.
func NewRegistry(resetDelay, idleTimeout time.Duration) *Registry {
	return &Registry{
		machines:    map[string]*registered{},
		resetDelay:  resetDelay,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// For returns the session's machine, creating it around client on first use.
func (r *Registry) For(sessionID string, client apiclient.Requester) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)
	reg, ok := r.machines[sessionID]
	if !ok {
		reg = &registered{machine: NewMachine(client, r.resetDelay)}
		r.machines[sessionID] = reg
	}
	reg.lastUsed = now
	return reg.machine
}

// Drop forgets the session's machine.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	reg, ok := r.machines[sessionID]
	delete(r.machines, sessionID)
	r.mu.Unlock()
	if ok {
		reg.machine.Reset()
	}
}

// Len is the number of machines held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// sweep must be called with mu held.
func (r *Registry) sweep(now time.Time) {
	if r.idleTimeout <= 0 {
		return
	}
	for id, reg := range r.machines {
		if now.Sub(reg.lastUsed) > r.idleTimeout {
			delete(r.machines, id)
			reg.machine.Reset()
		}
	}
}
