package events

import "sync"

// Registration is a cancellation token for a single subscription.
type Registration struct {
	once  sync.Once
	bus   *Bus
	topic Topic
	id    uint64
}

// Remove unsubscribes the handler. Safe to call more than once.
func (r *Registration) Remove() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.bus.remove(r.topic, r.id)
	})
}

// Registrations is a set of subscriptions released together.
type Registrations struct {
	mu   sync.Mutex
	regs []*Registration
}

// Add tracks a registration.
func (rs *Registrations) Add(r *Registration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.regs = append(rs.regs, r)
}

// RemoveAll removes every tracked registration and empties the set.
// Calling it on an empty set is a no-op.
func (rs *Registrations) RemoveAll() {
	rs.mu.Lock()
	regs := rs.regs
	rs.regs = nil
	rs.mu.Unlock()

	for _, r := range regs {
		r.Remove()
	}
}

// Len returns the number of tracked registrations.
func (rs *Registrations) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.regs)
}
