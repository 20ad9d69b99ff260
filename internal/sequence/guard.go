// Package sequence discards out-of-order server responses. Every request takes a
// ticket; a response is applied only if no newer response for the same key (and no
// newer reset) has been applied already.
package sequence

// Guard is not safe for concurrent use. Callers hold their own lock around it.
type Guard struct {
	next    uint64
	floor   uint64
	applied map[int64]uint64
}

// Ticket returns a number greater than every ticket issued before.
func (g *Guard) Ticket() uint64 {
	g.next++
	return g.next
}

// Issued returns the last ticket handed out.
func (g *Guard) Issued() uint64 {
	return g.next
}

// Fresh reports whether a response for key issued with ticket t may still be applied.
func (g *Guard) Fresh(key int64, t uint64) bool {
	if t < g.floor {
		return false
	}
	return t >= g.applied[key]
}

// Mark records that the response for key with ticket t has been applied.
func (g *Guard) Mark(key int64, t uint64) {
	if g.applied == nil {
		g.applied = make(map[int64]uint64)
	}
	if t > g.applied[key] {
		g.applied[key] = t
	}
}

// Newer reports whether a response issued after ticket t was applied for key.
func (g *Guard) Newer(key int64, t uint64) bool {
	return g.applied[key] > t
}

// Reset invalidates every ticket issued so far. It is used for full snapshots and
// on logout.
func (g *Guard) Reset() {
	g.next++
	g.floor = g.next
	g.applied = nil
}

// ResetAt makes t the new floor when it is newer than the current one and forgets
// per key state older than t. It reports whether t was accepted.
func (g *Guard) ResetAt(t uint64) bool {
	if t < g.floor {
		return false
	}
	g.floor = t
	for k, v := range g.applied {
		if v <= t {
			delete(g.applied, k)
		}
	}
	return true
}
