// Package presence keeps the one authoritative online/offline view of peers.
package presence

import (
	"sync"
	"time"

	"github.com/matheus3301/rishta/internal/bus"
)

// Source tells where an observation came from.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Status is the cached presence of one peer.
type Status struct {
	Online bool
	At     time.Time
	Source Source
}

// Change is the payload of presence.changed events.
type Change struct {
	Peer   string
	Online bool
	At     time.Time
	Source Source
}

// Cache merges push and poll observations by last write wins on the
// observation timestamp. Subscribers see presence.changed only when the
// online flag of a peer actually flips.
type Cache struct {
	bus *bus.Bus

	mu      sync.RWMutex
	entries map[string]Status
}

// NewCache creates an empty cache publishing on b (may be nil).
func NewCache(b *bus.Bus) *Cache {
	return &Cache{bus: b, entries: make(map[string]Status)}
}

// Apply records an observation. Observations older than the cached one are
// discarded; ties go to the newer write. It reports whether the
// observation was applied.
func (c *Cache) Apply(peer string, online bool, at time.Time, src Source) bool {
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	cur, known := c.entries[peer]
	if known && at.Before(cur.At) {
		c.mu.Unlock()
		return false
	}
	c.entries[peer] = Status{Online: online, At: at, Source: src}
	flipped := !known || cur.Online != online
	c.mu.Unlock()

	if flipped {
		c.bus.Emit(bus.KindPresenceChanged, Change{Peer: peer, Online: online, At: at, Source: src})
	}
	return true
}

// Get returns the cached status of peer.
func (c *Cache) Get(peer string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[peer]
	return s, ok
}

// Online reports whether peer is known to be online.
func (c *Cache) Online(peer string) bool {
	s, _ := c.Get(peer)
	return s.Online
}

// Snapshot returns a copy of every cached status.
func (c *Cache) Snapshot() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Reset forgets everything. Used on logout.
func (c *Cache) Reset() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}
