// Package typing debounces the local typing signal and tracks the remote one.
package typing

import (
	"sync"
	"time"
)

// DefaultIdle is how long after the last keystroke stop-typing is sent.
const DefaultIdle = 1500 * time.Millisecond

// SignalFunc delivers a typing (true) or stop-typing (false) signal for a
// peer. It is called with the emitter's lock held and must not block.
type SignalFunc func(peer string, typing bool)

type burst struct {
	deadline time.Time
	timer    *time.Timer
}

// Emitter turns keystrokes into at most one typing signal per burst and a
// stop-typing signal once the burst goes idle or the message is sent.
type Emitter struct {
	idle   time.Duration
	signal SignalFunc

	mu     sync.Mutex
	active map[string]*burst
}

// NewEmitter creates an emitter. idle <= 0 selects DefaultIdle.
func NewEmitter(idle time.Duration, signal SignalFunc) *Emitter {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Emitter{idle: idle, signal: signal, active: make(map[string]*burst)}
}

// Keystroke records typing activity toward peer.
func (e *Emitter) Keystroke(peer string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	deadline := time.Now().Add(e.idle)
	if b, ok := e.active[peer]; ok {
		b.deadline = deadline
		b.timer.Reset(e.idle)
		return
	}
	b := &burst{deadline: deadline}
	b.timer = time.AfterFunc(e.idle, func() { e.expire(peer, b) })
	e.active[peer] = b
	e.signal(peer, true)
}

func (e *Emitter) expire(peer string, b *burst) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[peer] != b {
		return
	}
	// A keystroke may have extended the burst while this call waited.
	if left := time.Until(b.deadline); left > 0 {
		b.timer.Reset(left)
		return
	}
	delete(e.active, peer)
	e.signal(peer, false)
}

// Sent clears the signal immediately; the message itself ends the burst.
func (e *Emitter) Sent(peer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(peer)
}

func (e *Emitter) stopLocked(peer string) {
	b, ok := e.active[peer]
	if !ok {
		return
	}
	b.timer.Stop()
	delete(e.active, peer)
	e.signal(peer, false)
}

// Active reports whether a typing burst toward peer is in progress.
func (e *Emitter) Active(peer string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[peer]
	return ok
}

// Close stops all timers and clears every active signal.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for peer := range e.active {
		e.stopLocked(peer)
	}
}
