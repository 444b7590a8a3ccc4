package typing

import (
	"sort"
	"sync"
	"time"
)

// DefaultTTL bounds how long a remote typing signal is shown without a
// refresh, so a lost stop-typing does not stick.
const DefaultTTL = 5 * time.Second

// ChangeFunc is called when the remote typing state of a peer flips.
type ChangeFunc func(peer string, typing bool)

// Change is the payload of typing.changed events.
type Change struct {
	Peer   string
	Typing bool
}

// Indicator tracks which peers are typing to the viewer.
type Indicator struct {
	ttl      time.Duration
	onChange ChangeFunc

	mu     sync.Mutex
	timers map[string]*signal
}

type signal struct {
	deadline time.Time
	timer    *time.Timer
}

// NewIndicator creates an indicator. ttl <= 0 selects DefaultTTL.
// onChange may be nil.
func NewIndicator(ttl time.Duration, onChange ChangeFunc) *Indicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if onChange == nil {
		onChange = func(string, bool) {}
	}
	return &Indicator{ttl: ttl, onChange: onChange, timers: make(map[string]*signal)}
}

// Set records a typing or stop-typing signal from peer.
func (in *Indicator) Set(peer string, typing bool) {
	in.mu.Lock()
	s, was := in.timers[peer]
	if !typing {
		if was {
			s.timer.Stop()
			delete(in.timers, peer)
		}
		in.mu.Unlock()
		if was {
			in.onChange(peer, false)
		}
		return
	}
	if was {
		s.deadline = time.Now().Add(in.ttl)
		s.timer.Reset(in.ttl)
		in.mu.Unlock()
		return
	}
	s = &signal{deadline: time.Now().Add(in.ttl)}
	s.timer = time.AfterFunc(in.ttl, func() { in.expire(peer, s) })
	in.timers[peer] = s
	in.mu.Unlock()
	in.onChange(peer, true)
}

func (in *Indicator) expire(peer string, s *signal) {
	in.mu.Lock()
	if in.timers[peer] != s {
		in.mu.Unlock()
		return
	}
	if left := time.Until(s.deadline); left > 0 {
		s.timer.Reset(left)
		in.mu.Unlock()
		return
	}
	delete(in.timers, peer)
	in.mu.Unlock()
	in.onChange(peer, false)
}

// Typing reports whether peer is currently shown as typing.
func (in *Indicator) Typing(peer string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.timers[peer]
	return ok
}

// Peers returns the peers currently typing, sorted.
func (in *Indicator) Peers() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, 0, len(in.timers))
	for p := range in.timers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close drops all state without notifying.
func (in *Indicator) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for p, s := range in.timers {
		s.timer.Stop()
		delete(in.timers, p)
	}
}
