package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observation is one presence reading returned by a Fetcher.
type Observation struct {
	UserID string
	Online bool
	At     time.Time
}

// Fetcher reads the presence of a set of users from the backend.
type Fetcher interface {
	FetchPresence(ctx context.Context, ids []string) ([]Observation, error)
}

// PeerLister returns the peers worth polling.
type PeerLister interface {
	ConversationPeers() ([]string, error)
}

// DefaultInterval is the fallback poll period when push events are missed.
const DefaultInterval = 30 * time.Second

// Poller refreshes presence over REST as a fallback to push events.
type Poller struct {
	cache    *Cache
	fetch    Fetcher
	peers    PeerLister
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a poller. interval <= 0 selects DefaultInterval.
func NewPoller(cache *Cache, fetch Fetcher, peers PeerLister, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{cache: cache, fetch: fetch, peers: peers, interval: interval, logger: logger}
}

// Start polls once right away, then every interval until Stop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("presence poll failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce fetches presence for every cached conversation peer and merges
// it into the cache.
func (p *Poller) PollOnce(ctx context.Context) error {
	ids, err := p.peers.ConversationPeers()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	obs, err := p.fetch.FetchPresence(ctx, ids)
	if err != nil {
		return err
	}
	applied := 0
	for _, o := range obs {
		if p.cache.Apply(o.UserID, o.Online, o.At, SourcePoll) {
			applied++
		}
	}
	p.logger.Debug("presence polled", zap.Int("peers", len(ids)), zap.Int("applied", applied))
	return nil
}
