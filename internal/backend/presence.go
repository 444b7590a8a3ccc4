package backend

import (
	"context"

	"github.com/matheus3301/rishta/internal/presence"
)

// FetchPresence adapts Presence to the presence poller. A missing
// last-seen time stays zero and the cache stamps it on arrival.
func (c *Client) FetchPresence(ctx context.Context, ids []string) ([]presence.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	got, err := c.Presence(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]presence.Observation, 0, len(got))
	for _, p := range got {
		out = append(out, presence.Observation{UserID: p.UserID, Online: p.Online, At: p.LastSeen})
	}
	return out, nil
}
