package client

import (
	"context"
	"sync"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// Mirror holds the latest queue snapshot a viewer has seen.
type Mirror struct {
	mu      sync.RWMutex
	entries []playback.Entry
}

func (m *Mirror) Set(entries []playback.Entry) {
	sorted := make([]playback.Entry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, playback.NormalizeEntry(e))
	}
	playback.SortEntries(sorted)
	m.mu.Lock()
	m.entries = sorted
	m.mu.Unlock()
}

// Snapshot returns the queue in "Up Next" order.
func (m *Mirror) Snapshot() []playback.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]playback.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Mirror) Run(ctx context.Context, snapshots <-chan []playback.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-snapshots:
			if !ok {
				return ErrSubscriptionClosed
			}
			m.Set(q)
		}
	}
}

// SwapAdjacent exchanges the order keys of the entries at positions i and j
// of snapshot, as displayed in ascending order.
//
// The exchange is two independent writes. A reader between them sees both
// entries on the same key, and if either entry is removed or the second
// write fails, the swap is left half done. Each entry stays well formed.
func SwapAdjacent(ctx context.Context, room Room, snapshot []playback.Entry, i, j int) error {
	q := playback.Sorted(snapshot)
	if i < 0 || j < 0 || i >= len(q) || j >= len(q) {
		return ErrIndexOutOfRange
	}
	if i-j != 1 && j-i != 1 {
		return ErrNotAdjacent
	}
	a, b := q[i], q[j]
	if err := room.SetOrderKey(ctx, a.ID, b.OrderKey); err != nil {
		return err
	}
	return room.SetOrderKey(ctx, b.ID, a.OrderKey)
}
