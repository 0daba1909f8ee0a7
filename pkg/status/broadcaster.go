package status

import (
	"context"
	"sync"
	"time"

	"github.com/searchfabric/connectors/pkg/common/logger"
)

// SnapshotCache persists the latest snapshot off-process; best-effort.
type SnapshotCache interface {
	Store(ctx context.Context, snap *Snapshot) error
}

// Broadcaster recomputes one snapshot per cadence tick and fans it out
// to every subscriber. Load stays constant as subscriber count grows.
// Sends are non-blocking: a slow subscriber misses ticks instead of
// stalling the feed; dropping it entirely is the transport's job.
type Broadcaster struct {
	agg     *Aggregator
	cadence time.Duration
	cache   SnapshotCache // optional

	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	latest *Snapshot
}

func NewBroadcaster(agg *Aggregator, cadence time.Duration, cache SnapshotCache) *Broadcaster {
	if cadence <= 0 {
		cadence = 3 * time.Second
	}
	return &Broadcaster{
		agg:     agg,
		cadence: cadence,
		cache:   cache,
		subs:    make(map[int]chan Snapshot),
	}
}

// Subscribe registers a listener. The returned cancel func must be
// called on disconnect; it is idempotent and releases the channel.
func (b *Broadcaster) Subscribe() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Snapshot, 1)
	b.subs[id] = ch

	// seed a freshly connected subscriber with the last snapshot
	if b.latest != nil {
		ch <- *b.latest
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
	return ch, cancel
}

// Latest returns the most recently computed snapshot, or nil before the
// first tick.
func (b *Broadcaster) Latest() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Run blocks until ctx is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	logger.Log.WithField("cadence", b.cadence.String()).Info("status broadcaster started")

	ticker := time.NewTicker(b.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("status broadcaster stopping")
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) {
	snap, err := b.agg.Snapshot(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("status snapshot failed")
		return
	}

	if b.cache != nil {
		if err := b.cache.Store(ctx, snap); err != nil {
			logger.Log.WithError(err).Debug("snapshot cache write failed")
		}
	}

	b.mu.Lock()
	b.latest = snap
	for _, ch := range b.subs {
		select {
		case ch <- *snap:
		default:
			// subscriber still holds the previous tick; skip this one
		}
	}
	b.mu.Unlock()
}
