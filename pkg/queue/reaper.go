package queue

import (
	"context"
	"time"

	"github.com/searchfabric/connectors/pkg/common/logger"
)

// LeaseLocker gates each reaper cycle so only one instance scans at a
// time. A nil locker means single-instance mode: reap every cycle.
type LeaseLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const reaperLockKey = "connectors:queue:reaper"

// Reaper bounds worker-crash exposure: any event held in processing
// past the lease is routed through the normal failure path.
type Reaper struct {
	svc      *Service
	lease    time.Duration
	interval time.Duration
	locker   LeaseLocker
}

func NewReaper(svc *Service, lease, interval time.Duration, locker LeaseLocker) *Reaper {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{svc: svc, lease: lease, interval: interval, locker: locker}
}

// Run blocks until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	logger.Log.WithFields(map[string]interface{}{
		"lease":    r.lease.String(),
		"interval": r.interval.String(),
	}).Info("stale-claim reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("stale-claim reaper stopping")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context) {
	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx, reaperLockKey, r.interval)
		if err != nil {
			// the lock only avoids duplicate scans; reaping twice is safe
			logger.Log.WithError(err).Warn("reaper lock unavailable, proceeding unlocked")
		} else if !ok {
			return
		}
	}

	reclaimed, err := r.svc.ReapStale(ctx, r.lease)
	if err != nil {
		logger.Log.WithError(err).Error("reaper cycle failed")
		return
	}
	if reclaimed > 0 {
		logger.Log.WithField("reclaimed", reclaimed).Info("reaper cycle finished")
	}
}
