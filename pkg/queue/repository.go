package queue

import (
	"context"
	"time"
)

// RetryScheduler computes when a retried event becomes eligible for
// re-claim. attempts is the value after the failed attempt was counted.
type RetryScheduler func(now time.Time, attempts int) time.Time

// Repository is the storage contract for the event store. Every state
// transition is an atomic conditional update; PostgresRepository and
// MemoryRepository both uphold the at-most-one-claimer guarantee.
type Repository interface {
	Insert(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id string) (*Event, error)

	// ClaimBatch atomically moves up to limit eligible pending events to
	// processing on behalf of workerID, oldest first. Two overlapping
	// calls never receive the same event.
	ClaimBatch(ctx context.Context, limit int, workerID string, now time.Time) ([]Event, error)

	// Complete transitions processing -> completed. ErrInvalidState if
	// the event is not processing, ErrNotFound if it does not exist.
	Complete(ctx context.Context, id string, now time.Time) (*Event, error)

	// Fail routes a processing event through the failure path: attempts
	// is incremented, then the event returns to pending (eligible at
	// retryAt) or moves to dead_letter once attempts exceeds maxRetries.
	Fail(ctx context.Context, id string, errMsg string, maxRetries int, retryAt RetryScheduler, now time.Time) (*Event, error)

	// StaleProcessing returns ids of events claimed before the cutoff
	// and still processing.
	StaleProcessing(ctx context.Context, cutoff time.Time) ([]string, error)

	CountsByStatus(ctx context.Context) (map[Status]int64, error)
	CountsBySource(ctx context.Context) (map[string]map[Status]int64, error)

	// Recent returns the newest events that are processing or terminal.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// HasEvents reports whether any event references the source.
	HasEvents(ctx context.Context, sourceID string) (bool, error)

	// PurgeTerminal deletes completed and dead-lettered events for a source.
	PurgeTerminal(ctx context.Context, sourceID string) (int64, error)
}
