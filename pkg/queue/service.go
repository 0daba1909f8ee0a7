package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/observability/metrics"
	"gorm.io/datatypes"
)

// SourceChecker is the slice of the source registry the queue needs:
// enqueue validates the reference, nothing more.
type SourceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Service owns every event state transition. No other component writes
// event rows directly.
type Service struct {
	repo       Repository
	sources    SourceChecker
	maxRetries int
	backoff    BackoffConfig

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(repo Repository, sources SourceChecker, maxRetries int, backoff BackoffConfig) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Service{
		repo:       repo,
		sources:    sources,
		maxRetries: maxRetries,
		backoff:    backoff,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Enqueue appends a new pending event. ErrInvalidReference when the
// source does not exist.
func (s *Service) Enqueue(ctx context.Context, sourceID, eventType string, payload map[string]interface{}) (*Event, error) {
	exists, err := s.sources.Exists(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("checking source reference: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReference, sourceID)
	}

	now := time.Now().UTC()
	ev := &Event{
		ID:            uuid.New().String(),
		SourceID:      sourceID,
		EventType:     eventType,
		Payload:       datatypes.JSONMap(payload),
		Status:        StatusPending,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
	}

	if err := s.repo.Insert(ctx, ev); err != nil {
		return nil, fmt.Errorf("persisting event: %w", err)
	}

	metrics.EventsEnqueued.Add(1)
	logger.Log.WithFields(map[string]interface{}{
		"event_id":   ev.ID,
		"source_id":  sourceID,
		"event_type": eventType,
	}).Debug("event enqueued")

	return ev, nil
}

// ClaimBatch atomically hands up to limit eligible pending events to
// workerID, oldest first.
func (s *Service) ClaimBatch(ctx context.Context, limit int, workerID string) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	claimed, err := s.repo.ClaimBatch(ctx, limit, workerID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.EventsClaimed.Add(int64(len(claimed)))
	return claimed, nil
}

// Resolve finishes a processing attempt. Success completes the event;
// Failure increments attempts and either reschedules it with backoff or
// dead-letters it once the retry budget is exhausted. Resolving an
// event that is not processing fails with ErrInvalidState.
func (s *Service) Resolve(ctx context.Context, id string, outcome Outcome) (*Event, error) {
	now := time.Now().UTC()

	if outcome.Success {
		ev, err := s.repo.Complete(ctx, id, now)
		if err != nil {
			return nil, err
		}
		metrics.EventsCompleted.Add(1)
		return ev, nil
	}

	ev, err := s.repo.Fail(ctx, id, outcome.ErrorMessage, s.maxRetries, s.scheduleRetry, now)
	if err != nil {
		return nil, err
	}

	if ev.Status == StatusDeadLetter {
		metrics.EventsDeadLettered.Add(1)
		logger.Log.WithFields(map[string]interface{}{
			"event_id":  ev.ID,
			"source_id": ev.SourceID,
			"attempts":  ev.Attempts,
			"error":     outcome.ErrorMessage,
		}).Warn("event dead-lettered")
	} else {
		metrics.EventsRetried.Add(1)
	}

	return ev, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.Get(ctx, id)
}

// ReapStale routes every event held in processing past the lease
// through the normal failure path. Returns how many were reclaimed.
func (s *Service) ReapStale(ctx context.Context, lease time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-lease)
	ids, err := s.repo.StaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range ids {
		ev, err := s.repo.Fail(ctx, id, "claim lease expired", s.maxRetries, s.scheduleRetry, time.Now().UTC())
		if err != nil {
			// A worker may have resolved it between the scan and here.
			logger.Log.WithError(err).WithField("event_id", id).Debug("skipping stale event")
			continue
		}
		reclaimed++
		metrics.EventsReclaimed.Add(1)
		logger.Log.WithFields(map[string]interface{}{
			"event_id": ev.ID,
			"status":   ev.Status,
			"attempts": ev.Attempts,
		}).Warn("reclaimed stale claim")
	}

	return reclaimed, nil
}

func (s *Service) scheduleRetry(now time.Time, attempts int) time.Time {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return NextAttemptAt(now, attempts, s.backoff, s.rng)
}
