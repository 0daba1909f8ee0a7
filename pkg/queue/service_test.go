package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/searchfabric/connectors/pkg/common/logger"
)

func init() {
	logger.Init()
}

type stubSources map[string]bool

func (s stubSources) Exists(_ context.Context, id string) (bool, error) {
	return s[id], nil
}

func newTestService(maxRetries int) (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	sources := stubSources{"src-1": true, "src-2": true}
	// zero backoff keeps retried events immediately claimable
	svc := NewService(repo, sources, maxRetries, BackoffConfig{})
	return svc, repo
}

func TestEnqueueRejectsUnknownSource(t *testing.T) {
	svc, _ := newTestService(3)

	_, err := svc.Enqueue(context.Background(), "no-such-source", "item-created", nil)
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestEnqueueStartsPending(t *testing.T) {
	svc, _ := newTestService(3)

	ev, err := svc.Enqueue(context.Background(), "src-1", "item-created", map[string]interface{}{"path": "/a"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if ev.Status != StatusPending {
		t.Fatalf("expected pending, got %s", ev.Status)
	}
	if ev.Attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d", ev.Attempts)
	}
	if ev.ProcessedAt != nil {
		t.Fatal("processed_at must be unset for a pending event")
	}
}

// Scenario: enqueue -> claim -> resolve success -> completed.
func TestSuccessfulLifecycle(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	ev, err := svc.Enqueue(ctx, "src-1", "item-updated", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	claimed, err := svc.ClaimBatch(ctx, 5, "worker-a")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != ev.ID {
		t.Fatalf("expected to claim %s, got %v", ev.ID, claimed)
	}
	if claimed[0].Status != StatusProcessing {
		t.Fatalf("claimed event should be processing, got %s", claimed[0].Status)
	}

	resolved, err := svc.Resolve(ctx, ev.ID, Success())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", resolved.Status)
	}
	if resolved.ProcessedAt == nil {
		t.Fatal("processed_at must be set for a completed event")
	}
}

// Scenario: with maxRetries=3, the fourth failure dead-letters the event
// with attempts=4 and the last error message.
func TestRetryExhaustionDeadLetters(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	ev, err := svc.Enqueue(ctx, "src-1", "item-deleted", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	for i := 1; i <= 4; i++ {
		claimed, err := svc.ClaimBatch(ctx, 1, "worker-a")
		if err != nil {
			t.Fatalf("claim %d failed: %v", i, err)
		}
		if len(claimed) != 1 {
			t.Fatalf("claim %d returned %d events, want 1", i, len(claimed))
		}

		resolved, err := svc.Resolve(ctx, ev.ID, Failure("timeout"))
		if err != nil {
			t.Fatalf("resolve %d failed: %v", i, err)
		}

		if i < 4 {
			if resolved.Status != StatusPending {
				t.Fatalf("after failure %d expected pending, got %s", i, resolved.Status)
			}
			if resolved.Attempts != i {
				t.Fatalf("after failure %d expected attempts=%d, got %d", i, i, resolved.Attempts)
			}
			if resolved.ProcessedAt != nil {
				t.Fatalf("processed_at must stay unset while retrying")
			}
		}
	}

	final, err := svc.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if final.Status != StatusDeadLetter {
		t.Fatalf("expected dead_letter, got %s", final.Status)
	}
	if final.Attempts != 4 {
		t.Fatalf("expected attempts=4, got %d", final.Attempts)
	}
	if final.ErrorMessage == nil || *final.ErrorMessage != "timeout" {
		t.Fatalf("expected error message %q, got %v", "timeout", final.ErrorMessage)
	}
	if final.ProcessedAt == nil {
		t.Fatal("processed_at must be set for a dead-lettered event")
	}
}

func TestResolveOutsideProcessingFailsAndLeavesStateUnchanged(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	ev, err := svc.Enqueue(ctx, "src-1", "item-created", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// not yet claimed
	if _, err := svc.Resolve(ctx, ev.ID, Success()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for pending event, got %v", err)
	}

	stored, err := svc.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != StatusPending || stored.Attempts != 0 {
		t.Fatalf("rejected resolve mutated the event: %+v", stored)
	}

	// double resolution
	if _, err := svc.ClaimBatch(ctx, 1, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, ev.ID, Success()); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, ev.ID, Success()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on duplicate resolve, got %v", err)
	}

	if _, err := svc.Resolve(ctx, "missing", Success()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestClaimReturnsOldestFirst(t *testing.T) {
	svc, repo := newTestService(3)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"ev-c", "ev-a", "ev-b"} {
		createdAt := base.Add(time.Duration(i) * time.Second)
		if err := repo.Insert(ctx, &Event{
			ID:            id,
			SourceID:      "src-1",
			EventType:     "item-created",
			Status:        StatusPending,
			NextAttemptAt: createdAt,
			CreatedAt:     createdAt,
		}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	claimed, err := svc.ClaimBatch(ctx, 2, "worker-a")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].ID != "ev-c" || claimed[1].ID != "ev-a" {
		t.Fatalf("expected oldest-first order [ev-c ev-a], got [%s %s]", claimed[0].ID, claimed[1].ID)
	}
}

// Scenario: two workers claim 10 events held by the store; the batches
// must be disjoint and their union exactly those 10 events.
func TestConcurrentClaimBatchesAreDisjoint(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	want := make(map[string]bool)
	for i := 0; i < 10; i++ {
		ev, err := svc.Enqueue(ctx, "src-1", "item-created", nil)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		want[ev.ID] = true
	}

	var wg sync.WaitGroup
	batches := make([][]Event, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := svc.ClaimBatch(ctx, 10, "worker")
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			batches[i] = claimed
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, batch := range batches {
		for _, ev := range batch {
			if seen[ev.ID] {
				t.Fatalf("event %s returned to both claimers", ev.ID)
			}
			seen[ev.ID] = true
			if !want[ev.ID] {
				t.Fatalf("claimed unknown event %s", ev.ID)
			}
		}
	}
	if len(seen) != len(want) {
		t.Fatalf("union of batches has %d events, want %d", len(seen), len(want))
	}
}

func TestConcurrentClaimStress(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	const total = 60
	for i := 0; i < total; i++ {
		if _, err := svc.Enqueue(ctx, "src-1", "item-created", nil); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	ids := make(chan string, total)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := svc.ClaimBatch(ctx, 3, "worker")
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				for _, ev := range claimed {
					ids <- ev.ID
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("event %s processed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != total {
		t.Fatalf("claimed %d distinct events, want %d", len(seen), total)
	}
}

func TestReapStaleRoutesThroughFailurePath(t *testing.T) {
	svc, repo := newTestService(3)
	ctx := context.Background()

	ev, err := svc.Enqueue(ctx, "src-1", "item-created", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := svc.ClaimBatch(ctx, 1, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// backdate the claim past the lease
	stored, err := repo.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	old := time.Now().UTC().Add(-10 * time.Minute)
	stored.ClaimedAt = &old
	if err := repo.Insert(ctx, stored); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	reclaimed, err := svc.ReapStale(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("reap failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed event, got %d", reclaimed)
	}

	after, err := svc.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if after.Status != StatusPending {
		t.Fatalf("expected reclaimed event pending, got %s", after.Status)
	}
	if after.Attempts != 1 {
		t.Fatalf("expected attempts=1 after reap, got %d", after.Attempts)
	}
	if after.ErrorMessage == nil || !strings.Contains(*after.ErrorMessage, "lease") {
		t.Fatalf("expected lease-expiry error message, got %v", after.ErrorMessage)
	}
}

func TestReapStaleDeadLettersExhaustedEvents(t *testing.T) {
	svc, repo := newTestService(0)
	ctx := context.Background()

	ev, err := svc.Enqueue(ctx, "src-1", "item-created", nil)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := svc.ClaimBatch(ctx, 1, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	stored, _ := repo.Get(ctx, ev.ID)
	old := time.Now().UTC().Add(-time.Hour)
	stored.ClaimedAt = &old
	if err := repo.Insert(ctx, stored); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	if _, err := svc.ReapStale(ctx, time.Minute); err != nil {
		t.Fatalf("reap failed: %v", err)
	}

	after, _ := svc.Get(ctx, ev.ID)
	if after.Status != StatusDeadLetter {
		t.Fatalf("expected dead_letter with zero retry budget, got %s", after.Status)
	}
	if after.ProcessedAt == nil {
		t.Fatal("processed_at must be set once dead-lettered")
	}
}

func TestReapStaleSkipsFreshClaims(t *testing.T) {
	svc, _ := newTestService(3)
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, "src-1", "item-created", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := svc.ClaimBatch(ctx, 1, "worker-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	reclaimed, err := svc.ReapStale(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("reap failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh claim was reaped: %d", reclaimed)
	}
}
