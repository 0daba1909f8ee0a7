package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps events in process memory behind one mutex, so
// every transition is trivially atomic. Used by unit tests and
// single-node development setups.
type MemoryRepository struct {
	mu     sync.Mutex
	events map[string]Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string]Event)}
}

func (m *MemoryRepository) Insert(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[ev.ID] = *ev
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

func (m *MemoryRepository) ClaimBatch(_ context.Context, limit int, workerID string, now time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []Event
	for _, ev := range m.events {
		if ev.Status == StatusPending && !ev.NextAttemptAt.After(now) {
			eligible = append(eligible, ev)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]Event, 0, len(eligible))
	for _, ev := range eligible {
		ev.Status = StatusProcessing
		worker := workerID
		claimedAt := now
		ev.ClaimedBy = &worker
		ev.ClaimedAt = &claimedAt
		m.events[ev.ID] = ev
		claimed = append(claimed, ev)
	}
	return claimed, nil
}

func (m *MemoryRepository) Complete(_ context.Context, id string, now time.Time) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ev.Status != StatusProcessing {
		return nil, ErrInvalidState
	}

	ev.Status = StatusCompleted
	processedAt := now
	ev.ProcessedAt = &processedAt
	ev.ClaimedBy = nil
	ev.ClaimedAt = nil
	m.events[id] = ev
	return &ev, nil
}

func (m *MemoryRepository) Fail(_ context.Context, id string, errMsg string, maxRetries int, retryAt RetryScheduler, now time.Time) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	if ev.Status != StatusProcessing {
		return nil, ErrInvalidState
	}

	ev.Attempts++
	message := errMsg
	ev.ErrorMessage = &message
	ev.ClaimedBy = nil
	ev.ClaimedAt = nil

	if ev.Attempts > maxRetries {
		ev.Status = StatusDeadLetter
		processedAt := now
		ev.ProcessedAt = &processedAt
	} else {
		ev.Status = StatusPending
		ev.NextAttemptAt = retryAt(now, ev.Attempts)
	}

	m.events[id] = ev
	return &ev, nil
}

func (m *MemoryRepository) StaleProcessing(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, ev := range m.events {
		if ev.Status == StatusProcessing && ev.ClaimedAt != nil && ev.ClaimedAt.Before(cutoff) {
			ids = append(ids, ev.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryRepository) CountsByStatus(_ context.Context) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Status]int64)
	for _, ev := range m.events {
		counts[ev.Status]++
	}
	return counts, nil
}

func (m *MemoryRepository) CountsBySource(_ context.Context) (map[string]map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]map[Status]int64)
	for _, ev := range m.events {
		if counts[ev.SourceID] == nil {
			counts[ev.SourceID] = make(map[Status]int64)
		}
		counts[ev.SourceID][ev.Status]++
	}
	return counts, nil
}

func (m *MemoryRepository) Recent(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, ev := range m.events {
		if ev.Status == StatusProcessing || ev.Status.Terminal() {
			events = append(events, ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return activityTime(events[i]).After(activityTime(events[j]))
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func activityTime(ev Event) time.Time {
	if ev.ProcessedAt != nil {
		return *ev.ProcessedAt
	}
	if ev.ClaimedAt != nil {
		return *ev.ClaimedAt
	}
	return ev.CreatedAt
}

func (m *MemoryRepository) HasEvents(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events {
		if ev.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) PurgeTerminal(_ context.Context, sourceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, ev := range m.events {
		if ev.SourceID == sourceID && ev.Status.Terminal() {
			delete(m.events, id)
			purged++
		}
	}
	return purged, nil
}
