package status

import (
	"context"
	"fmt"
	"time"

	"github.com/searchfabric/connectors/pkg/queue"
)

// Counts is the overall per-status breakdown. All five keys are always
// present so the wire shape never changes with queue contents.
type Counts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
}

func (c Counts) Total() int64 {
	return c.Pending + c.Processing + c.Completed + c.Failed + c.DeadLetter
}

type SourceCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Activity is one recent event in a processing or terminal state.
type Activity struct {
	EventID      string       `json:"event_id"`
	SourceID     string       `json:"source_id"`
	EventType    string       `json:"event_type"`
	Status       queue.Status `json:"status"`
	Attempts     int          `json:"attempts"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

type Snapshot struct {
	Timestamp      time.Time               `json:"timestamp"`
	Overall        Counts                  `json:"overall"`
	Sources        map[string]SourceCounts `json:"sources"`
	RecentActivity []Activity              `json:"recentActivity"`
}

// EventReader is the read-only slice of the event store the aggregator
// needs. Both queue repository implementations satisfy it.
type EventReader interface {
	CountsByStatus(ctx context.Context) (map[queue.Status]int64, error)
	CountsBySource(ctx context.Context) (map[string]map[queue.Status]int64, error)
	Recent(ctx context.Context, limit int) ([]queue.Event, error)
}

type Aggregator struct {
	events      EventReader
	recentLimit int
}

func NewAggregator(events EventReader, recentLimit int) *Aggregator {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	return &Aggregator{events: events, recentLimit: recentLimit}
}

// Snapshot computes the full status view. One call serves every
// subscriber in a cadence window; it is never run per subscriber.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	overall, err := a.events.CountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}

	perSource, err := a.events.CountsBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting by source: %w", err)
	}

	recent, err := a.events.Recent(ctx, a.recentLimit)
	if err != nil {
		return nil, fmt.Errorf("listing recent activity: %w", err)
	}

	snap := &Snapshot{
		Timestamp: time.Now().UTC(),
		Overall: Counts{
			Pending:    overall[queue.StatusPending],
			Processing: overall[queue.StatusProcessing],
			Completed:  overall[queue.StatusCompleted],
			Failed:     overall[queue.StatusFailed],
			DeadLetter: overall[queue.StatusDeadLetter],
		},
		Sources:        make(map[string]SourceCounts, len(perSource)),
		RecentActivity: make([]Activity, 0, len(recent)),
	}

	for sourceID, counts := range perSource {
		snap.Sources[sourceID] = SourceCounts{
			Pending:    counts[queue.StatusPending],
			Processing: counts[queue.StatusProcessing],
			Completed:  counts[queue.StatusCompleted],
			Failed:     counts[queue.StatusFailed],
		}
	}

	for _, ev := range recent {
		occurredAt := ev.CreatedAt
		if ev.ProcessedAt != nil {
			occurredAt = *ev.ProcessedAt
		} else if ev.ClaimedAt != nil {
			occurredAt = *ev.ClaimedAt
		}
		snap.RecentActivity = append(snap.RecentActivity, Activity{
			EventID:      ev.ID,
			SourceID:     ev.SourceID,
			EventType:    ev.EventType,
			Status:       ev.Status,
			Attempts:     ev.Attempts,
			ErrorMessage: ev.ErrorMessage,
			OccurredAt:   occurredAt,
		})
	}

	return snap, nil
}
