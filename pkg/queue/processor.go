package queue

import (
	"context"
	"time"
)

// Processor handles one claimed event. Returning an error routes the
// event through the failure path.
type Processor interface {
	Process(ctx context.Context, ev Event) error
}

// Publisher abstracts the downstream bus; kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// IndexProcessor hands completed events to the indexing pipeline by
// publishing them to the index-updates topic. Delivery is at-least-once;
// the indexer is assumed idempotent.
type IndexProcessor struct {
	publisher Publisher
}

func NewIndexProcessor(publisher Publisher) *IndexProcessor {
	return &IndexProcessor{publisher: publisher}
}

func (p *IndexProcessor) Process(ctx context.Context, ev Event) error {
	return p.publisher.PublishEvent(ctx, ev.EventType, ev.SourceID, Envelope(ev))
}

// Envelope flattens an event into the bus payload shape.
func Envelope(ev Event) map[string]interface{} {
	data := map[string]interface{}{
		"event_id":   ev.ID,
		"source_id":  ev.SourceID,
		"event_type": ev.EventType,
		"payload":    map[string]interface{}(ev.Payload),
		"attempts":   ev.Attempts,
		"created_at": ev.CreatedAt.Format(time.RFC3339Nano),
	}
	if ev.ErrorMessage != nil {
		data["error_message"] = *ev.ErrorMessage
	}
	return data
}
