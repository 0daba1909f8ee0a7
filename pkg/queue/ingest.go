package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/common/models"
)

// Enqueuer is the intake surface IngestHandler needs from the service.
type Enqueuer interface {
	Enqueue(ctx context.Context, sourceID, eventType string, payload map[string]interface{}) (*Event, error)
}

// IngestHandler adapts bus events into queue entries, so adapters can
// hand events off over the broker instead of the HTTP intake. The
// event's Source names the source, Type the event type, Data the
// payload.
func IngestHandler(svc Enqueuer) func(ctx context.Context, event models.Event) error {
	return func(ctx context.Context, event models.Event) error {
		_, err := svc.Enqueue(ctx, event.Source, event.Type, event.Data)
		if errors.Is(err, ErrInvalidReference) {
			// unknown source: redelivery cannot fix it, drop with a trace
			logger.Log.WithField("source_id", event.Source).Warn("dropping event for unknown source")
			return nil
		}
		if err != nil {
			return fmt.Errorf("enqueuing ingested event: %w", err)
		}
		return nil
	}
}
