package models

import "time"

// Event is the envelope published to the downstream bus. The indexing
// pipeline consumes these from the index-updates topic; dead-lettered
// events carry the same shape on the DLQ topic.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// EnqueueRequest is the adapter-facing payload for appending a connector event.
type EnqueueRequest struct {
	SourceID  string                 `json:"source_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
}

type EnqueueResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
