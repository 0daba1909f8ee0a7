package queue

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

// The five externally visible lifecycle states. Wire representations
// round-trip exactly through these tokens.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter
}

// Event is one detected change from a source, owned exclusively by the
// queue. All status mutations go through ClaimBatch/Resolve.
type Event struct {
	ID            string            `json:"id" gorm:"primaryKey;column:id"`
	SourceID      string            `json:"source_id" gorm:"column:source_id;index"`
	EventType     string            `json:"event_type" gorm:"column:event_type"`
	Payload       datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	Status        Status            `json:"status" gorm:"column:status;index"`
	Attempts      int               `json:"attempts" gorm:"column:attempts"`
	ErrorMessage  *string           `json:"error_message,omitempty" gorm:"column:error_message"`
	ClaimedBy     *string           `json:"claimed_by,omitempty" gorm:"column:claimed_by"`
	ClaimedAt     *time.Time        `json:"claimed_at,omitempty" gorm:"column:claimed_at"`
	NextAttemptAt time.Time         `json:"next_attempt_at" gorm:"column:next_attempt_at;index"`
	CreatedAt     time.Time         `json:"created_at" gorm:"column:created_at;index"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty" gorm:"column:processed_at"`
}

func (Event) TableName() string {
	return "connector_events"
}

// Outcome is the result a worker reports for a claimed event.
type Outcome struct {
	Success      bool
	ErrorMessage string
}

func Success() Outcome {
	return Outcome{Success: true}
}

func Failure(errMsg string) Outcome {
	return Outcome{ErrorMessage: errMsg}
}
