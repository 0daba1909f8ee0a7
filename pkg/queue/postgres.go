package queue

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRepository implements Repository on gorm/postgres. Claims use
// FOR UPDATE SKIP LOCKED so concurrent claimers never block on or
// receive each other's rows.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Event{})
}

func (r *PostgresRepository) Insert(ctx context.Context, ev *Event) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Event, error) {
	var ev Event
	result := r.db.WithContext(ctx).First(&ev, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &ev, result.Error
}

func (r *PostgresRepository) ClaimBatch(ctx context.Context, limit int, workerID string, now time.Time) ([]Event, error) {
	var claimed []Event

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []Event
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", StatusPending, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]string, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ID
		}

		if err := tx.Model(&Event{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     StatusProcessing,
				"claimed_by": workerID,
				"claimed_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range candidates {
			candidates[i].Status = StatusProcessing
			candidates[i].ClaimedBy = &workerID
			claimedAt := now
			candidates[i].ClaimedAt = &claimedAt
		}
		claimed = candidates
		return nil
	})

	return claimed, err
}

func (r *PostgresRepository) Complete(ctx context.Context, id string, now time.Time) (*Event, error) {
	var ev Event

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ev, "id = ?", id)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if ev.Status != StatusProcessing {
			return ErrInvalidState
		}

		if err := tx.Model(&Event{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       StatusCompleted,
				"processed_at": now,
				"claimed_by":   nil,
				"claimed_at":   nil,
			}).Error; err != nil {
			return err
		}

		ev.Status = StatusCompleted
		processedAt := now
		ev.ProcessedAt = &processedAt
		ev.ClaimedBy = nil
		ev.ClaimedAt = nil
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *PostgresRepository) Fail(ctx context.Context, id string, errMsg string, maxRetries int, retryAt RetryScheduler, now time.Time) (*Event, error) {
	var ev Event

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ev, "id = ?", id)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if ev.Status != StatusProcessing {
			return ErrInvalidState
		}

		ev.Attempts++
		ev.ClaimedBy = nil
		ev.ClaimedAt = nil
		message := errMsg
		ev.ErrorMessage = &message

		updates := map[string]interface{}{
			"attempts":      ev.Attempts,
			"error_message": errMsg,
			"claimed_by":    nil,
			"claimed_at":    nil,
		}

		if ev.Attempts > maxRetries {
			ev.Status = StatusDeadLetter
			processedAt := now
			ev.ProcessedAt = &processedAt
			updates["status"] = StatusDeadLetter
			updates["processed_at"] = now
		} else {
			ev.Status = StatusPending
			ev.NextAttemptAt = retryAt(now, ev.Attempts)
			updates["status"] = StatusPending
			updates["next_attempt_at"] = ev.NextAttemptAt
		}

		return tx.Model(&Event{}).Where("id = ?", id).Updates(updates).Error
	})

	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *PostgresRepository) StaleProcessing(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Event{}).
		Where("status = ? AND claimed_at < ?", StatusProcessing, cutoff).
		Order("claimed_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *PostgresRepository) CountsByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *PostgresRepository) CountsBySource(ctx context.Context) (map[string]map[Status]int64, error) {
	var rows []struct {
		SourceID string
		Status   Status
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&Event{}).
		Select("source_id, status, count(*) as count").
		Group("source_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]map[Status]int64)
	for _, row := range rows {
		if counts[row.SourceID] == nil {
			counts[row.SourceID] = make(map[Status]int64)
		}
		counts[row.SourceID][row.Status] = row.Count
	}
	return counts, nil
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := r.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusProcessing, StatusCompleted, StatusDeadLetter}).
		Order("COALESCE(processed_at, claimed_at, created_at) DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *PostgresRepository) HasEvents(ctx context.Context, sourceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Event{}).
		Where("source_id = ?", sourceID).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresRepository) PurgeTerminal(ctx context.Context, sourceID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("source_id = ? AND status IN ?", sourceID, []Status{StatusCompleted, StatusDeadLetter}).
		Delete(&Event{})
	return result.RowsAffected, result.Error
}
