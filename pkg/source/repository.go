package source

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("source not found")

// Repository is the postgres-backed source registry.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Source{})
}

func (r *Repository) Create(ctx context.Context, src *Source) error {
	src.CreatedAt = time.Now().UTC()
	src.UpdatedAt = src.CreatedAt
	return r.db.WithContext(ctx).Create(src).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Source, error) {
	var src Source
	result := r.db.WithContext(ctx).First(&src, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &src, result.Error
}

func (r *Repository) List(ctx context.Context) ([]Source, error) {
	var sources []Source
	err := r.db.WithContext(ctx).Order("created_at").Find(&sources).Error
	return sources, err
}

func (r *Repository) ListActiveByType(ctx context.Context, sourceType string) ([]Source, error) {
	var sources []Source
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND is_active = ?", sourceType, true).
		Order("created_at").
		Find(&sources).Error
	return sources, err
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Source{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// SetActive serializes activation writes through a single row update.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).Model(&Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateConfig(ctx context.Context, id string, cfg map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"config":     datatypes.JSONMap(cfg),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Source{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
