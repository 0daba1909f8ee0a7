package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	ErrInvalidType = errors.New("unknown source type")
	ErrMissingName = errors.New("source name is required")
)

// Store is what the service needs from a registry backend. Both
// Repository and MemoryRepository satisfy it.
type Store interface {
	Create(ctx context.Context, src *Source) error
	Get(ctx context.Context, id string) (*Source, error)
	List(ctx context.Context) ([]Source, error)
	ListActiveByType(ctx context.Context, sourceType string) ([]Source, error)
	Exists(ctx context.Context, id string) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateConfig(ctx context.Context, id string, cfg map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type CreateRequest struct {
	SourceType    string                 `json:"source_type"`
	Name          string                 `json:"name"`
	Config        map[string]interface{} `json:"config"`
	CredentialRef string                 `json:"credential_ref,omitempty"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Source, error) {
	req.SourceType = strings.TrimSpace(req.SourceType)
	if !IsValidType(req.SourceType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.SourceType)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrMissingName
	}

	src := &Source{
		ID:            uuid.New().String(),
		SourceType:    req.SourceType,
		Name:          strings.TrimSpace(req.Name),
		Config:        datatypes.JSONMap(req.Config),
		IsActive:      true,
		CredentialRef: req.CredentialRef,
	}

	if err := s.store.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("persisting source: %w", err)
	}
	return src, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Source, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.store.List(ctx)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.store.SetActive(ctx, id, active)
}

func (s *Service) UpdateConfig(ctx context.Context, id string, cfg map[string]interface{}) error {
	return s.store.UpdateConfig(ctx, id, cfg)
}
