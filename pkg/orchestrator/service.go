package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/observability/metrics"
	"github.com/searchfabric/connectors/pkg/source"
)

var (
	// ErrInactive: the source is deactivated; inactive sources are never
	// synced automatically. Force bypasses this for manual testing.
	ErrInactive = errors.New("source is inactive")

	// ErrNoAdapter: no adapter route exists for the source type.
	ErrNoAdapter = errors.New("no adapter registered for source type")

	// ErrAdapterUnavailable: the adapter call failed (transport error or
	// non-success status). One-shot; never retried by the orchestrator.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
)

// SourceDirectory is the registry view the orchestrator needs.
type SourceDirectory interface {
	Get(ctx context.Context, id string) (*source.Source, error)
	ListActiveByType(ctx context.Context, sourceType string) ([]source.Source, error)
}

// Service routes "sync source S" requests to the adapter selected by
// the source's type. It creates no events itself; the adapter produces
// them through the queue independently.
type Service struct {
	sources SourceDirectory
	routes  *RouteTable
	client  *http.Client
	timeout time.Duration
}

func NewService(sources SourceDirectory, routes *RouteTable, client *http.Client, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{sources: sources, routes: routes, client: client, timeout: timeout}
}

type syncRequest struct {
	SourceID      string                 `json:"source_id"`
	SourceType    string                 `json:"source_type"`
	Name          string                 `json:"name"`
	Config        map[string]interface{} `json:"config,omitempty"`
	CredentialRef string                 `json:"credential_ref,omitempty"`
}

// TriggerSync asks the source's adapter to begin producing events.
// source.ErrNotFound if the source is absent, ErrInactive unless force.
func (s *Service) TriggerSync(ctx context.Context, sourceID string, force bool) error {
	src, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if !src.IsActive && !force {
		return fmt.Errorf("%w: %s", ErrInactive, sourceID)
	}

	base, ok := s.routes.Resolve(src.SourceType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, src.SourceType)
	}

	metrics.SyncsTriggered.Add(1)
	if err := s.callAdapter(ctx, base, src); err != nil {
		metrics.SyncsFailed.Add(1)
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"source_id":   sourceID,
			"source_type": src.SourceType,
		}).Warn("adapter sync call failed")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"source_id":   sourceID,
		"source_type": src.SourceType,
	}).Info("sync triggered")
	return nil
}

// SyncResult is one source's outcome inside a fan-out.
type SyncResult struct {
	SourceID string `json:"source_id"`
	Synced   bool   `json:"synced"`
	Error    string `json:"error,omitempty"`
}

// SyncAllForType fans sync calls out over every active source of the
// given type. Each call is independent; one failure never aborts the
// rest.
func (s *Service) SyncAllForType(ctx context.Context, sourceType string) ([]SyncResult, error) {
	if !source.IsValidType(sourceType) {
		return nil, fmt.Errorf("%w: %q", source.ErrInvalidType, sourceType)
	}

	sources, err := s.sources.ListActiveByType(ctx, sourceType)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	base, ok := s.routes.Resolve(sourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, sourceType)
	}

	results := make([]SyncResult, len(sources))
	var wg sync.WaitGroup
	wg.Add(len(sources))

	for i := range sources {
		go func(i int) {
			defer wg.Done()
			src := sources[i]
			results[i] = SyncResult{SourceID: src.ID, Synced: true}

			metrics.SyncsTriggered.Add(1)
			if err := s.callAdapter(ctx, base, &src); err != nil {
				metrics.SyncsFailed.Add(1)
				results[i].Synced = false
				results[i].Error = err.Error()
				logger.Log.WithError(err).WithField("source_id", src.ID).Warn("fan-out sync call failed")
			}
		}(i)
	}

	wg.Wait()
	return results, nil
}

func (s *Service) callAdapter(ctx context.Context, base string, src *source.Source) error {
	body, err := json.Marshal(syncRequest{
		SourceID:      src.ID,
		SourceType:    src.SourceType,
		Name:          src.Name,
		Config:        map[string]interface{}(src.Config),
		CredentialRef: src.CredentialRef,
	})
	if err != nil {
		return fmt.Errorf("encoding sync request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/sync/%s", base, src.ID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: adapter returned %d: %s", ErrAdapterUnavailable, resp.StatusCode, string(detail))
	}

	return nil
}
