package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/source"
)

func init() {
	logger.Init()
}

func seedSource(t *testing.T, repo *source.MemoryRepository, id, sourceType string, active bool) {
	t.Helper()
	err := repo.Create(context.Background(), &source.Source{
		ID:         id,
		SourceType: sourceType,
		Name:       id,
		IsActive:   active,
	})
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}
}

func TestTriggerSyncCallsAdapter(t *testing.T) {
	var mu sync.Mutex
	var gotPath string
	var gotBody syncRequest

	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer adapter.Close()

	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-chat", source.TypeChat, true)

	routes := NewRouteTable(map[string]string{source.TypeChat: adapter.URL})
	svc := NewService(repo, routes, adapter.Client(), 5*time.Second)

	if err := svc.TriggerSync(context.Background(), "src-chat", false); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/sync/src-chat" {
		t.Fatalf("adapter called at %q", gotPath)
	}
	if gotBody.SourceType != source.TypeChat {
		t.Fatalf("sync request carries wrong source type: %+v", gotBody)
	}
}

func TestTriggerSyncUnknownSource(t *testing.T) {
	repo := source.NewMemoryRepository()
	routes := NewRouteTable(map[string]string{})
	svc := NewService(repo, routes, http.DefaultClient, time.Second)

	err := svc.TriggerSync(context.Background(), "ghost", false)
	if !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Scenario: a deactivated source is rejected and no adapter call happens.
func TestTriggerSyncInactiveSource(t *testing.T) {
	called := false
	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer adapter.Close()

	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-off", source.TypeCRM, false)

	routes := NewRouteTable(map[string]string{source.TypeCRM: adapter.URL})
	svc := NewService(repo, routes, adapter.Client(), time.Second)

	err := svc.TriggerSync(context.Background(), "src-off", false)
	if !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	if called {
		t.Fatal("adapter must not be called for an inactive source")
	}
}

func TestTriggerSyncForceBypassesInactive(t *testing.T) {
	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer adapter.Close()

	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-off", source.TypeCRM, false)

	routes := NewRouteTable(map[string]string{source.TypeCRM: adapter.URL})
	svc := NewService(repo, routes, adapter.Client(), time.Second)

	if err := svc.TriggerSync(context.Background(), "src-off", true); err != nil {
		t.Fatalf("forced trigger failed: %v", err)
	}
}

func TestTriggerSyncNoAdapterRoute(t *testing.T) {
	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-mail", source.TypeMail, true)

	svc := NewService(repo, NewRouteTable(map[string]string{}), http.DefaultClient, time.Second)

	err := svc.TriggerSync(context.Background(), "src-mail", false)
	if !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
}

func TestTriggerSyncAdapterFailure(t *testing.T) {
	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "crawler busy", http.StatusServiceUnavailable)
	}))
	defer adapter.Close()

	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-web", source.TypeWebCrawl, true)

	routes := NewRouteTable(map[string]string{source.TypeWebCrawl: adapter.URL})
	svc := NewService(repo, routes, adapter.Client(), time.Second)

	err := svc.TriggerSync(context.Background(), "src-web", false)
	if !errors.Is(err, ErrAdapterUnavailable) {
		t.Fatalf("expected ErrAdapterUnavailable, got %v", err)
	}
}

// One failing source must not abort the rest of the fan-out.
func TestSyncAllForTypeIsolatesFailures(t *testing.T) {
	var mu sync.Mutex
	calls := make(map[string]int)

	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.URL.Path]++
		mu.Unlock()
		if r.URL.Path == "/sync/src-b" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer adapter.Close()

	repo := source.NewMemoryRepository()
	seedSource(t, repo, "src-a", source.TypeWiki, true)
	seedSource(t, repo, "src-b", source.TypeWiki, true)
	seedSource(t, repo, "src-c", source.TypeWiki, true)
	seedSource(t, repo, "src-inactive", source.TypeWiki, false)

	routes := NewRouteTable(map[string]string{source.TypeWiki: adapter.URL})
	svc := NewService(repo, routes, adapter.Client(), 5*time.Second)

	results, err := svc.SyncAllForType(context.Background(), source.TypeWiki)
	if err != nil {
		t.Fatalf("fan-out failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results (inactive excluded), got %d", len(results))
	}

	outcomes := make(map[string]SyncResult)
	for _, res := range results {
		outcomes[res.SourceID] = res
	}
	if !outcomes["src-a"].Synced || !outcomes["src-c"].Synced {
		t.Fatalf("healthy sources failed: %+v", outcomes)
	}
	if outcomes["src-b"].Synced || outcomes["src-b"].Error == "" {
		t.Fatalf("failing source not reported: %+v", outcomes["src-b"])
	}

	mu.Lock()
	defer mu.Unlock()
	if calls["/sync/src-inactive"] != 0 {
		t.Fatal("inactive source received a fan-out call")
	}
}

func TestSyncAllForTypeRejectsUnknownType(t *testing.T) {
	svc := NewService(source.NewMemoryRepository(), NewRouteTable(nil), http.DefaultClient, time.Second)

	_, err := svc.SyncAllForType(context.Background(), "warehouse")
	if !errors.Is(err, source.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
