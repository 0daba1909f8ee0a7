package action

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func newTestRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	NewHTTPHandler(f.disp, 1<<20).Register(router)
	return router
}

func TestActionEndpointPassesAdapterBodyVerbatim(t *testing.T) {
	adapter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"backfill already running"}`))
	}))
	defer adapter.Close()

	f := newFixture(t, nil, adapter.URL)
	f.seed(t, "src-1", true)
	router := newTestRouter(f)

	body := `{"sourceId":"src-1","action":"backfill"}`
	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("adapter status altered: %d", rec.Code)
	}
	if rec.Body.String() != `{"error":"backfill already running"}` {
		t.Fatalf("adapter body altered: %s", rec.Body.String())
	}
}

func TestActionEndpointRejectsUnknownAction(t *testing.T) {
	f := newFixture(t, nil, "")
	f.seed(t, "src-1", true)
	router := newTestRouter(f)

	body := `{"sourceId":"src-1","action":"explode"}`
	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestActionEndpointValidatesBody(t *testing.T) {
	f := newFixture(t, nil, "")
	router := newTestRouter(f)

	for _, body := range []string{"not json", `{"action":"enable"}`, `{"sourceId":"src-1"}`} {
		req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestActionEndpointMissingSource(t *testing.T) {
	f := newFixture(t, nil, "")
	router := newTestRouter(f)

	body := `{"sourceId":"ghost","action":"enable"}`
	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
