package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/source"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/sync/{sourceId}", h.handleSync).Methods(http.MethodPost)
	router.HandleFunc("/sync-all/{sourceType}", h.handleSyncAll).Methods(http.MethodPost)
}

type syncResponse struct {
	SourceID  string    `json:"source_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleSync distinguishes "request accepted" from "request failed
// outright". Adapter unavailability is reported but non-fatal: the
// caller may retry the trigger by hand.
func (h *HTTPHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["sourceId"]
	force := r.URL.Query().Get("force") == "true"

	err := h.service.TriggerSync(r.Context(), sourceID, force)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, syncResponse{
			SourceID:  sourceID,
			Status:    "accepted",
			Timestamp: time.Now().UTC(),
		})
	case errors.Is(err, source.ErrNotFound):
		http.Error(w, "source not found", http.StatusNotFound)
	case errors.Is(err, ErrInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNoAdapter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAdapterUnavailable):
		writeJSON(w, http.StatusBadGateway, syncResponse{
			SourceID:  sourceID,
			Status:    "adapter_unavailable",
			Detail:    err.Error(),
			Timestamp: time.Now().UTC(),
		})
	default:
		logger.Log.WithError(err).Error("sync trigger failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *HTTPHandler) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	sourceType := mux.Vars(r)["sourceType"]

	results, err := h.service.SyncAllForType(r.Context(), sourceType)
	if err != nil {
		if errors.Is(err, source.ErrInvalidType) || errors.Is(err, ErrNoAdapter) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("sync fan-out failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"source_type": sourceType,
		"results":     results,
		"timestamp":   time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
