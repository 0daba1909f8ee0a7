package queue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/events", h.handleEnqueue).Methods(http.MethodPost)
	router.HandleFunc("/events/{id}", h.handleGet).Methods(http.MethodGet)
}

// handleEnqueue is the adapter-facing entry point: a 202 means the
// event is durably pending. Retry and dead-letter dynamics are visible
// only through the status feed, never here.
func (h *HTTPHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid event payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SourceID) == "" || strings.TrimSpace(req.EventType) == "" {
		http.Error(w, "source_id and event_type are required", http.StatusBadRequest)
		return
	}

	ev, err := h.service.Enqueue(r.Context(), req.SourceID, req.EventType, req.Payload)
	if err != nil {
		if errors.Is(err, ErrInvalidReference) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to enqueue event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.EnqueueResponse{
		ID:        ev.ID,
		Status:    string(ev.Status),
		Timestamp: time.Now().UTC(),
	})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ev, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ev)
}
