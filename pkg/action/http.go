package action

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/orchestrator"
	"github.com/searchfabric/connectors/pkg/source"
)

type HTTPHandler struct {
	dispatcher *Dispatcher
	maxBody    int64
}

func NewHTTPHandler(dispatcher *Dispatcher, maxBody int64) *HTTPHandler {
	return &HTTPHandler{dispatcher: dispatcher, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/action", h.handleAction).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SourceID) == "" || strings.TrimSpace(req.Action) == "" {
		http.Error(w, "sourceId and action are required", http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, req Request, err error) {
	var adapterErr *AdapterError
	switch {
	case errors.As(err, &adapterErr):
		// adapter-side error bodies pass through verbatim
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(adapterErr.StatusCode)
		w.Write(adapterErr.Body)
	case errors.Is(err, ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, source.ErrNotFound):
		http.Error(w, "source not found", http.StatusNotFound)
	case errors.Is(err, orchestrator.ErrInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, orchestrator.ErrNoAdapter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, orchestrator.ErrAdapterUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logger.Log.WithError(err).WithField("action", req.Action).Error("action dispatch failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
