package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type HTTPHandler struct {
	broadcaster *Broadcaster
	agg         *Aggregator
}

func NewHTTPHandler(broadcaster *Broadcaster, agg *Aggregator) *HTTPHandler {
	return &HTTPHandler{broadcaster: broadcaster, agg: agg}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/status", h.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/status/stream", h.handleStream).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.broadcaster.Latest()
	if snap == nil {
		// before the first tick, compute directly
		var err error
		snap, err = h.agg.Snapshot(r.Context())
		if err != nil {
			logger.Log.WithError(err).Error("status snapshot failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// handleStream pushes a snapshot per cadence tick over a websocket.
// The subscription is released deterministically when the client goes
// away; a subscriber that cannot keep up is closed by the write
// timeout, not by the broadcaster.
func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("status stream handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ch, cancel := h.broadcaster.Subscribe()
	defer cancel()

	// surface client disconnects; inbound frames are not expected
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap := <-ch:
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, snap)
			cancelWrite()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Log.WithError(err).Debug("dropping slow status subscriber")
				}
				return
			}
		}
	}
}
