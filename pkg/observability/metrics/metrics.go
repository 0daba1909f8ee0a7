package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Queue and orchestration counters. Exposed in Prometheus text format
// on /metrics by each binary.
var (
	EventsEnqueued     atomic.Int64
	EventsClaimed      atomic.Int64
	EventsCompleted    atomic.Int64
	EventsRetried      atomic.Int64
	EventsDeadLettered atomic.Int64
	EventsReclaimed    atomic.Int64
	SyncsTriggered     atomic.Int64
	SyncsFailed        atomic.Int64
	ActionsDispatched  atomic.Int64
)

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeCounter(w, "connectors_events_enqueued_total", "Events appended to the queue.", &EventsEnqueued)
	writeCounter(w, "connectors_events_claimed_total", "Events claimed by workers.", &EventsClaimed)
	writeCounter(w, "connectors_events_completed_total", "Events resolved successfully.", &EventsCompleted)
	writeCounter(w, "connectors_events_retried_total", "Failed attempts returned to pending.", &EventsRetried)
	writeCounter(w, "connectors_events_dead_lettered_total", "Events that exhausted their retry budget.", &EventsDeadLettered)
	writeCounter(w, "connectors_events_reclaimed_total", "Stale claims routed through the failure path.", &EventsReclaimed)
	writeCounter(w, "connectors_syncs_triggered_total", "Adapter sync calls issued.", &SyncsTriggered)
	writeCounter(w, "connectors_syncs_failed_total", "Adapter sync calls that failed.", &SyncsFailed)
	writeCounter(w, "connectors_actions_dispatched_total", "Administrative actions dispatched.", &ActionsDispatched)
}

func writeCounter(w http.ResponseWriter, name, help string, v *atomic.Int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, v.Load())
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WritePrometheus(w)
	}
}
