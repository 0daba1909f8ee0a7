package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/searchfabric/connectors/pkg/observability/metrics"
	"github.com/searchfabric/connectors/pkg/orchestrator"
	"github.com/searchfabric/connectors/pkg/source"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrForbidden     = errors.New("caller lacks administrative capability")
)

// AdapterError carries an adapter's error response verbatim so callers
// see exactly what the adapter said.
type AdapterError struct {
	StatusCode int
	Body       []byte
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter returned %d: %s", e.StatusCode, string(e.Body))
}

type Request struct {
	SourceID string                 `json:"sourceId"`
	Action   string                 `json:"action"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

type Result struct {
	SourceID string      `json:"sourceId"`
	Action   string      `json:"action"`
	Detail   interface{} `json:"detail,omitempty"`
}

// Authorizer is the external capability-check collaborator.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) error
}

// AllowAll is the default when no capability system is wired in.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Request) error { return nil }

type SourceAdmin interface {
	Get(ctx context.Context, id string) (*source.Source, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type Syncer interface {
	TriggerSync(ctx context.Context, sourceID string, force bool) error
}

type EventAdmin interface {
	HasEvents(ctx context.Context, sourceID string) (bool, error)
	PurgeTerminal(ctx context.Context, sourceID string) (int64, error)
}

type Handler func(ctx context.Context, req Request) (*Result, error)

// Dispatcher forwards named administrative actions to whichever
// orchestration logic they imply. The action table is declarative:
// adding an action means adding an entry, not touching dispatch.
type Dispatcher struct {
	auth     Authorizer
	sources  SourceAdmin
	syncer   Syncer
	events   EventAdmin
	routes   *orchestrator.RouteTable
	client   *http.Client
	handlers map[string]Handler
}

func NewDispatcher(auth Authorizer, sources SourceAdmin, syncer Syncer, events EventAdmin, routes *orchestrator.RouteTable, client *http.Client) *Dispatcher {
	if auth == nil {
		auth = AllowAll{}
	}
	d := &Dispatcher{
		auth:    auth,
		sources: sources,
		syncer:  syncer,
		events:  events,
		routes:  routes,
		client:  client,
	}
	d.handlers = map[string]Handler{
		"enable":   d.handleEnable,
		"disable":  d.handleDisable,
		"delete":   d.handleDelete,
		"resync":   d.handleResync,
		"purge":    d.handlePurge,
		"backfill": d.forwardToAdapter,
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if err := d.auth.Authorize(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	handler, ok := d.handlers[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	metrics.ActionsDispatched.Add(1)
	logger.Log.WithFields(map[string]interface{}{
		"source_id": req.SourceID,
		"action":    req.Action,
	}).Info("dispatching action")

	return handler(ctx, req)
}

func (d *Dispatcher) handleEnable(ctx context.Context, req Request) (*Result, error) {
	if err := d.sources.SetActive(ctx, req.SourceID, true); err != nil {
		return nil, err
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: "source enabled"}, nil
}

func (d *Dispatcher) handleDisable(ctx context.Context, req Request) (*Result, error) {
	if err := d.sources.SetActive(ctx, req.SourceID, false); err != nil {
		return nil, err
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: "source disabled"}, nil
}

// handleDelete hard-deletes only when no events reference the source;
// otherwise it soft-deactivates.
func (d *Dispatcher) handleDelete(ctx context.Context, req Request) (*Result, error) {
	referenced, err := d.events.HasEvents(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	if referenced {
		if err := d.sources.SetActive(ctx, req.SourceID, false); err != nil {
			return nil, err
		}
		return &Result{SourceID: req.SourceID, Action: req.Action, Detail: "source has events, deactivated instead"}, nil
	}
	if err := d.sources.Delete(ctx, req.SourceID); err != nil {
		return nil, err
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: "source deleted"}, nil
}

func (d *Dispatcher) handleResync(ctx context.Context, req Request) (*Result, error) {
	force, _ := req.Params["force"].(bool)
	if err := d.syncer.TriggerSync(ctx, req.SourceID, force); err != nil {
		return nil, err
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: "sync triggered"}, nil
}

func (d *Dispatcher) handlePurge(ctx context.Context, req Request) (*Result, error) {
	purged, err := d.events.PurgeTerminal(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: map[string]interface{}{"purged": purged}}, nil
}

// forwardToAdapter is the generic pass-through: the adapter's response
// body comes back verbatim, success or failure.
func (d *Dispatcher) forwardToAdapter(ctx context.Context, req Request) (*Result, error) {
	src, err := d.sources.Get(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}

	base, ok := d.routes.Resolve(src.SourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrNoAdapter, src.SourceType)
	}

	body, err := json.Marshal(map[string]interface{}{
		"source_id": req.SourceID,
		"params":    req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding action request: %w", err)
	}

	url := fmt.Sprintf("%s/action/%s/%s", base, req.Action, req.SourceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building action request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", orchestrator.ErrAdapterUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AdapterError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var detail interface{}
	if len(respBody) > 0 {
		detail = json.RawMessage(respBody)
	}
	return &Result{SourceID: req.SourceID, Action: req.Action, Detail: detail}, nil
}
