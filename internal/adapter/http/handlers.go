package http

import (
	"net/http"

	"github.com/provgraph/provgraph/internal/adapter/ws"
	"github.com/provgraph/provgraph/internal/domain/prov"
	"github.com/provgraph/provgraph/internal/port/graphstore"
	"github.com/provgraph/provgraph/internal/service"
)

// Handlers bundles the dependencies of all API endpoints.
type Handlers struct {
	ingestor  *service.Ingestor
	store     graphstore.Store
	hub       *ws.Hub
	bodyLimit int64
	batchMax  int
}

// Options tunes request limits.
type Options struct {
	// BodyLimit caps request body size in bytes.
	BodyLimit int64
	// BatchMax caps the number of events per batch request.
	BatchMax int
}

// NewHandlers creates the API handlers. hub may be nil when the live feed
// is disabled.
func NewHandlers(ingestor *service.Ingestor, store graphstore.Store, hub *ws.Hub, opts Options) *Handlers {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 1 << 20
	}
	if opts.BatchMax <= 0 {
		opts.BatchMax = 256
	}
	return &Handlers{
		ingestor:  ingestor,
		store:     store,
		hub:       hub,
		bodyLimit: opts.BodyLimit,
		batchMax:  opts.BatchMax,
	}
}

type ingestResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type batchResponse struct {
	Accepted int `json:"accepted"`
}

// IngestEvent handles POST /v1/events with a single event envelope.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	event, ok := readJSON[prov.Event](w, r, h.bodyLimit)
	if !ok {
		return
	}

	if err := h.ingestor.Ingest(r.Context(), event); err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{EventID: event.ID, Status: "applied"})
}

// IngestBatch handles POST /v1/events/batch. Events are applied in request
// order so per-task ordering holds when the producer batched in source order.
func (h *Handlers) IngestBatch(w http.ResponseWriter, r *http.Request) {
	events, ok := readJSON[[]prov.Event](w, r, h.bodyLimit)
	if !ok {
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "batch is empty")
		return
	}
	if len(events) > h.batchMax {
		writeError(w, http.StatusRequestEntityTooLarge, "batch exceeds limit")
		return
	}

	if err := h.ingestor.IngestBatch(r.Context(), events); err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batchResponse{Accepted: len(events)})
}

type healthResponse struct {
	Status      string `json:"status"`
	Nodes       int64  `json:"nodes"`
	Edges       int64  `json:"edges"`
	Connections int    `json:"ws_connections,omitempty"`
}

// Health handles GET /health. It pings the store and reports graph size.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	resp := healthResponse{Status: "ok", Nodes: stats.Nodes, Edges: stats.Edges}
	if h.hub != nil {
		resp.Connections = h.hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
