package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/provgraph/provgraph/internal/adapter/memory"
	"github.com/provgraph/provgraph/internal/service"
)

const testAgentID = "3f8a2c1e-9b4d-4f6a-8c2d-1e5b7a9c3d0f"

func newTestServer(t *testing.T, apiKeyHash string, opts Options) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	ing := service.NewIngestor(store, nil, nil, nil, nil, service.Config{})
	h := NewHandlers(ing, store, nil, opts)

	r := chi.NewRouter()
	MountRoutes(r, h, apiKeyHash)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func taskCreatedBody(eventID, taskID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"kind":         "task.created",
		"event_id":     eventID,
		"context_id":   "ctx-1",
		"task_id":      taskID,
		"timestamp_ms": 1700000000000,
		"payload": map[string]any{
			"task_id":  taskID,
			"agent_id": testAgentID,
		},
	})
	return body
}

func TestIngestEvent(t *testing.T) {
	srv, store := newTestServer(t, "", Options{})

	resp, err := http.Post(srv.URL+"/v1/events", "application/json", bytes.NewReader(taskCreatedBody("e1", "t1")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if _, ok := store.Node("task:t1"); !ok {
		t.Fatal("expected task node after ingest")
	}
}

func TestIngestEventRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t, "", Options{})

	body, _ := json.Marshal(map[string]any{
		"kind":         "task.created",
		"event_id":     "e1",
		"context_id":   "ctx-1",
		"task_id":      "t1",
		"timestamp_ms": 1700000000000,
		"payload": map[string]any{
			"task_id":  "t1",
			"agent_id": "not-a-uuid",
		},
	})
	resp, err := http.Post(srv.URL+"/v1/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestIngestEventRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t, "", Options{})

	resp, err := http.Post(srv.URL+"/v1/events", "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestIngestBatch(t *testing.T) {
	srv, store := newTestServer(t, "", Options{})

	var events []json.RawMessage
	for i := 1; i <= 3; i++ {
		events = append(events, taskCreatedBody(fmt.Sprintf("e%d", i), fmt.Sprintf("t%d", i)))
	}
	body, _ := json.Marshal(events)

	resp, err := http.Post(srv.URL+"/v1/events/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Accepted != 3 {
		t.Fatalf("accepted = %d, want 3", out.Accepted)
	}
	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("task:t%d", i)
		if _, ok := store.Node(key); !ok {
			t.Fatalf("missing node %s", key)
		}
	}
}

func TestIngestBatchLimits(t *testing.T) {
	srv, _ := newTestServer(t, "", Options{BatchMax: 2})

	var events []json.RawMessage
	for i := 1; i <= 3; i++ {
		events = append(events, taskCreatedBody(fmt.Sprintf("e%d", i), fmt.Sprintf("t%d", i)))
	}
	body, _ := json.Marshal(events)

	resp, err := http.Post(srv.URL+"/v1/events/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}

	resp2, err := http.Post(srv.URL+"/v1/events/batch", "application/json", bytes.NewReader([]byte("[]")))
	if err != nil {
		t.Fatalf("POST empty: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d, want %d", resp2.StatusCode, http.StatusBadRequest)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	srv, _ := newTestServer(t, string(hash), Options{})

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"missing key", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "sekrit", http.StatusAccepted},
		{"bearer", "Authorization", "Bearer sekrit", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/events", bytes.NewReader(taskCreatedBody("e-"+tt.name, "t-"+tt.name)))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHealthDoesNotRequireAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	srv, _ := newTestServer(t, string(hash), Options{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("status = %q, want ok", out.Status)
	}
}
