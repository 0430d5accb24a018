package memory

import (
	"context"
	"testing"

	"github.com/provgraph/provgraph/internal/domain/prov"
	"github.com/provgraph/provgraph/internal/normalizer"
)

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()

	event := prov.Event{
		ID: "e1", ContextID: "c1", TaskID: "t1", TimestampMS: 1000,
		Data: prov.TaskCreated{TaskID: "t1", AgentID: "3f8a2c1e-9b4d-4f6a-8c2d-1e5b7a9c3d0f"},
	}
	cs, err := normalizer.Normalize(event)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if err := store.Apply(ctx, cs); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if err := store.Apply(ctx, cs); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	second, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if first != second {
		t.Errorf("replay changed the graph: %+v -> %+v", first, second)
	}
}

func TestApplyMergesAcrossEvents(t *testing.T) {
	ctx := context.Background()
	store := New()

	for _, e := range []prov.Event{
		{ID: "e2", ContextID: "c1", TaskID: "t1", TimestampMS: 2000,
			Data: prov.LlmCallStarted{Scope: prov.TaskScope("t1"), Client: "openai", Model: "gpt-4o", Function: "Plan"}},
		{ID: "e2", ContextID: "c1", TaskID: "t1", TimestampMS: 2500,
			Data: prov.LlmCallCompleted{Scope: prov.TaskScope("t1"), Client: "openai", Model: "gpt-4o",
				Function: "Plan", DurationMS: 500, Success: true}},
	} {
		cs, err := normalizer.Normalize(e)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		if err := store.Apply(ctx, cs); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	call, ok := store.Node("llm_call:e2")
	if !ok {
		t.Fatal("llm call node missing")
	}
	if call.Props["start_time_ms"] != int64(2000) {
		t.Errorf("started attribute lost: %v", call.Props)
	}
	if call.Props["end_time_ms"] != int64(2500) || call.Props["success"] != true {
		t.Errorf("completed attributes missing: %v", call.Props)
	}
}
