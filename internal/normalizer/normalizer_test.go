package normalizer

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/domain/prov"
)

const (
	agentA = "3f8a2c1e-9b4d-4f6a-8c2d-1e5b7a9c3d0f"
	taskT1 = "t1"
)

func findNode(t *testing.T, cs *graph.ChangeSet, key string) graph.Node {
	t.Helper()
	for _, n := range cs.Nodes {
		if n.Key == key {
			return n
		}
	}
	t.Fatalf("node %q not in change-set (have %v)", key, nodeKeys(cs))
	return graph.Node{}
}

func nodeKeys(cs *graph.ChangeSet) []string {
	keys := make([]string, 0, len(cs.Nodes))
	for _, n := range cs.Nodes {
		keys = append(keys, n.Key)
	}
	return keys
}

func findEdge(t *testing.T, cs *graph.ChangeSet, edgeType, from, to string) graph.Edge {
	t.Helper()
	for _, e := range cs.Edges {
		if e.Type == edgeType && e.From.Key == from && e.To.Key == to {
			return e
		}
	}
	t.Fatalf("no %s edge %s -> %s", edgeType, from, to)
	return graph.Edge{}
}

// Scenario A: TaskCreated materializes the task entity, the execution
// activity, the creation edge and both agent associations.
func TestNormalizeTaskCreated(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e1", ContextID: "c1", TaskID: taskT1, TimestampMS: 1000,
		Data: prov.TaskCreated{TaskID: taskT1, AgentID: agentA},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	task := findNode(t, cs, "task:t1")
	if task.Label != graph.LabelTask || task.Base != graph.BaseEntity {
		t.Errorf("task node: label=%s base=%s", task.Label, task.Base)
	}
	if task.Props["agent_id"] != agentA {
		t.Errorf("task agent_id = %v", task.Props["agent_id"])
	}

	exec := findNode(t, cs, "task_execution_t1")
	if exec.Base != graph.BaseActivity {
		t.Errorf("execution base = %s", exec.Base)
	}
	if exec.Props[graph.PropStartTimeMS] != int64(1000) {
		t.Errorf("execution start_time_ms = %v", exec.Props[graph.PropStartTimeMS])
	}
	if _, set := exec.Props[graph.PropEndTimeMS]; set {
		t.Error("execution should not be closed on creation")
	}

	created := findEdge(t, cs, graph.EdgeGeneratedBy, "task:t1", "task_execution_t1")
	if created.Label != graph.SemCreatedBy {
		t.Errorf("creation edge label = %q, want WAS_CREATED_BY", created.Label)
	}

	executing := findEdge(t, cs, graph.EdgeAssociatedWith, "task_execution_t1", "agent_instance:"+agentA)
	if executing.Role != graph.RoleExecutingAgent || executing.Label != graph.SemExecutedBy {
		t.Errorf("executing association: role=%q label=%q", executing.Role, executing.Label)
	}
	invoking := findEdge(t, cs, graph.EdgeAssociatedWith, "task_execution_t1", "agent:runner")
	if invoking.Role != graph.RoleInvokingAgent || invoking.Label != graph.SemInvokedBy {
		t.Errorf("invoking association: role=%q label=%q", invoking.Role, invoking.Label)
	}
}

// Scenario B: started and completed events for the same call share node
// identity, so their attributes land on one node after both apply.
func TestLlmCallLifecycleSharesIdentity(t *testing.T) {
	started, err := Normalize(prov.Event{
		ID: "e2", ContextID: "c1", TaskID: taskT1, TimestampMS: 2000,
		Data: prov.LlmCallStarted{
			Scope: prov.TaskScope(taskT1), Client: "openai", Model: "gpt-4o",
			Function: "Plan", Prompt: json.RawMessage(`{"q":"?"}`),
		},
	})
	if err != nil {
		t.Fatalf("started: %v", err)
	}
	completed, err := Normalize(prov.Event{
		ID: "e2", ContextID: "c1", TaskID: taskT1, TimestampMS: 2500,
		Data: prov.LlmCallCompleted{
			Scope: prov.TaskScope(taskT1), Client: "openai", Model: "gpt-4o",
			Function: "Plan",
			Usage:    prov.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Known: true},
			DurationMS: 500, Success: true,
		},
	})
	if err != nil {
		t.Fatalf("completed: %v", err)
	}

	s := findNode(t, started, "llm_call:e2")
	c := findNode(t, completed, "llm_call:e2")
	if s.Key != c.Key || s.Label != c.Label {
		t.Fatal("started and completed must target the same activity node")
	}
	if s.Props[graph.PropStartTimeMS] != int64(2000) {
		t.Errorf("started start_time_ms = %v", s.Props[graph.PropStartTimeMS])
	}
	if c.Props[graph.PropEndTimeMS] != int64(2500) {
		t.Errorf("completed end_time_ms = %v", c.Props[graph.PropEndTimeMS])
	}
	if c.Props["usage_total_tokens"] != int64(15) || c.Props["success"] != true {
		t.Errorf("completion attributes missing: %v", c.Props)
	}

	for _, cs := range []*graph.ChangeSet{started, completed} {
		prompt := findEdge(t, cs, graph.EdgeUsed, "llm_call:e2", "llm_prompt:e2")
		if prompt.Role != graph.RolePrompt || prompt.Label != graph.SemUsedBy {
			t.Errorf("prompt usage: role=%q label=%q", prompt.Role, prompt.Label)
		}
		call := findEdge(t, cs, graph.EdgeTaskCall, "task_execution_t1", "llm_call:e2")
		if call.Label != graph.SemInvokedBy {
			t.Errorf("task-call label = %q, want WAS_INVOKED_BY", call.Label)
		}
	}
}

// Scenario C: normalization is deterministic, so replaying an event yields
// an identical change-set and an idempotent store applies it with no growth.
func TestNormalizeDeterministic(t *testing.T) {
	event := prov.Event{
		ID: "e1", ContextID: "c1", TaskID: taskT1, TimestampMS: 1000,
		Data: prov.TaskCreated{TaskID: taskT1, AgentID: agentA},
	}
	first, err := Normalize(event)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := Normalize(event)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(first.Nodes, second.Nodes) {
		t.Error("node output differs across replays")
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Error("edge output differs across replays")
	}
}

// Scenario D: a call scoped to a never-seen message still normalizes; the
// message and processing nodes are created on demand with only common
// attributes.
func TestMessageScopedCallCreatesMessageLazily(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e7", ContextID: "c1", TimestampMS: 3000,
		Data: prov.ToolCallStarted{
			Scope: prov.MessageScope("m9"), Tool: "search", Function: "web",
			Args: json.RawMessage(`{"q":"weather"}`),
		},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	msg := findNode(t, cs, "message:m9")
	if msg.Props["message_id"] != "m9" || msg.Props[graph.PropContextID] != "c1" {
		t.Errorf("lazy message props: %v", msg.Props)
	}
	if _, set := msg.Props["role"]; set {
		t.Error("lazy message must carry only common attributes")
	}

	input := findEdge(t, cs, graph.EdgeUsed, "tool_call:e7", "message:m9")
	if input.Role != graph.RoleInputMessage || input.Label != graph.SemConsumedBy {
		t.Errorf("input usage: role=%q label=%q", input.Role, input.Label)
	}
	call := findEdge(t, cs, graph.EdgeMessageCall, "message_processing:m9", "tool_call:e7")
	if call.Label != graph.SemExecutedBy {
		t.Errorf("message-call label = %q, want WAS_EXECUTED_BY", call.Label)
	}
}

func TestStatusTransition(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e3", ContextID: "c1", TaskID: taskT1, TimestampMS: 4000,
		Data: prov.TaskStatusChanged{TaskID: taskT1, OldStatus: "working", NewStatus: "completed"},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	state := findNode(t, cs, "task_state:t1:4000")
	if state.Props["task_state"] != "completed" || state.Props["old_status"] != "working" {
		t.Errorf("state props: %v", state.Props)
	}
	old := findNode(t, cs, "task_state:t1:4000:old")
	if old.Props["task_state"] != "working" || old.Props["is_previous"] != true {
		t.Errorf("old state props: %v", old.Props)
	}

	usedEdge := findEdge(t, cs, graph.EdgeUsed, "task_execution_t1", "task_state:t1:4000")
	if usedEdge.Role != graph.RoleTaskState || usedEdge.Label != graph.SemUpdatedBy {
		t.Errorf("state usage: role=%q label=%q", usedEdge.Role, usedEdge.Label)
	}

	derived := findEdge(t, cs, graph.EdgeDerivedFrom, "task_state:t1:4000", "task_state:t1:4000:old")
	if derived.Label != graph.SemTransitionedFrom {
		t.Errorf("derivation label = %q", derived.Label)
	}
	if derived.Props[graph.PropActivity] != "task_execution_t1" {
		t.Errorf("derivation activity = %v", derived.Props[graph.PropActivity])
	}

	transition := findEdge(t, cs, graph.EdgeTaskStatusTransition, "task_state:t1:4000:old", "task_state:t1:4000")
	if transition.Label != graph.SemTransitionedTo {
		t.Errorf("transition label = %q", transition.Label)
	}

	// "completed" is terminal: the execution closes and the creation edge
	// is (re-)asserted.
	exec := findNode(t, cs, "task_execution_t1")
	if exec.Props[graph.PropEndTimeMS] != int64(4000) {
		t.Errorf("execution not closed: %v", exec.Props)
	}
	findEdge(t, cs, graph.EdgeGeneratedBy, "task:t1", "task_execution_t1")
}

func TestNonTerminalStatusKeepsExecutionOpen(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e4", ContextID: "c1", TaskID: taskT1, TimestampMS: 4100,
		Data: prov.TaskStatusChanged{TaskID: taskT1, NewStatus: "working"},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	exec := findNode(t, cs, "task_execution_t1")
	if _, set := exec.Props[graph.PropEndTimeMS]; set {
		t.Error("non-terminal transition closed the execution")
	}
	for _, e := range cs.Edges {
		if e.Type == graph.EdgeGeneratedBy {
			t.Error("non-terminal transition emitted a creation edge")
		}
		if e.Type == graph.EdgeTaskStatusTransition {
			t.Error("transition edge emitted without an old status")
		}
	}
}

func TestArtifactGenerated(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e5", ContextID: "c1", TaskID: taskT1, TimestampMS: 5000,
		Data: prov.TaskArtifactGenerated{TaskID: taskT1, ArtifactType: "report"},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	artifact := findNode(t, cs, "artifact:t1:report")
	if artifact.Props["artifact_type"] != "report" {
		t.Errorf("artifact props: %v", artifact.Props)
	}
	gen := findEdge(t, cs, graph.EdgeGeneratedBy, "artifact:t1:report", "task_execution_t1")
	if gen.Label != graph.SemGeneratedBy {
		t.Errorf("generation label = %q", gen.Label)
	}
	shortcut := findEdge(t, cs, graph.EdgeTaskArtifact, "task:t1", "artifact:t1:report")
	if shortcut.Label != graph.SemGeneratedBy {
		t.Errorf("task-artifact label = %q", shortcut.Label)
	}
}

func TestMessageDirectionFixesEdgeShape(t *testing.T) {
	meta := map[string]string{prov.MetadataAgentID: agentA}

	received, err := Normalize(prov.Event{
		ID: "e8", ContextID: "c1", TaskID: taskT1, TimestampMS: 6000,
		Data: prov.MessageReceived{MessageID: "m1", Role: "user", Content: []string{"go"}, Metadata: meta},
	})
	if err != nil {
		t.Fatalf("received: %v", err)
	}
	// Inbound: the processing activity and the task execution both USED the
	// message; no generation edge exists.
	in := findEdge(t, received, graph.EdgeUsed, "message_processing:m1", "message:m1")
	if in.Label != graph.SemReceivedBy {
		t.Errorf("processing usage label = %q", in.Label)
	}
	spawn := findEdge(t, received, graph.EdgeUsed, "task_execution_t1", "message:m1")
	if spawn.Label != graph.SemSpawnedBy {
		t.Errorf("task usage label = %q", spawn.Label)
	}
	for _, e := range received.Edges {
		if e.Type == graph.EdgeGeneratedBy {
			t.Error("inbound message produced a generation edge")
		}
	}
	tm := findEdge(t, received, graph.EdgeTaskMessage, "task:t1", "message:m1")
	if tm.Label != graph.SemSpawnedBy || tm.Props[graph.PropDirection] != graph.DirectionReceived {
		t.Errorf("task-message edge: label=%q props=%v", tm.Label, tm.Props)
	}

	sent, err := Normalize(prov.Event{
		ID: "e9", ContextID: "c1", TaskID: taskT1, TimestampMS: 6100,
		Data: prov.MessageSent{MessageID: "m2", Role: "agent", Content: []string{"done"}, Metadata: meta},
	})
	if err != nil {
		t.Fatalf("sent: %v", err)
	}
	// Outbound: the message WAS_GENERATED_BY its processing; no USED edge
	// from the activity side. Edge direction never flips with message
	// direction; only the type/label differ.
	out := findEdge(t, sent, graph.EdgeGeneratedBy, "message:m2", "message_processing:m2")
	if out.Label != graph.SemEmittedBy {
		t.Errorf("generation label = %q", out.Label)
	}
	for _, e := range sent.Edges {
		if e.Type == graph.EdgeUsed && e.From.Key == "message_processing:m2" {
			t.Error("outbound message produced a USED edge from its processing")
		}
	}
	tm = findEdge(t, sent, graph.EdgeTaskMessage, "task:t1", "message:m2")
	if tm.Label != graph.SemEmittedBy || tm.Props[graph.PropDirection] != graph.DirectionSent {
		t.Errorf("task-message edge: label=%q props=%v", tm.Label, tm.Props)
	}
}

func TestAgentBoot(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e10", ContextID: "c1", TimestampMS: 7000,
		Data: prov.AgentBoot{
			AgentID: agentA, AgentType: "coder", AgentVersion: "2.1.0",
			Archive: "agents/coder@2.1.0",
		},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	archive := findNode(t, cs, "archive:agents_coder@2.1.0")
	if archive.Props["archive"] != "agents/coder@2.1.0" {
		t.Errorf("archive props: %v", archive.Props)
	}
	boot := findNode(t, cs, "agent_boot:"+agentA)
	if boot.Props[graph.PropStartTimeMS] != int64(7000) || boot.Props[graph.PropEndTimeMS] != int64(7000) {
		t.Errorf("boot is instantaneous, got %v", boot.Props)
	}
	inst := findNode(t, cs, "agent_instance:"+agentA)
	if inst.Base != graph.BaseAgent || inst.Props["agent_type"] != "coder" {
		t.Errorf("instance node: base=%s props=%v", inst.Base, inst.Props)
	}

	bootstrap := findEdge(t, cs, graph.EdgeUsed, "agent_boot:"+agentA, "archive:agents_coder@2.1.0")
	if bootstrap.Role != graph.RoleArchive || bootstrap.Label != graph.SemBootstrappedBy {
		t.Errorf("archive usage: role=%q label=%q", bootstrap.Role, bootstrap.Label)
	}
	spawned := findEdge(t, cs, graph.EdgeGeneratedBy, "agent_instance:"+agentA, "agent_boot:"+agentA)
	if spawned.Label != graph.SemSpawnedBy {
		t.Errorf("spawn label = %q", spawned.Label)
	}
	findEdge(t, cs, graph.EdgeAssociatedWith, "agent_boot:"+agentA, "agent:runner")
}

func TestCallWithAgentMetadataAssociatesExecutingAgent(t *testing.T) {
	cs, err := Normalize(prov.Event{
		ID: "e11", ContextID: "c1", TaskID: taskT1, TimestampMS: 8000,
		Data: prov.ToolCallCompleted{
			Scope: prov.TaskScope(taskT1), Tool: "shell", Success: true,
			Metadata: map[string]string{prov.MetadataAgentID: agentA},
		},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assoc := findEdge(t, cs, graph.EdgeAssociatedWith, "tool_call:e11", "agent_instance:"+agentA)
	if assoc.Role != graph.RoleExecutingAgent || assoc.Label != graph.SemExecutedBy {
		t.Errorf("association: role=%q label=%q", assoc.Role, assoc.Label)
	}
	call := findEdge(t, cs, graph.EdgeTaskCall, "task_execution_t1", "tool_call:e11")
	if call.Label != graph.SemExecutedBy {
		t.Errorf("task-call label = %q", call.Label)
	}
}

func TestNormalizeRejectsInvalidEvents(t *testing.T) {
	if _, err := Normalize(prov.Event{
		ID: "e12", ContextID: "c1",
		Data: prov.LlmCallStarted{Client: "x"},
	}); err == nil {
		t.Error("scope-less call normalized")
	}
	if _, err := Normalize(prov.Event{
		ID: "e13", ContextID: "c1", TaskID: taskT1, TimestampMS: 1,
		Data: prov.ToolCallStarted{
			Scope: prov.TaskScope(taskT1), Tool: "shell",
			Metadata: map[string]string{prov.MetadataAgentID: "not-a-uuid"},
		},
	}); err == nil {
		t.Error("call with malformed agent metadata normalized")
	}
}
