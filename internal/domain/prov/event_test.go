package prov

import (
	"encoding/json"
	"errors"
	"testing"
)

const (
	testAgentID = "3f8a2c1e-9b4d-4f6a-8c2d-1e5b7a9c3d0f"
	testTaskID  = "task-42"
)

func TestEventJSONRoundTrip(t *testing.T) {
	events := []Event{
		{
			ID:          "evt-1",
			ContextID:   "ctx-1",
			TimestampMS: 1700000000000,
			Data: LlmCallStarted{
				Scope:    MessageScope("msg-1"),
				Client:   "openai",
				Model:    "gpt-4o",
				Function: "Classify",
				Prompt:   json.RawMessage(`{"system":"be terse"}`),
				Metadata: map[string]string{MetadataAgentID: testAgentID},
			},
		},
		{
			ID:          "evt-2",
			ContextID:   "ctx-1",
			TaskID:      testTaskID,
			TimestampMS: 1700000000100,
			Data: ToolCallCompleted{
				Scope:      TaskScope(testTaskID),
				Tool:       "shell",
				Function:   "run",
				Args:       json.RawMessage(`{"cmd":"ls"}`),
				DurationMS: 250,
				Success:    true,
			},
		},
		{
			ID:          "evt-3",
			ContextID:   "ctx-1",
			TaskID:      testTaskID,
			TimestampMS: 1700000000200,
			Data:        TaskCreated{TaskID: testTaskID, AgentID: testAgentID},
		},
		{
			ID:          "evt-4",
			ContextID:   "ctx-1",
			TimestampMS: 1700000000300,
			Data: MessageReceived{
				MessageID: "msg-1",
				Role:      "user",
				Content:   []string{"hello"},
				Metadata:  map[string]string{MetadataAgentID: testAgentID},
			},
		},
		{
			ID:          "evt-5",
			ContextID:   "ctx-1",
			TimestampMS: 1700000000400,
			Data: AgentBoot{
				AgentID:      testAgentID,
				AgentType:    "runner",
				AgentVersion: "1.4.0",
				Archive:      "agents/runner@1.4.0",
			},
		},
	}

	for _, want := range events {
		raw, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal %s: %v", want.Data.Kind(), err)
		}
		var got Event
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", want.Data.Kind(), err)
		}
		if got.ID != want.ID || got.ContextID != want.ContextID ||
			got.TaskID != want.TaskID || got.TimestampMS != want.TimestampMS {
			t.Errorf("%s: envelope fields changed: got %+v want %+v", want.Data.Kind(), got, want)
		}
		if got.Data.Kind() != want.Data.Kind() {
			t.Errorf("kind changed: got %s want %s", got.Data.Kind(), want.Data.Kind())
		}
		if err := got.Validate(); err != nil {
			t.Errorf("%s: round-tripped event invalid: %v", want.Data.Kind(), err)
		}
	}
}

func TestUnmarshalUnknownKind(t *testing.T) {
	raw := []byte(`{"kind":"task.rebooted","event_id":"e","context_id":"c","timestamp_ms":1,"payload":{}}`)
	var e Event
	err := json.Unmarshal(raw, &e)
	if !errors.Is(err, ErrUnknownEventKind) {
		t.Fatalf("got %v, want ErrUnknownEventKind", err)
	}
}

func TestUnmarshalRejectsDoubleScope(t *testing.T) {
	raw := []byte(`{"kind":"llm_call.started","event_id":"e","context_id":"c","timestamp_ms":1,` +
		`"payload":{"scope":{"message_id":"m","task_id":"t"},"client":"x","model":"y","function":"z"}}`)
	var e Event
	if err := json.Unmarshal(raw, &e); err == nil {
		t.Fatal("expected error for scope with both branches set")
	}
}

func TestCallScopeAccessors(t *testing.T) {
	m := MessageScope("msg-1")
	if id, ok := m.MessageID(); !ok || id != "msg-1" {
		t.Errorf("MessageID() = %q, %v", id, ok)
	}
	if _, ok := m.TaskID(); ok {
		t.Error("message scope reported a task id")
	}

	ts := TaskScope(testTaskID)
	if id, ok := ts.TaskID(); !ok || id != testTaskID {
		t.Errorf("TaskID() = %q, %v", id, ok)
	}
	if ts.IsZero() || !(CallScope{}).IsZero() {
		t.Error("IsZero misreported")
	}
}

func TestValidate(t *testing.T) {
	meta := map[string]string{MetadataAgentID: testAgentID}

	tests := []struct {
		name    string
		event   Event
		wantOK  bool
		wantErr error // sentinel to match when !wantOK; nil means any error
	}{
		{
			name: "missing event id",
			event: Event{ContextID: "c", Data: TaskCreated{
				TaskID: testTaskID, AgentID: testAgentID}},
			wantErr: ErrMissingField,
		},
		{
			name: "missing context id",
			event: Event{ID: "e", TaskID: testTaskID, Data: TaskCreated{
				TaskID: testTaskID, AgentID: testAgentID}},
			wantErr: ErrMissingField,
		},
		{
			name:    "call without scope",
			event:   Event{ID: "e", ContextID: "c", Data: LlmCallStarted{Client: "x"}},
			wantErr: ErrMissingScope,
		},
		{
			name: "task-scoped call on task-less envelope",
			event: Event{ID: "e", ContextID: "c", Data: ToolCallStarted{
				Scope: TaskScope(testTaskID), Tool: "shell"}},
			wantErr: ErrMissingTaskID,
		},
		{
			name: "scope task mismatch",
			event: Event{ID: "e", ContextID: "c", TaskID: "other", Data: LlmCallCompleted{
				Scope: TaskScope(testTaskID)}},
		},
		{
			name: "message-scoped call inside a task",
			event: Event{ID: "e", ContextID: "c", TaskID: testTaskID, Data: LlmCallStarted{
				Scope: MessageScope("msg-1")}},
		},
		{
			name: "task event without envelope task id",
			event: Event{ID: "e", ContextID: "c", Data: TaskStatusChanged{
				TaskID: testTaskID, NewStatus: "working"}},
			wantErr: ErrMissingTaskID,
		},
		{
			name: "status change without new status",
			event: Event{ID: "e", ContextID: "c", TaskID: testTaskID, Data: TaskStatusChanged{
				TaskID: testTaskID}},
			wantErr: ErrMissingField,
		},
		{
			name: "task created with non-uuid agent",
			event: Event{ID: "e", ContextID: "c", TaskID: testTaskID, Data: TaskCreated{
				TaskID: testTaskID, AgentID: "runner-7"}},
			wantErr: ErrMissingField,
		},
		{
			name: "message without agent metadata",
			event: Event{ID: "e", ContextID: "c", Data: MessageSent{
				MessageID: "msg-1", Role: "agent"}},
			wantErr: ErrMissingField,
		},
		{
			name:    "boot without archive",
			event:   Event{ID: "e", ContextID: "c", Data: AgentBoot{AgentID: testAgentID, AgentType: "runner"}},
			wantErr: ErrMissingField,
		},
		{
			name: "valid task-scoped call",
			event: Event{ID: "e", ContextID: "c", TaskID: testTaskID, Data: ToolCallCompleted{
				Scope: TaskScope(testTaskID), Tool: "shell", Success: true}},
			wantOK: true,
		},
		{
			name: "valid message",
			event: Event{ID: "e", ContextID: "c", Data: MessageReceived{
				MessageID: "msg-1", Role: "user", Metadata: meta}},
			wantOK: true,
		},
		{
			name: "valid artifact",
			event: Event{ID: "e", ContextID: "c", TaskID: testTaskID, Data: TaskArtifactGenerated{
				TaskID: testTaskID, ArtifactType: "report"}},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
