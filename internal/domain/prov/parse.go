package prov

import (
	"encoding/json"
	"errors"
	"fmt"
)

// envelope is the wire form of an Event: a discriminator plus the identity
// and ordering fields the runtime assigns, with the variant body nested
// under payload.
type envelope struct {
	Kind        Kind            `json:"kind"`
	EventID     string          `json:"event_id"`
	ContextID   string          `json:"context_id"`
	TaskID      string          `json:"task_id,omitempty"`
	TimestampMS int64           `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
}

type callScopeJSON struct {
	MessageID string `json:"message_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// MarshalJSON encodes the scope as a one-field object.
func (s CallScope) MarshalJSON() ([]byte, error) {
	return json.Marshal(callScopeJSON{MessageID: s.messageID, TaskID: s.taskID})
}

// UnmarshalJSON decodes the scope, rejecting an object carrying both
// branches. An empty object decodes to the zero scope; validation rejects
// it later with ErrMissingScope.
func (s *CallScope) UnmarshalJSON(data []byte) error {
	var raw callScopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.MessageID != "" && raw.TaskID != "" {
		return errors.New("call scope: message_id and task_id are mutually exclusive")
	}
	s.messageID = raw.MessageID
	s.taskID = raw.TaskID
	return nil
}

type llmCallStartedJSON struct {
	Scope    CallScope         `json:"scope"`
	Client   string            `json:"client"`
	Model    string            `json:"model"`
	Function string            `json:"function"`
	Prompt   json.RawMessage   `json:"prompt,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type llmCallCompletedJSON struct {
	Scope      CallScope         `json:"scope"`
	Client     string            `json:"client"`
	Model      string            `json:"model"`
	Function   string            `json:"function"`
	Prompt     json.RawMessage   `json:"prompt,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Usage      Usage             `json:"usage"`
	DurationMS int64             `json:"duration_ms"`
	Success    bool              `json:"success"`
}

type toolCallStartedJSON struct {
	Scope    CallScope         `json:"scope"`
	Tool     string            `json:"tool"`
	Function string            `json:"function"`
	Args     json.RawMessage   `json:"args,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type toolCallCompletedJSON struct {
	Scope      CallScope         `json:"scope"`
	Tool       string            `json:"tool"`
	Function   string            `json:"function"`
	Args       json.RawMessage   `json:"args,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Success    bool              `json:"success"`
}

type taskCreatedJSON struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

type taskStatusChangedJSON struct {
	TaskID    string `json:"task_id"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
}

type taskArtifactGeneratedJSON struct {
	TaskID       string `json:"task_id"`
	ArtifactID   string `json:"artifact_id,omitempty"`
	ArtifactType string `json:"artifact_type,omitempty"`
}

type messageJSON struct {
	MessageID string            `json:"message_id"`
	Role      string            `json:"role"`
	Content   []string          `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type agentBootJSON struct {
	AgentID      string `json:"agent_id"`
	AgentType    string `json:"agent_type"`
	AgentVersion string `json:"agent_version,omitempty"`
	Archive      string `json:"archive"`
}

// MarshalJSON encodes the event in envelope form.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, errors.New("event has no payload")
	}
	var payload any
	switch d := e.Data.(type) {
	case LlmCallStarted:
		payload = llmCallStartedJSON(d)
	case LlmCallCompleted:
		payload = llmCallCompletedJSON(d)
	case ToolCallStarted:
		payload = toolCallStartedJSON(d)
	case ToolCallCompleted:
		payload = toolCallCompletedJSON(d)
	case TaskCreated:
		payload = taskCreatedJSON(d)
	case TaskStatusChanged:
		payload = taskStatusChangedJSON(d)
	case TaskArtifactGenerated:
		payload = taskArtifactGeneratedJSON(d)
	case MessageReceived:
		payload = messageJSON(d)
	case MessageSent:
		payload = messageJSON(d)
	case AgentBoot:
		payload = agentBootJSON(d)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", e.Data)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Kind:        e.Data.Kind(),
		EventID:     e.ID,
		ContextID:   e.ContextID,
		TaskID:      e.TaskID,
		TimestampMS: e.TimestampMS,
		Payload:     raw,
	})
}

// UnmarshalJSON decodes an envelope into a typed event. Unknown kinds fail
// with ErrUnknownEventKind; field-level validation is deferred to Validate.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	d, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	e.ID = env.EventID
	e.ContextID = env.ContextID
	e.TaskID = env.TaskID
	e.TimestampMS = env.TimestampMS
	e.Data = d
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Data, error) {
	unmarshal := func(v any) error {
		if len(raw) == 0 {
			raw = json.RawMessage("{}")
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return nil
	}
	switch kind {
	case KindLlmCallStarted:
		var p llmCallStartedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return LlmCallStarted(p), nil
	case KindLlmCallCompleted:
		var p llmCallCompletedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return LlmCallCompleted(p), nil
	case KindToolCallStarted:
		var p toolCallStartedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return ToolCallStarted(p), nil
	case KindToolCallCompleted:
		var p toolCallCompletedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return ToolCallCompleted(p), nil
	case KindTaskCreated:
		var p taskCreatedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return TaskCreated(p), nil
	case KindTaskStatusChanged:
		var p taskStatusChangedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return TaskStatusChanged(p), nil
	case KindTaskArtifactGenerated:
		var p taskArtifactGeneratedJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return TaskArtifactGenerated(p), nil
	case KindMessageReceived:
		var p messageJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return MessageReceived(p), nil
	case KindMessageSent:
		var p messageJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return MessageSent(p), nil
	case KindAgentBoot:
		var p agentBootJSON
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return AgentBoot(p), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
	}
}
