// Package prov defines the provenance event taxonomy: the closed set of
// typed events the agent runtime emits about task lifecycle, message
// exchange, model/tool invocations and agent bootstrap.
package prov

import "encoding/json"

// Kind identifies the event variant.
type Kind string

const (
	KindLlmCallStarted        Kind = "llm_call.started"
	KindLlmCallCompleted      Kind = "llm_call.completed"
	KindToolCallStarted       Kind = "tool_call.started"
	KindToolCallCompleted     Kind = "tool_call.completed"
	KindTaskCreated           Kind = "task.created"
	KindTaskStatusChanged     Kind = "task.status_changed"
	KindTaskArtifactGenerated Kind = "task.artifact_generated"
	KindMessageReceived       Kind = "message.received"
	KindMessageSent           Kind = "message.sent"
	KindAgentBoot             Kind = "agent.boot"
)

// Event is a single provenance event. The runtime supplies identity and
// ordering: EventID is unique per emission and TimestampMS is assigned at
// the source, never here.
type Event struct {
	ID          string
	ContextID   string
	TaskID      string // set only on task-scoped events
	TimestampMS int64
	Data        Data
}

// Data is the payload union; each variant is a distinct type so a variant
// with missing required data is unrepresentable rather than a runtime nil
// check.
type Data interface {
	Kind() Kind
}

// Usage carries token accounting for a completed LLM call. Known is false
// when the provider did not report usage.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	Known            bool  `json:"known"`
}

// LlmCallStarted marks the start of a model invocation.
type LlmCallStarted struct {
	Scope    CallScope
	Client   string
	Model    string
	Function string
	Prompt   json.RawMessage
	Metadata map[string]string
}

// LlmCallCompleted marks the end of a model invocation.
type LlmCallCompleted struct {
	Scope      CallScope
	Client     string
	Model      string
	Function   string
	Prompt     json.RawMessage
	Metadata   map[string]string
	Usage      Usage
	DurationMS int64
	Success    bool
}

// ToolCallStarted marks the start of a tool invocation.
type ToolCallStarted struct {
	Scope    CallScope
	Tool     string
	Function string
	Args     json.RawMessage
	Metadata map[string]string
}

// ToolCallCompleted marks the end of a tool invocation.
type ToolCallCompleted struct {
	Scope      CallScope
	Tool       string
	Function   string
	Args       json.RawMessage
	Metadata   map[string]string
	DurationMS int64
	Success    bool
}

// TaskCreated records a new task assigned to an agent.
type TaskCreated struct {
	TaskID  string
	AgentID string
}

// TaskStatusChanged records a task state transition. OldStatus may be empty
// on the first transition.
type TaskStatusChanged struct {
	TaskID    string
	OldStatus string
	NewStatus string
}

// TaskArtifactGenerated records an artifact produced by a task. ArtifactID
// and ArtifactType are both optional; identity falls back per spec to
// (task, type) and then (task, event).
type TaskArtifactGenerated struct {
	TaskID       string
	ArtifactID   string
	ArtifactType string
}

// MessageReceived records an inbound A2A message. Metadata must carry
// "agent_id": the runtime identity of the processing agent.
type MessageReceived struct {
	MessageID string
	Role      string
	Content   []string
	Metadata  map[string]string
}

// MessageSent records an outbound A2A message. Metadata must carry
// "agent_id" like MessageReceived.
type MessageSent struct {
	MessageID string
	Role      string
	Content   []string
	Metadata  map[string]string
}

// AgentBoot records an agent runtime instance starting from an archive.
// Archive is the package identity (name@version or content hash), never an
// extraction path.
type AgentBoot struct {
	AgentID      string
	AgentType    string
	AgentVersion string
	Archive      string
}

func (LlmCallStarted) Kind() Kind        { return KindLlmCallStarted }
func (LlmCallCompleted) Kind() Kind      { return KindLlmCallCompleted }
func (ToolCallStarted) Kind() Kind       { return KindToolCallStarted }
func (ToolCallCompleted) Kind() Kind     { return KindToolCallCompleted }
func (TaskCreated) Kind() Kind           { return KindTaskCreated }
func (TaskStatusChanged) Kind() Kind     { return KindTaskStatusChanged }
func (TaskArtifactGenerated) Kind() Kind { return KindTaskArtifactGenerated }
func (MessageReceived) Kind() Kind       { return KindMessageReceived }
func (MessageSent) Kind() Kind           { return KindMessageSent }
func (AgentBoot) Kind() Kind             { return KindAgentBoot }

// MetadataAgentID is the metadata key naming the executing agent's runtime
// identity on call and message events.
const MetadataAgentID = "agent_id"
