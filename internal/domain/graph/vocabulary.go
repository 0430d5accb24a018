// Package graph holds the property-graph value model the normalizer emits
// and the stores persist: nodes, edges, change-sets and the closed
// vocabulary of labels, relations and roles.
package graph

// BaseType classifies every node into one of the three PROV base classes.
type BaseType string

const (
	BaseEntity   BaseType = "Entity"
	BaseActivity BaseType = "Activity"
	BaseAgent    BaseType = "Agent"
)

// Node labels. One label per node; the label fixes the base type.
const (
	LabelTask              = "A2ATask"
	LabelTaskState         = "A2ATaskState"
	LabelTaskExecution     = "A2ATaskExecution"
	LabelMessage           = "A2AMessage"
	LabelMessageProcessing = "A2AMessageProcessing"
	LabelLlmCall           = "LlmCall"
	LabelLlmPrompt         = "LlmPrompt"
	LabelToolCall          = "ToolCall"
	LabelToolArgs          = "ToolArgs"
	LabelAgentBoot         = "AgentBoot"
	LabelAgentArchive      = "AgentArchive"
	LabelAgentInstance     = "AgentRuntimeInstance"
	LabelArtifact          = "Artifact"
)

// PROV relation types. Direction is fixed by type: USED points
// Activity→Entity, WAS_GENERATED_BY Entity→Activity, WAS_ASSOCIATED_WITH
// Activity→Agent, WAS_DERIVED_FROM Entity→Entity.
const (
	EdgeUsed           = "USED"
	EdgeGeneratedBy    = "WAS_GENERATED_BY"
	EdgeAssociatedWith = "WAS_ASSOCIATED_WITH"
	EdgeDerivedFrom    = "WAS_DERIVED_FROM"
)

// Derived relation types: denormalized shortcuts over the PROV core so
// task-level queries need no multi-hop traversal.
const (
	EdgeTaskCall             = "A2A_TASK_CALL"
	EdgeMessageCall          = "A2A_MESSAGE_CALL"
	EdgeTaskMessage          = "A2A_TASK_MESSAGE"
	EdgeTaskArtifact         = "A2A_TASK_ARTIFACT"
	EdgeTaskStatusTransition = "A2A_TASK_STATUS_TRANSITION"
)

// Semantic overlay labels carried in the edge "label" property. They name
// the relationship in domain terms without changing the PROV type or
// direction.
const (
	SemSpawnedBy        = "WAS_SPAWNED_BY"
	SemReceivedBy       = "WAS_RECEIVED_BY"
	SemConsumedBy       = "WAS_CONSUMED_BY"
	SemUpdatedBy        = "WAS_UPDATED_BY"
	SemUsedBy           = "WAS_USED_BY"
	SemBootstrappedBy   = "WAS_BOOTSTRAPPED_BY"
	SemEmittedBy        = "WAS_EMITTED_BY"
	SemGeneratedBy      = "WAS_GENERATED_BY"
	SemCreatedBy        = "WAS_CREATED_BY"
	SemExecutedBy       = "WAS_EXECUTED_BY"
	SemInvokedBy        = "WAS_INVOKED_BY"
	SemCalledBy         = "WAS_CALLED_BY"
	SemTransitionedTo   = "WAS_TRANSITIONED_TO"
	SemTransitionedFrom = "WAS_TRANSITIONED_FROM"
	SemRelatedTo        = "WAS_RELATED_TO"
)

// Usage roles on USED edges and association roles on WAS_ASSOCIATED_WITH
// edges.
const (
	RolePrompt         = "prompt"
	RoleArgs           = "args"
	RoleArchive        = "archive"
	RoleInputMessage   = "input_message"
	RoleTaskState      = "task_state"
	RoleExecutingAgent = "executing_agent"
	RoleInvokingAgent  = "invoking_agent"
	RoleCallingAgent   = "calling_agent"
)

// Message directions, recorded on message nodes and task-message edges.
const (
	DirectionReceived = "received"
	DirectionSent     = "sent"
)

// AgentTypeRunner is the agent_type of the fixed runner principal.
const AgentTypeRunner = "runner"

// Property names shared across nodes and edges.
const (
	PropName        = "name"
	PropBaseType    = "base_type"
	PropContextID   = "context_id"
	PropEventID     = "event_id"
	PropTaskID      = "task_id"
	PropStartTimeMS = "start_time_ms"
	PropEndTimeMS   = "end_time_ms"
	PropLabel       = "label"
	PropRole        = "role"
	PropTime        = "time"
	PropActivity    = "activity"
	PropProvType    = "prov_type"
	PropRelation    = "relation"
	PropDirection   = "direction"
	PropTimestampMS = "timestamp_ms"
)

// baseTypeByLabel fixes each label's PROV base class.
var baseTypeByLabel = map[string]BaseType{
	LabelTask:              BaseEntity,
	LabelTaskState:         BaseEntity,
	LabelTaskExecution:     BaseActivity,
	LabelMessage:           BaseEntity,
	LabelMessageProcessing: BaseActivity,
	LabelLlmCall:           BaseActivity,
	LabelLlmPrompt:         BaseEntity,
	LabelToolCall:          BaseActivity,
	LabelToolArgs:          BaseEntity,
	LabelAgentBoot:         BaseActivity,
	LabelAgentArchive:      BaseEntity,
	LabelAgentInstance:     BaseAgent,
	LabelArtifact:          BaseEntity,
}

// BaseTypeOf returns the PROV base class of a node label.
func BaseTypeOf(label string) (BaseType, bool) {
	bt, ok := baseTypeByLabel[label]
	return bt, ok
}
