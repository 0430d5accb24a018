// Package normalizer maps provenance events onto graph change-sets. It is
// pure and stateless: the same event always yields the same change-set, and
// referenced-but-unseen nodes (a task whose creation event never arrived,
// an agent that never booted) are merged sparsely and enriched when their
// own event lands.
package normalizer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/provgraph/provgraph/internal/domain/graph"
	"github.com/provgraph/provgraph/internal/domain/identity"
	"github.com/provgraph/provgraph/internal/domain/prov"
)

// Normalize converts one validated event into the node and edge upserts the
// store applies atomically.
func Normalize(e prov.Event) (*graph.ChangeSet, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	cs := graph.NewChangeSet()
	var err error
	switch d := e.Data.(type) {
	case prov.LlmCallStarted:
		err = normalizeLlmStarted(cs, e, d)
	case prov.LlmCallCompleted:
		err = normalizeLlmCompleted(cs, e, d)
	case prov.ToolCallStarted:
		err = normalizeToolStarted(cs, e, d)
	case prov.ToolCallCompleted:
		err = normalizeToolCompleted(cs, e, d)
	case prov.TaskCreated:
		err = normalizeTaskCreated(cs, e, d)
	case prov.TaskStatusChanged:
		err = normalizeTaskStatusChanged(cs, e, d)
	case prov.TaskArtifactGenerated:
		err = normalizeTaskArtifact(cs, e, d)
	case prov.MessageReceived:
		err = normalizeMessage(cs, e, d.MessageID, d.Role, d.Content, d.Metadata, graph.DirectionReceived)
	case prov.MessageSent:
		err = normalizeMessage(cs, e, d.MessageID, d.Role, d.Content, d.Metadata, graph.DirectionSent)
	case prov.AgentBoot:
		err = normalizeAgentBoot(cs, e, d)
	default:
		err = fmt.Errorf("%w: %T", prov.ErrUnknownEventKind, e.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("normalize %s event %s: %w", e.Data.Kind(), e.ID, err)
	}
	return cs, nil
}

func normalizeLlmStarted(cs *graph.ChangeSet, e prov.Event, d prov.LlmCallStarted) error {
	props := baseProps(e)
	props["client"] = d.Client
	props["model"] = d.Model
	props["function_name"] = d.Function
	props[graph.PropStartTimeMS] = e.TimestampMS
	addMetadata(props, d.Metadata)

	act, err := llmCallActivity(cs, e, props)
	if err != nil {
		return err
	}
	if err := mergePromptEntity(cs, e, act, d.Prompt); err != nil {
		return err
	}
	return attachCallScope(cs, e, d.Scope, d.Metadata, act)
}

func normalizeLlmCompleted(cs *graph.ChangeSet, e prov.Event, d prov.LlmCallCompleted) error {
	props := baseProps(e)
	props["client"] = d.Client
	props["model"] = d.Model
	props["function_name"] = d.Function
	props["duration_ms"] = d.DurationMS
	props["success"] = d.Success
	props[graph.PropEndTimeMS] = e.TimestampMS
	if d.Usage.Known {
		props["usage_prompt_tokens"] = d.Usage.PromptTokens
		props["usage_completion_tokens"] = d.Usage.CompletionTokens
		props["usage_total_tokens"] = d.Usage.TotalTokens
	}
	addMetadata(props, d.Metadata)

	act, err := llmCallActivity(cs, e, props)
	if err != nil {
		return err
	}
	if err := mergePromptEntity(cs, e, act, d.Prompt); err != nil {
		return err
	}
	return attachCallScope(cs, e, d.Scope, d.Metadata, act)
}

func normalizeToolStarted(cs *graph.ChangeSet, e prov.Event, d prov.ToolCallStarted) error {
	props := baseProps(e)
	props["tool_name"] = d.Tool
	if d.Function != "" {
		props["function_name"] = d.Function
	}
	props[graph.PropStartTimeMS] = e.TimestampMS
	addMetadata(props, d.Metadata)

	act, err := toolCallActivity(cs, e, props)
	if err != nil {
		return err
	}
	if err := mergeArgsEntity(cs, e, act, d.Args); err != nil {
		return err
	}
	return attachCallScope(cs, e, d.Scope, d.Metadata, act)
}

func normalizeToolCompleted(cs *graph.ChangeSet, e prov.Event, d prov.ToolCallCompleted) error {
	props := baseProps(e)
	props["tool_name"] = d.Tool
	if d.Function != "" {
		props["function_name"] = d.Function
	}
	props["duration_ms"] = d.DurationMS
	props["success"] = d.Success
	props[graph.PropEndTimeMS] = e.TimestampMS
	addMetadata(props, d.Metadata)

	act, err := toolCallActivity(cs, e, props)
	if err != nil {
		return err
	}
	if err := mergeArgsEntity(cs, e, act, d.Args); err != nil {
		return err
	}
	return attachCallScope(cs, e, d.Scope, d.Metadata, act)
}

func normalizeTaskCreated(cs *graph.ChangeSet, e prov.Event, d prov.TaskCreated) error {
	task, err := ensureTask(cs, e, d.AgentID)
	if err != nil {
		return err
	}
	start := e.TimestampMS
	exec, err := ensureTaskExecution(cs, e, &start, nil)
	if err != nil {
		return err
	}
	generatedBy(cs, task, exec, e.TimestampMS)

	inst, err := agentInstance(cs, d.AgentID)
	if err != nil {
		return err
	}
	associate(cs, exec, inst, graph.RoleExecutingAgent)
	associate(cs, exec, runnerInstance(cs), graph.RoleInvokingAgent)
	return nil
}

func normalizeTaskStatusChanged(cs *graph.ChangeSet, e prov.Event, d prov.TaskStatusChanged) error {
	task, err := ensureTask(cs, e, "")
	if err != nil {
		return err
	}
	var end *int64
	if isTerminalStatus(d.NewStatus) {
		end = &e.TimestampMS
	}
	exec, err := ensureTaskExecution(cs, e, nil, end)
	if err != nil {
		return err
	}

	stateKey, err := identity.TaskState(d.TaskID, e.TimestampMS)
	if err != nil {
		return err
	}
	stateProps := baseProps(e)
	stateProps["task_state"] = d.NewStatus
	stateProps["task_state_time"] = e.TimestampMS
	if d.OldStatus != "" {
		stateProps["old_status"] = d.OldStatus
	}
	state := graph.NodeRef{Key: stateKey, Label: graph.LabelTaskState}
	cs.MergeNode(graph.Node{Key: stateKey, Label: graph.LabelTaskState, Base: graph.BaseEntity, Props: stateProps})
	used(cs, exec, state, graph.RoleTaskState)

	if end != nil {
		generatedBy(cs, task, exec, e.TimestampMS)
	}

	if d.OldStatus == "" {
		return nil
	}
	oldKey, err := identity.TaskStateOld(d.TaskID, e.TimestampMS)
	if err != nil {
		return err
	}
	oldProps := baseProps(e)
	oldProps["task_state"] = d.OldStatus
	oldProps["task_state_time"] = e.TimestampMS
	oldProps["is_previous"] = true
	old := graph.NodeRef{Key: oldKey, Label: graph.LabelTaskState}
	cs.MergeNode(graph.Node{Key: oldKey, Label: graph.LabelTaskState, Base: graph.BaseEntity, Props: oldProps})

	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeDerivedFrom,
		Label: graph.SemTransitionedFrom,
		From:  state,
		To:    old,
		Props: map[string]any{
			graph.PropActivity: exec.Key,
			graph.PropProvType: "status_transition",
		},
	})
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeTaskStatusTransition,
		Label: graph.SemTransitionedTo,
		From:  old,
		To:    state,
		Props: derivedProps(e),
	})
	return nil
}

func normalizeTaskArtifact(cs *graph.ChangeSet, e prov.Event, d prov.TaskArtifactGenerated) error {
	task, err := ensureTask(cs, e, "")
	if err != nil {
		return err
	}
	exec, err := ensureTaskExecution(cs, e, nil, nil)
	if err != nil {
		return err
	}
	key, err := identity.Artifact(d.TaskID, e.ID, d.ArtifactID, d.ArtifactType)
	if err != nil {
		return err
	}
	props := baseProps(e)
	if d.ArtifactID != "" {
		props["artifact_id"] = d.ArtifactID
	}
	if d.ArtifactType != "" {
		props["artifact_type"] = d.ArtifactType
	}
	artifact := graph.NodeRef{Key: key, Label: graph.LabelArtifact}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelArtifact, Base: graph.BaseEntity, Props: props})

	generatedBy(cs, artifact, exec, e.TimestampMS)
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeTaskArtifact,
		Label: graph.SemGeneratedBy,
		From:  task,
		To:    artifact,
		Props: derivedProps(e),
	})
	return nil
}

func normalizeMessage(cs *graph.ChangeSet, e prov.Event, messageID, role string, content []string, metadata map[string]string, direction string) error {
	msgKey, err := identity.Message(messageID)
	if err != nil {
		return err
	}
	msgProps := baseProps(e)
	msgProps["role"] = role
	msgProps["content"] = append([]string(nil), content...)
	msgProps[graph.PropDirection] = direction
	addMetadata(msgProps, metadata)
	msg := graph.NodeRef{Key: msgKey, Label: graph.LabelMessage}
	cs.MergeNode(graph.Node{Key: msgKey, Label: graph.LabelMessage, Base: graph.BaseEntity, Props: msgProps})

	procKey, err := identity.MessageProcessing(messageID)
	if err != nil {
		return err
	}
	procProps := baseProps(e)
	procProps["message_id"] = messageID
	procProps["role"] = role
	procProps[graph.PropDirection] = direction
	procProps[graph.PropStartTimeMS] = e.TimestampMS
	proc := graph.NodeRef{Key: procKey, Label: graph.LabelMessageProcessing}
	cs.MergeNode(graph.Node{Key: procKey, Label: graph.LabelMessageProcessing, Base: graph.BaseActivity, Props: procProps})

	agentID, err := metadataAgentID(metadata)
	if err != nil {
		return err
	}
	inst, err := agentInstance(cs, agentID)
	if err != nil {
		return err
	}
	associate(cs, proc, inst, graph.RoleExecutingAgent)
	associate(cs, proc, runnerInstance(cs), graph.RoleInvokingAgent)

	if direction == graph.DirectionReceived {
		used(cs, proc, msg, graph.RoleInputMessage)
	} else {
		generatedBy(cs, msg, proc, e.TimestampMS)
	}

	if e.TaskID == "" {
		return nil
	}
	task, err := ensureTask(cs, e, agentID)
	if err != nil {
		return err
	}
	exec, err := ensureTaskExecution(cs, e, nil, nil)
	if err != nil {
		return err
	}
	if direction == graph.DirectionReceived {
		used(cs, exec, msg, graph.RoleInputMessage)
	}
	props := derivedProps(e)
	props[graph.PropDirection] = direction
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeTaskMessage,
		Label: taskMessageLabel(direction),
		From:  task,
		To:    msg,
		Props: props,
	})
	return nil
}

func normalizeAgentBoot(cs *graph.ChangeSet, e prov.Event, d prov.AgentBoot) error {
	archiveKey, err := identity.Archive(d.Archive)
	if err != nil {
		return err
	}
	archiveProps := baseProps(e)
	archiveProps["archive"] = d.Archive
	archive := graph.NodeRef{Key: archiveKey, Label: graph.LabelAgentArchive}
	cs.MergeNode(graph.Node{Key: archiveKey, Label: graph.LabelAgentArchive, Base: graph.BaseEntity, Props: archiveProps})

	bootKey, err := identity.AgentBoot(d.AgentID)
	if err != nil {
		return err
	}
	bootProps := baseProps(e)
	bootProps["agent_id"] = d.AgentID
	bootProps["agent_type"] = d.AgentType
	bootProps["agent_version"] = d.AgentVersion
	bootProps[graph.PropStartTimeMS] = e.TimestampMS
	bootProps[graph.PropEndTimeMS] = e.TimestampMS
	boot := graph.NodeRef{Key: bootKey, Label: graph.LabelAgentBoot}
	cs.MergeNode(graph.Node{Key: bootKey, Label: graph.LabelAgentBoot, Base: graph.BaseActivity, Props: bootProps})

	used(cs, boot, archive, graph.RoleArchive)

	inst, err := agentInstance(cs, d.AgentID)
	if err != nil {
		return err
	}
	cs.MergeNode(graph.Node{
		Key: inst.Key, Label: inst.Label, Base: graph.BaseAgent,
		Props: map[string]any{
			"agent_type":        d.AgentType,
			"agent_version":     d.AgentVersion,
			graph.PropContextID: e.ContextID,
			graph.PropEventID:   e.ID,
		},
	})
	generatedBy(cs, inst, boot, e.TimestampMS)
	associate(cs, boot, runnerInstance(cs), graph.RoleExecutingAgent)
	return nil
}

// --- shared construction helpers ---

func llmCallActivity(cs *graph.ChangeSet, e prov.Event, props map[string]any) (graph.NodeRef, error) {
	key, err := identity.LlmCall(e.ID)
	if err != nil {
		return graph.NodeRef{}, err
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelLlmCall}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelLlmCall, Base: graph.BaseActivity, Props: props})
	return ref, nil
}

func toolCallActivity(cs *graph.ChangeSet, e prov.Event, props map[string]any) (graph.NodeRef, error) {
	key, err := identity.ToolCall(e.ID)
	if err != nil {
		return graph.NodeRef{}, err
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelToolCall}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelToolCall, Base: graph.BaseActivity, Props: props})
	return ref, nil
}

func mergePromptEntity(cs *graph.ChangeSet, e prov.Event, act graph.NodeRef, prompt []byte) error {
	key, err := identity.LlmPrompt(e.ID)
	if err != nil {
		return err
	}
	props := baseProps(e)
	if len(prompt) > 0 {
		props["prompt"] = string(prompt)
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelLlmPrompt}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelLlmPrompt, Base: graph.BaseEntity, Props: props})
	used(cs, act, ref, graph.RolePrompt)
	return nil
}

func mergeArgsEntity(cs *graph.ChangeSet, e prov.Event, act graph.NodeRef, args []byte) error {
	key, err := identity.ToolArgs(e.ID)
	if err != nil {
		return err
	}
	props := baseProps(e)
	if len(args) > 0 {
		props["args"] = string(args)
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelToolArgs}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelToolArgs, Base: graph.BaseEntity, Props: props})
	used(cs, act, ref, graph.RoleArgs)
	return nil
}

// attachCallScope links a call activity into its message or task flow and
// records the matching derived shortcut edge.
func attachCallScope(cs *graph.ChangeSet, e prov.Event, scope prov.CallScope, metadata map[string]string, act graph.NodeRef) error {
	if messageID, ok := scope.MessageID(); ok {
		if err := attachMessageContext(cs, e, act, messageID); err != nil {
			return err
		}
	}
	if e.TaskID != "" {
		return attachTaskCallContext(cs, e, act, metadata)
	}
	return nil
}

func attachMessageContext(cs *graph.ChangeSet, e prov.Event, act graph.NodeRef, messageID string) error {
	msgKey, err := identity.Message(messageID)
	if err != nil {
		return err
	}
	props := baseProps(e)
	props["message_id"] = messageID
	msg := graph.NodeRef{Key: msgKey, Label: graph.LabelMessage}
	cs.MergeNode(graph.Node{Key: msgKey, Label: graph.LabelMessage, Base: graph.BaseEntity, Props: props})
	used(cs, act, msg, graph.RoleInputMessage)

	procKey, err := identity.MessageProcessing(messageID)
	if err != nil {
		return err
	}
	proc := graph.NodeRef{Key: procKey, Label: graph.LabelMessageProcessing}
	cs.MergeNode(graph.Node{
		Key: procKey, Label: graph.LabelMessageProcessing, Base: graph.BaseActivity,
		Props: map[string]any{
			graph.PropContextID: e.ContextID,
			"message_id":        messageID,
		},
	})
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeMessageCall,
		Label: callLabel(act.Label),
		From:  proc,
		To:    act,
		Props: derivedProps(e),
	})
	return nil
}

func attachTaskCallContext(cs *graph.ChangeSet, e prov.Event, act graph.NodeRef, metadata map[string]string) error {
	agentID := metadata[prov.MetadataAgentID]
	if _, err := ensureTask(cs, e, agentID); err != nil {
		return err
	}
	exec, err := ensureTaskExecution(cs, e, nil, nil)
	if err != nil {
		return err
	}
	if agentID != "" {
		if _, err := uuid.Parse(agentID); err != nil {
			return fmt.Errorf("metadata agent_id %q is not a uuid", agentID)
		}
		inst, err := agentInstance(cs, agentID)
		if err != nil {
			return err
		}
		associate(cs, act, inst, graph.RoleExecutingAgent)
	}
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeTaskCall,
		Label: callLabel(act.Label),
		From:  exec,
		To:    act,
		Props: derivedProps(e),
	})
	return nil
}

func ensureTask(cs *graph.ChangeSet, e prov.Event, agentID string) (graph.NodeRef, error) {
	key, err := identity.Task(e.TaskID)
	if err != nil {
		return graph.NodeRef{}, err
	}
	props := map[string]any{
		graph.PropTaskID:    e.TaskID,
		graph.PropContextID: e.ContextID,
	}
	if agentID != "" {
		props["agent_id"] = agentID
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelTask}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelTask, Base: graph.BaseEntity, Props: props})
	return ref, nil
}

func ensureTaskExecution(cs *graph.ChangeSet, e prov.Event, startMS, endMS *int64) (graph.NodeRef, error) {
	key, err := identity.TaskExecution(e.TaskID)
	if err != nil {
		return graph.NodeRef{}, err
	}
	props := map[string]any{
		graph.PropTaskID:    e.TaskID,
		graph.PropContextID: e.ContextID,
	}
	if startMS != nil {
		props[graph.PropStartTimeMS] = *startMS
	}
	if endMS != nil {
		props[graph.PropEndTimeMS] = *endMS
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelTaskExecution}
	cs.MergeNode(graph.Node{Key: key, Label: graph.LabelTaskExecution, Base: graph.BaseActivity, Props: props})
	return ref, nil
}

func agentInstance(cs *graph.ChangeSet, agentID string) (graph.NodeRef, error) {
	key, err := identity.AgentInstance(agentID)
	if err != nil {
		return graph.NodeRef{}, err
	}
	ref := graph.NodeRef{Key: key, Label: graph.LabelAgentInstance}
	cs.MergeNode(graph.Node{
		Key: key, Label: graph.LabelAgentInstance, Base: graph.BaseAgent,
		Props: map[string]any{"agent_id": agentID},
	})
	return ref, nil
}

func runnerInstance(cs *graph.ChangeSet) graph.NodeRef {
	ref := graph.NodeRef{Key: identity.Runner, Label: graph.LabelAgentInstance}
	cs.MergeNode(graph.Node{
		Key: identity.Runner, Label: graph.LabelAgentInstance, Base: graph.BaseAgent,
		Props: map[string]any{"agent_type": graph.AgentTypeRunner},
	})
	return ref
}

func used(cs *graph.ChangeSet, act, entity graph.NodeRef, role string) {
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeUsed,
		Label: usedLabel(role, act.Label),
		From:  act,
		To:    entity,
		Role:  role,
	})
}

func generatedBy(cs *graph.ChangeSet, generated, act graph.NodeRef, timeMS int64) {
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeGeneratedBy,
		Label: generatedByLabel(generated.Label, act.Label),
		From:  generated,
		To:    act,
		Props: map[string]any{graph.PropTime: timeMS},
	})
}

func associate(cs *graph.ChangeSet, act, agent graph.NodeRef, role string) {
	cs.MergeEdge(graph.Edge{
		Type:  graph.EdgeAssociatedWith,
		Label: associationLabel(role),
		From:  act,
		To:    agent,
		Role:  role,
	})
}

func baseProps(e prov.Event) map[string]any {
	props := map[string]any{
		graph.PropContextID: e.ContextID,
		graph.PropEventID:   e.ID,
	}
	if e.TaskID != "" {
		props[graph.PropTaskID] = e.TaskID
	}
	return props
}

func derivedProps(e prov.Event) map[string]any {
	props := map[string]any{
		graph.PropContextID:   e.ContextID,
		graph.PropTimestampMS: e.TimestampMS,
	}
	if e.TaskID != "" {
		props[graph.PropTaskID] = e.TaskID
	}
	return props
}

func addMetadata(props map[string]any, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	m := make(map[string]string, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}
	props["metadata"] = m
}

func metadataAgentID(metadata map[string]string) (string, error) {
	agentID := metadata[prov.MetadataAgentID]
	if agentID == "" {
		return "", fmt.Errorf("%w: metadata.%s", prov.ErrMissingField, prov.MetadataAgentID)
	}
	if _, err := uuid.Parse(agentID); err != nil {
		return "", fmt.Errorf("metadata agent_id %q is not a uuid", agentID)
	}
	return agentID, nil
}

func isTerminalStatus(status string) bool {
	switch strings.ToLower(status) {
	case "completed", "failed", "cancelled", "canceled":
		return true
	}
	return false
}
