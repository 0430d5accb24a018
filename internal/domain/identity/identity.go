// Package identity builds the deterministic node keys the graph is keyed
// by. Keys are pure functions of event fields: the same event always names
// the same nodes, which is what makes replayed writes idempotent.
//
// Four identity classes exist: derived keys (built from task/message/event
// ids), runtime keys (agent instances), archive keys (sanitized package
// paths) and the fixed runner principal.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentifier is returned when a key component is empty or blank.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Runner is the fixed agent principal associated with every activity the
// runtime itself performs.
const Runner = "agent:runner"

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, field)
	}
	return nil
}

// Task keys the A2ATask entity.
func Task(taskID string) (string, error) {
	if err := require("task_id", taskID); err != nil {
		return "", err
	}
	return "task:" + taskID, nil
}

// TaskExecution keys the long-lived activity spanning a task's lifetime.
func TaskExecution(taskID string) (string, error) {
	if err := require("task_id", taskID); err != nil {
		return "", err
	}
	return "task_execution_" + taskID, nil
}

// TaskState keys the entity snapshotting a task's status at a transition.
func TaskState(taskID string, timestampMS int64) (string, error) {
	if err := require("task_id", taskID); err != nil {
		return "", err
	}
	return fmt.Sprintf("task_state:%s:%d", taskID, timestampMS), nil
}

// TaskStateOld keys the synthetic pre-transition state entity emitted when a
// status change reports the status it transitioned away from.
func TaskStateOld(taskID string, timestampMS int64) (string, error) {
	key, err := TaskState(taskID, timestampMS)
	if err != nil {
		return "", err
	}
	return key + ":old", nil
}

// LlmCall keys the activity of a single model invocation. Event ids are
// unique per emission, so started/completed pairs share a key only when the
// runtime reuses the id for both, which is the contract.
func LlmCall(eventID string) (string, error) {
	if err := require("event_id", eventID); err != nil {
		return "", err
	}
	return "llm_call:" + eventID, nil
}

// LlmPrompt keys the prompt entity consumed by a model invocation.
func LlmPrompt(eventID string) (string, error) {
	if err := require("event_id", eventID); err != nil {
		return "", err
	}
	return "llm_prompt:" + eventID, nil
}

// ToolCall keys the activity of a single tool invocation.
func ToolCall(eventID string) (string, error) {
	if err := require("event_id", eventID); err != nil {
		return "", err
	}
	return "tool_call:" + eventID, nil
}

// ToolArgs keys the argument entity consumed by a tool invocation.
func ToolArgs(eventID string) (string, error) {
	if err := require("event_id", eventID); err != nil {
		return "", err
	}
	return "tool_args:" + eventID, nil
}

// Message keys the A2AMessage entity.
func Message(messageID string) (string, error) {
	if err := require("message_id", messageID); err != nil {
		return "", err
	}
	return "message:" + messageID, nil
}

// MessageProcessing keys the activity handling a message.
func MessageProcessing(messageID string) (string, error) {
	if err := require("message_id", messageID); err != nil {
		return "", err
	}
	return "message_processing:" + messageID, nil
}

// Agent keys an agent principal by its runtime id.
func Agent(agentID string) (string, error) {
	if err := require("agent_id", agentID); err != nil {
		return "", err
	}
	return "agent:" + agentID, nil
}

// AgentInstance keys the runtime-instance entity of a booted agent.
func AgentInstance(agentID string) (string, error) {
	if err := require("agent_id", agentID); err != nil {
		return "", err
	}
	return "agent_instance:" + agentID, nil
}

// AgentBoot keys the boot activity of an agent instance.
func AgentBoot(agentID string) (string, error) {
	if err := require("agent_id", agentID); err != nil {
		return "", err
	}
	return "agent_boot:" + agentID, nil
}

// Archive keys the package archive an agent booted from. Path separators are
// flattened so the key stays a single token regardless of platform.
func Archive(archive string) (string, error) {
	if err := require("archive", archive); err != nil {
		return "", err
	}
	flat := strings.NewReplacer("/", "_", "\\", "_").Replace(archive)
	return "archive:" + flat, nil
}

// Artifact keys an artifact with a three-level fallback: an explicit
// artifact id wins, else the (task, type) pair, else the (task, event) pair
// so every generation event still names a stable artifact.
func Artifact(taskID, eventID, artifactID, artifactType string) (string, error) {
	if strings.TrimSpace(artifactID) != "" {
		return "artifact:" + artifactID, nil
	}
	if err := require("task_id", taskID); err != nil {
		return "", err
	}
	if strings.TrimSpace(artifactType) != "" {
		return fmt.Sprintf("artifact:%s:%s", taskID, artifactType), nil
	}
	if err := require("event_id", eventID); err != nil {
		return "", err
	}
	return fmt.Sprintf("artifact:%s:%s", taskID, eventID), nil
}
