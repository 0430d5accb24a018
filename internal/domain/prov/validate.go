package prov

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation sentinels. Validate wraps each with the offending field so
// callers can both classify (errors.Is) and report.
var (
	ErrMissingScope     = errors.New("call event missing scope")
	ErrMissingTaskID    = errors.New("missing task id")
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrMissingField     = errors.New("missing required field")
)

// Validate checks an event for structural completeness. It is total and
// side-effect free: a nil error means the normalizer can map the event
// without further checks.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: event_id", ErrMissingField)
	}
	if e.ContextID == "" {
		return fmt.Errorf("%w: context_id", ErrMissingField)
	}
	if e.Data == nil {
		return fmt.Errorf("%w: payload", ErrMissingField)
	}

	switch d := e.Data.(type) {
	case LlmCallStarted:
		return e.validateCallScope(d.Scope)
	case LlmCallCompleted:
		return e.validateCallScope(d.Scope)
	case ToolCallStarted:
		return e.validateCallScope(d.Scope)
	case ToolCallCompleted:
		return e.validateCallScope(d.Scope)
	case TaskCreated:
		if err := e.validateTaskID(d.TaskID); err != nil {
			return err
		}
		if d.AgentID == "" {
			return fmt.Errorf("%w: agent_id", ErrMissingField)
		}
		if _, err := uuid.Parse(d.AgentID); err != nil {
			return fmt.Errorf("%w: agent_id %q is not a uuid", ErrMissingField, d.AgentID)
		}
		return nil
	case TaskStatusChanged:
		if err := e.validateTaskID(d.TaskID); err != nil {
			return err
		}
		if d.NewStatus == "" {
			return fmt.Errorf("%w: new_status", ErrMissingField)
		}
		return nil
	case TaskArtifactGenerated:
		return e.validateTaskID(d.TaskID)
	case MessageReceived:
		return validateMessage(d.MessageID, d.Metadata)
	case MessageSent:
		return validateMessage(d.MessageID, d.Metadata)
	case AgentBoot:
		if d.AgentID == "" {
			return fmt.Errorf("%w: agent_id", ErrMissingField)
		}
		if _, err := uuid.Parse(d.AgentID); err != nil {
			return fmt.Errorf("%w: agent_id %q is not a uuid", ErrMissingField, d.AgentID)
		}
		if d.AgentType == "" {
			return fmt.Errorf("%w: agent_type", ErrMissingField)
		}
		if d.Archive == "" {
			return fmt.Errorf("%w: archive", ErrMissingField)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventKind, e.Data)
	}
}

// validateCallScope enforces the exactly-one scope rule and the scope /
// envelope consistency rules: a task-scoped call must name the envelope's
// task, and a message-scoped call may only appear on a task-less envelope
// (message flows run outside any task).
func (e Event) validateCallScope(s CallScope) error {
	if s.IsZero() {
		return ErrMissingScope
	}
	if taskID, ok := s.TaskID(); ok {
		if e.TaskID == "" {
			return fmt.Errorf("%w: task-scoped call on task-less event", ErrMissingTaskID)
		}
		if taskID != e.TaskID {
			return fmt.Errorf("scope task %q does not match event task %q", taskID, e.TaskID)
		}
		return nil
	}
	if e.TaskID != "" {
		return fmt.Errorf("message-scoped call carries task id %q", e.TaskID)
	}
	return nil
}

// validateTaskID requires both the payload and envelope to carry the same
// task id.
func (e Event) validateTaskID(taskID string) error {
	if taskID == "" || e.TaskID == "" {
		return ErrMissingTaskID
	}
	if taskID != e.TaskID {
		return fmt.Errorf("payload task %q does not match event task %q", taskID, e.TaskID)
	}
	return nil
}

func validateMessage(messageID string, metadata map[string]string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message_id", ErrMissingField)
	}
	agentID, ok := metadata[MetadataAgentID]
	if !ok || agentID == "" {
		return fmt.Errorf("%w: metadata.%s", ErrMissingField, MetadataAgentID)
	}
	if _, err := uuid.Parse(agentID); err != nil {
		return fmt.Errorf("%w: metadata.%s %q is not a uuid", ErrMissingField, MetadataAgentID, agentID)
	}
	return nil
}
