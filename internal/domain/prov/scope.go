package prov

// CallScope says on whose behalf an LLM or tool call ran: exactly one of a
// message flow or a task flow. The zero value is invalid; construct through
// MessageScope or TaskScope so both-set is unrepresentable.
type CallScope struct {
	messageID string
	taskID    string
}

// MessageScope scopes a call to a message-processing flow.
func MessageScope(messageID string) CallScope {
	return CallScope{messageID: messageID}
}

// TaskScope scopes a call to a task-execution flow.
func TaskScope(taskID string) CallScope {
	return CallScope{taskID: taskID}
}

// MessageID returns the message id and true when the scope is a message scope.
func (s CallScope) MessageID() (string, bool) {
	return s.messageID, s.messageID != ""
}

// TaskID returns the task id and true when the scope is a task scope.
func (s CallScope) TaskID() (string, bool) {
	return s.taskID, s.taskID != ""
}

// IsZero reports whether the scope was never set.
func (s CallScope) IsZero() bool {
	return s.messageID == "" && s.taskID == ""
}
