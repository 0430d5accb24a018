package normalizer

import "github.com/provgraph/provgraph/internal/domain/graph"

// Semantic overlay labels are a pure function of the edge type, the usage or
// association role, and the endpoint labels. They never change the edge type
// or direction; they only name the relationship in domain terms.

func usedLabel(role, fromLabel string) string {
	switch role {
	case graph.RoleInputMessage:
		switch fromLabel {
		case graph.LabelTaskExecution:
			return graph.SemSpawnedBy
		case graph.LabelMessageProcessing:
			return graph.SemReceivedBy
		case graph.LabelLlmCall, graph.LabelToolCall:
			return graph.SemConsumedBy
		}
		return graph.SemUsedBy
	case graph.RoleTaskState:
		return graph.SemUpdatedBy
	case graph.RolePrompt, graph.RoleArgs:
		return graph.SemUsedBy
	case graph.RoleArchive:
		return graph.SemBootstrappedBy
	}
	return graph.EdgeUsed
}

func generatedByLabel(fromLabel, toLabel string) string {
	switch {
	case fromLabel == graph.LabelMessage && toLabel == graph.LabelMessageProcessing:
		return graph.SemEmittedBy
	case fromLabel == graph.LabelArtifact && toLabel == graph.LabelTaskExecution:
		return graph.SemGeneratedBy
	case fromLabel == graph.LabelTask && toLabel == graph.LabelTaskExecution:
		return graph.SemCreatedBy
	case fromLabel == graph.LabelAgentInstance && toLabel == graph.LabelAgentBoot:
		return graph.SemSpawnedBy
	}
	return graph.EdgeGeneratedBy
}

func associationLabel(role string) string {
	switch role {
	case graph.RoleExecutingAgent:
		return graph.SemExecutedBy
	case graph.RoleInvokingAgent:
		return graph.SemInvokedBy
	case graph.RoleCallingAgent:
		return graph.SemCalledBy
	}
	return graph.EdgeAssociatedWith
}

// callLabel names the A2A_TASK_CALL / A2A_MESSAGE_CALL edge after the call
// activity it points at.
func callLabel(toLabel string) string {
	switch toLabel {
	case graph.LabelLlmCall:
		return graph.SemInvokedBy
	case graph.LabelToolCall:
		return graph.SemExecutedBy
	}
	return graph.SemRelatedTo
}

func taskMessageLabel(direction string) string {
	switch direction {
	case graph.DirectionReceived:
		return graph.SemSpawnedBy
	case graph.DirectionSent:
		return graph.SemEmittedBy
	}
	return graph.SemRelatedTo
}
