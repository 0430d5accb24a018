package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// EventApplied is broadcast after an event's change-set is committed.
const EventApplied = "prov.event_applied"

// AppliedEvent describes one committed event for live consumers.
type AppliedEvent struct {
	EventID   string `json:"event_id"`
	ContextID string `json:"context_id"`
	TaskID    string `json:"task_id,omitempty"`
	Kind      string `json:"kind"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
