package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hxplabs/hxpd/internal/domain/event"
)

// BroadcastEvent implements the broadcast port: it marshals the payload and
// fans it out to matching connections. Request events are routed through
// their project/agent scope; other payloads go to every connection.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var projectID, agentID string
	if ev, ok := payload.(event.RequestEvent); ok {
		projectID, agentID = ev.ProjectID, ev.AgentID
	}

	h.broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	}, projectID, agentID)
}
