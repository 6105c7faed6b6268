// Package event defines the RequestEvent entity emitted on every request
// state change.
package event

import (
	"time"

	"github.com/hxplabs/hxpd/internal/domain/request"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeRequestCreated   Type = "request.created"
	TypeRequestAssigned  Type = "request.assigned"
	TypeRequestCompleted Type = "request.completed"
	TypeRequestExpired   Type = "request.expired"
	TypeRequestFailed    Type = "request.failed"
	TypeRequestCancelled Type = "request.cancelled"
)

// ForStatus maps a request status to its event type.
func ForStatus(s request.Status) Type {
	switch s {
	case request.StatusAssigned:
		return TypeRequestAssigned
	case request.StatusCompleted:
		return TypeRequestCompleted
	case request.StatusExpired:
		return TypeRequestExpired
	case request.StatusFailed:
		return TypeRequestFailed
	case request.StatusCancelled:
		return TypeRequestCancelled
	default:
		return TypeRequestCreated
	}
}

// RequestEvent is the notification fan-out unit. The store remains
// authoritative: a subscriber that misses an event recovers the same facts
// from a Get against the store.
type RequestEvent struct {
	Type      Type           `json:"type"`
	RequestID string         `json:"request_id"`
	ProjectID string         `json:"project_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Role      request.Role   `json:"role,omitempty"`
	Status    request.Status `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}
