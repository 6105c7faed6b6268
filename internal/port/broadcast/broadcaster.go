// Package broadcast defines the port for pushing request events to connected
// human clients.
package broadcast

import "context"

// Broadcaster sends real-time request events to all connected clients.
// Delivery is best-effort; the request store stays authoritative.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
