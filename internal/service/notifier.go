package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hxplabs/hxpd/internal/domain/event"
	"github.com/hxplabs/hxpd/internal/port/broadcast"
	"github.com/hxplabs/hxpd/internal/port/messagequeue"
	"github.com/hxplabs/hxpd/internal/resilience"
)

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls this far behind starts losing events; the store remains
// authoritative so it can recover with a Get.
const subscriberBuffer = 64

// EventFilter selects which lifecycle events a subscription receives. Zero
// fields match everything.
type EventFilter struct {
	ProjectID string
	AgentID   string
	Types     []event.Type
}

func (f EventFilter) matches(ev event.RequestEvent) bool {
	if f.ProjectID != "" && ev.ProjectID != f.ProjectID {
		return false
	}
	if f.AgentID != "" && ev.AgentID != f.AgentID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == ev.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Subscription is a live stream of matching request events.
type Subscription struct {
	ID     string
	C      <-chan event.RequestEvent
	filter EventFilter
	ch     chan event.RequestEvent
}

// Notifier fans request lifecycle events out to in-process subscribers, the
// WebSocket hub, and the message queue. Delivery is best-effort: a full
// subscriber channel drops rather than blocking a state transition.
type Notifier struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	caster  broadcast.Broadcaster // optional
	queue   messagequeue.Queue    // optional
	breaker *resilience.Breaker   // guards queue publishes
}

// NewNotifier creates a Notifier. Both the broadcaster and the queue may be
// nil; in-process subscriptions always work.
func NewNotifier(caster broadcast.Broadcaster, queue messagequeue.Queue) *Notifier {
	return &Notifier{
		subs:    make(map[string]*Subscription),
		caster:  caster,
		queue:   queue,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Subscribe opens a filtered event stream.
func (n *Notifier) Subscribe(filter EventFilter) *Subscription {
	ch := make(chan event.RequestEvent, subscriberBuffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		C:      ch,
		filter: filter,
		ch:     ch,
	}
	n.mu.Lock()
	n.subs[sub.ID] = sub
	n.mu.Unlock()
	return sub
}

// Unsubscribe closes a subscription's stream.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	sub, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// SubscriberCount returns the number of open subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Publish delivers an event to every transport.
func (n *Notifier) Publish(ctx context.Context, ev event.RequestEvent) {
	n.mu.RLock()
	for _, sub := range n.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Debug("subscriber lagging, event dropped",
				"subscription", sub.ID, "request_id", ev.RequestID)
		}
	}
	n.mu.RUnlock()

	if n.caster != nil {
		n.caster.BroadcastEvent(ctx, string(ev.Type), ev)
	}

	if n.queue != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshal request event", "request_id", ev.RequestID, "error", err)
			return
		}
		// Queue publication is best-effort; the store stays authoritative.
		// The breaker stops hammering a broker that is already down.
		err = n.breaker.Execute(func() error {
			return n.queue.Publish(ctx, subjectFor(ev.Type), data)
		})
		if err != nil {
			slog.Warn("queue publish failed", "subject", subjectFor(ev.Type), "error", err)
		}
	}
}

// subjectFor maps an event type to its queue subject.
func subjectFor(t event.Type) string {
	switch t {
	case event.TypeRequestCreated:
		return messagequeue.SubjectRequestCreated
	case event.TypeRequestAssigned:
		return messagequeue.SubjectRequestAssigned
	case event.TypeRequestCompleted:
		return messagequeue.SubjectRequestCompleted
	case event.TypeRequestExpired:
		return messagequeue.SubjectRequestExpired
	case event.TypeRequestFailed:
		return messagequeue.SubjectRequestFailed
	default:
		return messagequeue.SubjectRequestCancelled
	}
}
