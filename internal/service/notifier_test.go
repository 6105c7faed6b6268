package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hxplabs/hxpd/internal/domain/event"
	"github.com/hxplabs/hxpd/internal/port/messagequeue"
)

// mockQueue records published messages.
type mockQueue struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (m *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (m *mockQueue) Drain() error       { return nil }
func (m *mockQueue) Close() error       { return nil }
func (m *mockQueue) IsConnected() bool  { return true }

func (m *mockQueue) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subjects...)
}

func eventOf(t event.Type, projectID string) event.RequestEvent {
	return event.RequestEvent{
		Type:      t,
		RequestID: "r1",
		ProjectID: projectID,
		AgentID:   "agent-1",
		Timestamp: time.Now().UTC(),
	}
}

func TestNotifierSubscribeReceives(t *testing.T) {
	n := NewNotifier(nil, nil)
	sub := n.Subscribe(EventFilter{})
	defer n.Unsubscribe(sub.ID)

	n.Publish(context.Background(), eventOf(event.TypeRequestCreated, "p1"))

	select {
	case ev := <-sub.C:
		if ev.Type != event.TypeRequestCreated || ev.RequestID != "r1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestNotifierFilters(t *testing.T) {
	n := NewNotifier(nil, nil)

	projSub := n.Subscribe(EventFilter{ProjectID: "p1"})
	typeSub := n.Subscribe(EventFilter{Types: []event.Type{event.TypeRequestCompleted}})
	defer n.Unsubscribe(projSub.ID)
	defer n.Unsubscribe(typeSub.ID)

	n.Publish(context.Background(), eventOf(event.TypeRequestCreated, "p2"))

	select {
	case ev := <-projSub.C:
		t.Errorf("project filter leaked event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case ev := <-typeSub.C:
		t.Errorf("type filter leaked event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	n.Publish(context.Background(), eventOf(event.TypeRequestCompleted, "p1"))

	for _, sub := range []*Subscription{projSub, typeSub} {
		select {
		case <-sub.C:
		case <-time.After(time.Second):
			t.Fatal("matching event not delivered")
		}
	}
}

func TestNotifierUnsubscribeClosesStream(t *testing.T) {
	n := NewNotifier(nil, nil)
	sub := n.Subscribe(EventFilter{})
	n.Unsubscribe(sub.ID)

	if _, open := <-sub.C; open {
		t.Error("channel still open after unsubscribe")
	}
	if n.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d, want 0", n.SubscriberCount())
	}

	// Unsubscribing twice must not panic.
	n.Unsubscribe(sub.ID)
}

func TestNotifierLaggingSubscriberDropsNotBlocks(t *testing.T) {
	n := NewNotifier(nil, nil)
	sub := n.Subscribe(EventFilter{})
	defer n.Unsubscribe(sub.ID)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			n.Publish(context.Background(), eventOf(event.TypeRequestCreated, "p1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
}

func TestNotifierQueuePublish(t *testing.T) {
	q := &mockQueue{}
	n := NewNotifier(nil, q)

	n.Publish(context.Background(), eventOf(event.TypeRequestCompleted, "p1"))
	n.Publish(context.Background(), eventOf(event.TypeRequestExpired, "p1"))

	got := q.published()
	want := []string{messagequeue.SubjectRequestCompleted, messagequeue.SubjectRequestExpired}
	if len(got) != len(want) {
		t.Fatalf("published %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subject %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestNotifierQueueFailureIsBestEffort(t *testing.T) {
	q := &mockQueue{fail: true}
	n := NewNotifier(nil, q)
	sub := n.Subscribe(EventFilter{})
	defer n.Unsubscribe(sub.ID)

	// A failing queue must not stop in-process delivery.
	n.Publish(context.Background(), eventOf(event.TypeRequestCreated, "p1"))

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("in-process delivery failed alongside the queue")
	}
}
