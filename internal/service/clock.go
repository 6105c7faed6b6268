package service

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// deadline is one scheduled timeout, keyed by request id.
type deadline struct {
	id    string
	at    time.Time
	index int // heap index, -1 once removed
}

// deadlineHeap orders deadlines by fire time.
type deadlineHeap []*deadline

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x any)         { d := x.(*deadline); d.index = len(*h); *h = append(*h, d) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.index = -1
	*h = old[:n-1]
	return d
}

// Clock fires deadline callbacks for requests with a non-zero timeout. It is
// a single-goroutine min-heap scheduler: Schedule and CancelDeadline are safe
// from any goroutine, and a cancelled deadline can never fire afterwards.
type Clock struct {
	mu   sync.Mutex
	heap deadlineHeap
	byID map[string]*deadline
	wake chan struct{}
	fire func(id string)
}

// NewClock creates a Clock calling fire for each elapsed deadline. Callbacks
// run on their own goroutine so a slow handler never delays other deadlines.
func NewClock(fire func(id string)) *Clock {
	return &Clock{
		byID: make(map[string]*deadline),
		wake: make(chan struct{}, 1),
		fire: fire,
	}
}

// Schedule registers (or reschedules) the deadline for a request.
func (c *Clock) Schedule(id string, at time.Time) {
	c.mu.Lock()
	if d, ok := c.byID[id]; ok {
		d.at = at
		heap.Fix(&c.heap, d.index)
	} else {
		d := &deadline{id: id, at: at}
		heap.Push(&c.heap, d)
		c.byID[id] = d
	}
	c.mu.Unlock()
	c.poke()
}

// CancelDeadline removes a pending deadline. It reports whether a deadline
// was still pending; once it returns, the callback for that id will not fire.
func (c *Clock) CancelDeadline(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&c.heap, d.index)
	delete(c.byID, id)
	return true
}

// Pending returns the number of scheduled deadlines.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Run drives the scheduler until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		c.fireDue()

		c.mu.Lock()
		var wait time.Duration = time.Hour
		if len(c.heap) > 0 {
			wait = time.Until(c.heap[0].at)
		}
		c.mu.Unlock()

		if wait < 0 {
			wait = 0
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			slog.Info("clock stopped", "pending", c.Pending())
			return ctx.Err()
		case <-c.wake:
		case <-timer.C:
		}
	}
}

// fireDue pops every elapsed deadline and dispatches its callback.
func (c *Clock) fireDue() {
	now := time.Now()
	for {
		c.mu.Lock()
		if len(c.heap) == 0 || c.heap[0].at.After(now) {
			c.mu.Unlock()
			return
		}
		d := heap.Pop(&c.heap).(*deadline)
		delete(c.byID, d.id)
		c.mu.Unlock()

		go c.fire(d.id)
	}
}

func (c *Clock) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
