// Package memory implements the request store port with in-process state.
// Each request record carries its own mutex, so transitions on one request
// never block operations on another.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hxplabs/hxpd/internal/domain"
	"github.com/hxplabs/hxpd/internal/domain/receipt"
	"github.com/hxplabs/hxpd/internal/domain/request"
)

// record pairs a request with its critical-section lock.
type record struct {
	mu  sync.Mutex
	req request.Request
}

// Store implements database.Store in memory.
type Store struct {
	mu      sync.RWMutex // guards the map only, never held across a record lock
	records map[string]*record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// CreateRequest persists a validated request in pending state.
func (s *Store) CreateRequest(_ context.Context, req *request.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	cp := cloneRequest(*req)
	s.records[req.ID] = &record{req: cp}
	return nil
}

// GetRequest returns a copy of the current state. Reads take the record lock
// briefly so a poller never observes a half-applied transition.
func (s *Store) GetRequest(_ context.Context, id string) (*request.Request, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	cp := cloneRequest(rec.req)
	rec.mu.Unlock()
	return &cp, nil
}

// ListRequests returns matching requests ordered by priority rank descending,
// then age (oldest first).
func (s *Store) ListRequests(_ context.Context, filter request.ListFilter) ([]request.Request, error) {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var out []request.Request
	for _, rec := range recs {
		rec.mu.Lock()
		req := cloneRequest(rec.req)
		rec.mu.Unlock()
		if filter.ProjectID != "" && req.ProjectID != filter.ProjectID {
			continue
		}
		if filter.AgentID != "" && req.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := request.PriorityRank(out[i].Priority), request.PriorityRank(out[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AssignRequest records an advisory claim.
func (s *Store) AssignRequest(_ context.Context, id, principalID string) (*request.Request, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := checkLive(&rec.req); err != nil {
		return nil, err
	}
	rec.req.Status = request.StatusAssigned
	rec.req.AssignedTo = principalID
	rec.req.UpdatedAt = time.Now().UTC()
	cp := cloneRequest(rec.req)
	return &cp, nil
}

// CompleteRequest atomically claims the resolution. Whichever caller acquires
// the record lock first while the request is still live wins; later callers
// get domain.ErrAlreadyResolved together with the stored winning state.
func (s *Store) CompleteRequest(_ context.Context, id string, rc receipt.Receipt) (*request.Request, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := checkLive(&rec.req); err != nil {
		cp := cloneRequest(rec.req)
		return &cp, err
	}
	rec.req.Status = request.StatusCompleted
	rec.req.Receipt = &rc
	rec.req.UpdatedAt = rc.CompletedAt
	cp := cloneRequest(rec.req)
	return &cp, nil
}

// TerminateRequest transitions a live request to expired or failed.
func (s *Store) TerminateRequest(_ context.Context, id string, to request.Status) (*request.Request, error) {
	if to != request.StatusExpired && to != request.StatusFailed {
		return nil, fmt.Errorf("terminate to %s: %w", to, domain.ErrInvalidState)
	}
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := checkLive(&rec.req); err != nil {
		cp := cloneRequest(rec.req)
		return &cp, err
	}
	rec.req.Status = to
	rec.req.UpdatedAt = time.Now().UTC()
	cp := cloneRequest(rec.req)
	return &cp, nil
}

// CancelRequest transitions a live request to cancelled.
func (s *Store) CancelRequest(_ context.Context, id, _ string) (*request.Request, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := checkLive(&rec.req); err != nil {
		cp := cloneRequest(rec.req)
		return &cp, err
	}
	rec.req.Status = request.StatusCancelled
	rec.req.UpdatedAt = time.Now().UTC()
	cp := cloneRequest(rec.req)
	return &cp, nil
}

// checkLive returns the error a transition out of the current state deserves.
// Must be called with the record lock held.
func checkLive(req *request.Request) error {
	switch {
	case req.Status == request.StatusCompleted:
		return fmt.Errorf("request %s: %w", req.ID, domain.ErrAlreadyResolved)
	case req.Status.Terminal():
		return fmt.Errorf("request %s is %s: %w", req.ID, req.Status, domain.ErrInvalidState)
	}
	return nil
}

// cloneRequest deep-copies the mutable members so callers never share state
// with the store.
func cloneRequest(req request.Request) request.Request {
	cp := req
	if req.Payload.Options != nil {
		cp.Payload.Options = append([]string(nil), req.Payload.Options...)
	}
	if req.Payload.Details != nil {
		details := make(map[string]any, len(req.Payload.Details))
		for k, v := range req.Payload.Details {
			details[k] = v
		}
		cp.Payload.Details = details
	}
	if req.Payload.Validation != nil {
		v := *req.Payload.Validation
		cp.Payload.Validation = &v
	}
	if req.Metadata != nil {
		meta := make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			meta[k] = v
		}
		cp.Metadata = meta
	}
	if req.Receipt != nil {
		rc := *req.Receipt
		cp.Receipt = &rc
	}
	return cp
}
