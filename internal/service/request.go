package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hxplabs/hxpd/internal/domain/event"
	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/domain/request"
	"github.com/hxplabs/hxpd/internal/port/cache"
	"github.com/hxplabs/hxpd/internal/port/database"
)

// RequestService handles request lifecycle business logic: creation with
// validation and deadline scheduling, reads for pollers, advisory claims,
// and cancellation.
type RequestService struct {
	store    database.Store
	router   *Router
	resolver *Resolver
	clock    *Clock
	notifier *Notifier
	cache    cache.Cache // optional read cache for terminal requests
	cacheTTL time.Duration
	now      func() time.Time
}

// NewRequestService creates a RequestService. cache may be nil.
func NewRequestService(store database.Store, router *Router, resolver *Resolver,
	clock *Clock, notifier *Notifier, c cache.Cache, cacheTTL time.Duration) *RequestService {
	return &RequestService{
		store:    store,
		router:   router,
		resolver: resolver,
		clock:    clock,
		notifier: notifier,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Create validates the spec, persists a pending request, and schedules its
// deadline when timeout_seconds > 0.
func (s *RequestService) Create(ctx context.Context, spec request.CreateRequest) (*request.Request, error) {
	applyDefaults(&spec)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	// A request against an unregistered project would sit pending forever
	// with nobody eligible to resolve it. Reject it up front.
	if err := s.router.ValidateProject(ctx, spec.ProjectID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &request.Request{
		ID:             uuid.NewString(),
		Action:         spec.Action,
		Role:           spec.Role,
		Priority:       spec.Priority,
		AgentID:        spec.AgentID,
		ProjectID:      spec.ProjectID,
		Payload:        spec.Payload,
		TimeoutSeconds: spec.TimeoutSeconds,
		Fallback:       spec.Fallback,
		Status:         request.StatusPending,
		Metadata:       spec.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	if req.TimeoutSeconds > 0 {
		s.clock.Schedule(req.ID, now.Add(time.Duration(req.TimeoutSeconds)*time.Second))
	}

	s.notifier.Publish(ctx, event.RequestEvent{
		Type:      event.TypeRequestCreated,
		RequestID: req.ID,
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		Role:      req.Role,
		Status:    req.Status,
		Timestamp: now,
	})

	slog.Info("request created",
		"request_id", req.ID,
		"action", req.Action,
		"role", req.Role,
		"project_id", req.ProjectID,
		"timeout_seconds", req.TimeoutSeconds,
	)
	return req, nil
}

// Get returns the current state of a request. Terminal requests are served
// from the read cache when available: they can never change again, so the
// cache absorbs arbitrarily many concurrent pollers.
func (s *RequestService) Get(ctx context.Context, id string) (*request.Request, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, cacheKey(id)); err == nil && ok {
			var req request.Request
			if err := json.Unmarshal(data, &req); err == nil {
				return &req, nil
			}
		}
	}

	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && req.Status.Terminal() {
		if data, err := json.Marshal(req); err == nil {
			_ = s.cache.Set(ctx, cacheKey(id), data, s.cacheTTL)
		}
	}
	return req, nil
}

// List returns requests matching the filter, priority-ordered.
func (s *RequestService) List(ctx context.Context, filter request.ListFilter) ([]request.Request, error) {
	return s.store.ListRequests(ctx, filter)
}

// Claim records an advisory assignment for an eligible principal. It does
// not block other eligible principals from resolving the request.
func (s *RequestService) Claim(ctx context.Context, id, principalID string) (*request.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.router.Authorize(ctx, req, principalID); err != nil {
		return nil, err
	}

	updated, err := s.store.AssignRequest(ctx, id, principalID)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, eventFor(updated))
	return updated, nil
}

// Resolve applies a human decision after checking the principal's
// eligibility. The fallback sentinel bypasses routing.
func (s *RequestService) Resolve(ctx context.Context, id, principalID, result, reason string) (*request.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.router.Authorize(ctx, req, principalID); err != nil {
		return nil, err
	}

	if _, err := s.resolver.Resolve(ctx, id, principalID, result, reason); err != nil {
		return nil, err
	}
	return s.store.GetRequest(ctx, id)
}

// Cancel transitions a live request to cancelled and drops its deadline.
func (s *RequestService) Cancel(ctx context.Context, id, by string) (*request.Request, error) {
	updated, err := s.store.CancelRequest(ctx, id, by)
	if err != nil {
		return nil, err
	}
	s.clock.CancelDeadline(id)
	s.notifier.Publish(ctx, eventFor(updated))
	slog.Info("request cancelled", "request_id", id, "by", by)
	return updated, nil
}

// Eligible returns the principals allowed to act on a request.
func (s *RequestService) Eligible(ctx context.Context, id string) ([]principal.Principal, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.router.Eligible(ctx, req)
}

func applyDefaults(spec *request.CreateRequest) {
	if spec.Role == "" {
		spec.Role = request.RoleOwner
	}
	if spec.Priority == "" {
		spec.Priority = request.PriorityNormal
	}
	if spec.Fallback == "" {
		spec.Fallback = request.FallbackPause
	}
	if spec.Action == request.ActionProvide && spec.Payload.InputType == "" {
		spec.Payload.InputType = "text"
	}
}

func cacheKey(id string) string { return "request:" + id }
