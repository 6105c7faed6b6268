package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/hxplabs/hxpd/internal/domain"
	"github.com/hxplabs/hxpd/internal/domain/event"
	"github.com/hxplabs/hxpd/internal/domain/receipt"
	"github.com/hxplabs/hxpd/internal/domain/request"
	"github.com/hxplabs/hxpd/internal/port/database"
)

// Legal APPROVE results.
const (
	ResultApproved = "approved"
	ResultRejected = "rejected"
)

// AlreadyResolvedError is returned to the loser of a resolution race. It
// carries the winning receipt so the caller can reconcile.
type AlreadyResolvedError struct {
	Receipt receipt.Receipt
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("request %s already resolved by %s", e.Receipt.RequestID, e.Receipt.CompletedBy)
}

// Unwrap makes errors.Is(err, domain.ErrAlreadyResolved) hold.
func (e *AlreadyResolvedError) Unwrap() error { return domain.ErrAlreadyResolved }

// Resolver applies human decisions and fallback policies to requests. It is
// the sole writer of the completed state: both the HTTP resolve path and the
// clock's deadline callback funnel into the store's atomic completion claim,
// so at most one resolution ever succeeds.
type Resolver struct {
	store    database.Store
	clock    *Clock
	notifier *Notifier
	now      func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(store database.Store, clock *Clock, notifier *Notifier) *Resolver {
	return &Resolver{store: store, clock: clock, notifier: notifier, now: time.Now}
}

// Resolve validates the result against the request's action, generates the
// receipt, and claims the completion. Exactly one of any set of racing
// callers succeeds; the rest receive *AlreadyResolvedError with the winning
// receipt.
func (r *Resolver) Resolve(ctx context.Context, id, by, result, reason string) (*receipt.Receipt, error) {
	req, err := r.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == request.StatusCompleted && req.Receipt != nil {
		return nil, &AlreadyResolvedError{Receipt: *req.Receipt}
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("request %s is %s: %w", id, req.Status, domain.ErrInvalidState)
	}

	if err := ValidateResult(req, result, reason); err != nil {
		return nil, err
	}

	rc := receipt.Generate(req.ID, result, by, reason, req.CreatedAt, r.now().UTC())
	updated, err := r.store.CompleteRequest(ctx, id, rc)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) && updated != nil && updated.Receipt != nil {
			return nil, &AlreadyResolvedError{Receipt: *updated.Receipt}
		}
		return nil, err
	}

	// The claim succeeded; the pending deadline may never fire now.
	r.clock.CancelDeadline(id)
	r.notifier.Publish(ctx, eventFor(updated))

	slog.Info("request resolved",
		"request_id", id,
		"action", req.Action,
		"result", result,
		"by", by,
	)
	return updated.Receipt, nil
}

// HandleDeadline is the clock callback. It applies the request's fallback
// policy; a human resolution racing with the deadline is settled by the same
// store claim that Resolve uses.
func (r *Resolver) HandleDeadline(id string) {
	ctx := context.Background()

	req, err := r.store.GetRequest(ctx, id)
	if err != nil {
		slog.Warn("deadline fired for unknown request", "request_id", id, "error", err)
		return
	}
	if req.Status.Terminal() {
		return
	}

	if req.Fallback == request.FallbackDefault {
		if result, ok := fallbackResult(req); ok {
			rc := receipt.Generate(req.ID, result, receipt.CompletedBySystem, "", req.CreatedAt, r.now().UTC())
			updated, err := r.store.CompleteRequest(ctx, id, rc)
			if err != nil {
				if errors.Is(err, domain.ErrAlreadyResolved) {
					return // a human won the race
				}
				slog.Error("fallback completion failed", "request_id", id, "error", err)
				return
			}
			r.notifier.Publish(ctx, eventFor(updated))
			slog.Info("request completed by fallback default", "request_id", id, "result", result)
			return
		}
		// No usable default: approved is not assumed.
		r.terminate(ctx, id, request.StatusFailed)
		return
	}

	switch req.Fallback {
	case request.FallbackPause:
		r.terminate(ctx, id, request.StatusExpired)
	default: // FallbackFail
		r.terminate(ctx, id, request.StatusFailed)
	}
}

func (r *Resolver) terminate(ctx context.Context, id string, to request.Status) {
	updated, err := r.store.TerminateRequest(ctx, id, to)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrInvalidState) {
			return // resolved or cancelled in the race window
		}
		slog.Error("deadline termination failed", "request_id", id, "to", to, "error", err)
		return
	}
	r.notifier.Publish(ctx, eventFor(updated))
	slog.Info("request deadline elapsed", "request_id", id, "status", to)
}

// fallbackResult returns the synthesized result for fallback=default. Only
// DECIDE requests carry an explicit default; APPROVE and PROVIDE never
// default, so the policy degrades to fail.
func fallbackResult(req *request.Request) (string, bool) {
	if req.Action == request.ActionDecide && req.Payload.DefaultOption != "" {
		return req.Payload.DefaultOption, true
	}
	return "", false
}

// ValidateResult checks a proposed result against the request's action.
func ValidateResult(req *request.Request, result, reason string) error {
	switch req.Action {
	case request.ActionDecide:
		for _, o := range req.Payload.Options {
			if result == o {
				return nil
			}
		}
		return fmt.Errorf("%w: result must be one of the options", domain.ErrValidation)

	case request.ActionApprove:
		if result != ResultApproved && result != ResultRejected {
			return fmt.Errorf("%w: result must be %q or %q", domain.ErrValidation, ResultApproved, ResultRejected)
		}
		if result == ResultRejected && req.Payload.RejectRequiresReason && reason == "" {
			return fmt.Errorf("%w: rejection requires a reason", domain.ErrValidation)
		}
		return nil

	case request.ActionProvide:
		return validateProvided(req, result)
	}
	return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, req.Action)
}

func validateProvided(req *request.Request, result string) error {
	if result == "" {
		return fmt.Errorf("%w: provided value must be non-empty", domain.ErrValidation)
	}

	if v := req.Payload.Validation; v != nil {
		if v.MinLength > 0 && len(result) < v.MinLength {
			return fmt.Errorf("%w: value shorter than min_length %d", domain.ErrValidation, v.MinLength)
		}
		if v.MaxLength > 0 && len(result) > v.MaxLength {
			return fmt.Errorf("%w: value longer than max_length %d", domain.ErrValidation, v.MaxLength)
		}
		if v.Pattern != "" {
			re, err := regexp.Compile(v.Pattern)
			if err != nil {
				return fmt.Errorf("%w: invalid validation pattern: %v", domain.ErrValidation, err)
			}
			if !re.MatchString(result) {
				return fmt.Errorf("%w: value does not match pattern", domain.ErrValidation)
			}
		}
	}

	switch req.Payload.InputType {
	case "number":
		if _, err := strconv.ParseFloat(result, 64); err != nil {
			return fmt.Errorf("%w: value is not a number", domain.ErrValidation)
		}
	case "url":
		u, err := url.Parse(result)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: value is not a valid URL", domain.ErrValidation)
		}
	case "email":
		if _, err := mail.ParseAddress(result); err != nil {
			return fmt.Errorf("%w: value is not a valid email address", domain.ErrValidation)
		}
	}
	return nil
}

// eventFor builds the lifecycle event for a request's current state.
func eventFor(req *request.Request) event.RequestEvent {
	return event.RequestEvent{
		Type:      event.ForStatus(req.Status),
		RequestID: req.ID,
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		Role:      req.Role,
		Status:    req.Status,
		Timestamp: req.UpdatedAt,
	}
}
