// Package database defines the request store port (interface).
package database

import (
	"context"

	"github.com/hxplabs/hxpd/internal/domain/receipt"
	"github.com/hxplabs/hxpd/internal/domain/request"
)

// Store is the single source of truth for request state. Every mutation is
// atomic per request: implementations guarantee that the check-and-transition
// sequence for one request never interleaves with another mutation of the
// same request. Operations on different requests proceed in parallel.
type Store interface {
	// CreateRequest persists a validated request in pending state.
	CreateRequest(ctx context.Context, req *request.Request) error

	// GetRequest returns the current state, including the receipt once one
	// exists. Returns domain.ErrNotFound for unknown ids. The read path has
	// no side effects and tolerates arbitrarily many concurrent pollers.
	GetRequest(ctx context.Context, id string) (*request.Request, error)

	// ListRequests returns requests matching the filter, ordered by
	// priority rank descending then created_at ascending.
	ListRequests(ctx context.Context, filter request.ListFilter) ([]request.Request, error)

	// AssignRequest records an advisory claim: pending|assigned → assigned.
	// Re-claiming an assigned request replaces the claim so abandoned claims
	// never block other eligible principals.
	AssignRequest(ctx context.Context, id, principalID string) (*request.Request, error)

	// CompleteRequest atomically transitions pending|assigned → completed and
	// attaches the receipt. From completed it returns domain.ErrAlreadyResolved;
	// from any other terminal state, domain.ErrInvalidState. The returned
	// request reflects the stored state in all three cases, so a race loser
	// can read the winning receipt.
	CompleteRequest(ctx context.Context, id string, rc receipt.Receipt) (*request.Request, error)

	// TerminateRequest atomically transitions pending|assigned → expired or
	// failed with no receipt. Terminal states yield domain.ErrInvalidState
	// (domain.ErrAlreadyResolved when already completed).
	TerminateRequest(ctx context.Context, id string, to request.Status) (*request.Request, error)

	// CancelRequest transitions pending|assigned → cancelled.
	CancelRequest(ctx context.Context, id, by string) (*request.Request, error)
}
