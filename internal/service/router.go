package service

import (
	"context"
	"errors"

	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/domain/request"
	"github.com/hxplabs/hxpd/internal/port/directory"
)

// ErrNotEligible is returned when a principal tries to act on a request its
// role and project scope do not grant.
var ErrNotEligible = errors.New("principal not eligible for request")

// Router computes which human principals may act on a request. It is a pure
// query over the injected directory and has no side effects.
type Router struct {
	dir directory.Directory
}

// NewRouter creates a Router over the given directory.
func NewRouter(dir directory.Directory) *Router {
	return &Router{dir: dir}
}

// ValidateProject checks that a non-empty project scope is registered.
// Empty means global scope and always passes.
func (r *Router) ValidateProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return nil
	}
	_, err := r.dir.GetProject(ctx, projectID)
	return err
}

// Eligible returns the principals allowed to act on the request:
// owner → the project's designated owners, delegate → principals granted
// delegate rights, pool → everyone registered for the project. Requests
// without a project scope route against the global registrations.
func (r *Router) Eligible(ctx context.Context, req *request.Request) ([]principal.Principal, error) {
	return r.EligibleForRole(ctx, req.ProjectID, req.Role)
}

// EligibleForRole returns the principals a given role routes to within a
// project scope, without needing a concrete request.
func (r *Router) EligibleForRole(ctx context.Context, projectID string, role request.Role) ([]principal.Principal, error) {
	registered, err := r.dir.Principals(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var out []principal.Principal
	for _, pr := range registered {
		switch role {
		case request.RoleOwner:
			if pr.Owner {
				out = append(out, pr)
			}
		case request.RoleDelegate:
			if pr.Delegate {
				out = append(out, pr)
			}
		case request.RolePool:
			out = append(out, pr)
		}
	}
	return out, nil
}

// Authorize returns nil when the principal is in the request's eligible set.
func (r *Router) Authorize(ctx context.Context, req *request.Request, principalID string) error {
	eligible, err := r.Eligible(ctx, req)
	if err != nil {
		return err
	}
	for _, pr := range eligible {
		if pr.ID == principalID {
			return nil
		}
	}
	return ErrNotEligible
}
