// Package directory defines the principal directory port backing the router.
// It is injected rather than process-wide state so tests can substitute a
// fixed directory.
package directory

import (
	"context"

	"github.com/hxplabs/hxpd/internal/domain/principal"
)

// Directory answers the routing registration queries. Implementations are
// pure reads over current registration state.
type Directory interface {
	// RegisterProject creates or replaces a project scope.
	RegisterProject(ctx context.Context, p principal.Project) error

	// GetProject returns a project scope; domain.ErrUnknownProject if the
	// id is not registered.
	GetProject(ctx context.Context, id string) (*principal.Project, error)

	// AddPrincipal registers a principal under a project scope.
	AddPrincipal(ctx context.Context, projectID string, pr principal.Principal) error

	// Principals returns every principal registered for a project, or the
	// globally registered principals when projectID is empty.
	Principals(ctx context.Context, projectID string) ([]principal.Principal, error)
}
