package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hxplabs/hxpd/internal/domain"
	"github.com/hxplabs/hxpd/internal/domain/principal"
)

// globalScope keys principals registered without a project.
const globalScope = ""

// Directory implements the principal directory port in memory.
type Directory struct {
	mu       sync.RWMutex
	projects map[string]principal.Project
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{projects: make(map[string]principal.Project)}
}

// RegisterProject creates or replaces a project scope.
func (d *Directory) RegisterProject(_ context.Context, p principal.Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	d.projects[p.ID] = p
	d.mu.Unlock()
	return nil
}

// GetProject returns a registered project scope.
func (d *Directory) GetProject(_ context.Context, id string) (*principal.Project, error) {
	d.mu.RLock()
	p, ok := d.projects[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrUnknownProject)
	}
	cp := p
	cp.Principals = append([]principal.Principal(nil), p.Principals...)
	return &cp, nil
}

// AddPrincipal registers a principal under a project scope. An empty
// projectID registers the principal globally.
func (d *Directory) AddPrincipal(_ context.Context, projectID string, pr principal.Principal) error {
	if pr.ID == "" {
		return fmt.Errorf("principal id is required")
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.projects[projectID]
	if !ok {
		if projectID != globalScope {
			return fmt.Errorf("project %s: %w", projectID, domain.ErrUnknownProject)
		}
		p = principal.Project{ID: globalScope, CreatedAt: time.Now().UTC()}
	}

	// Replace an existing registration with the same id.
	for i, existing := range p.Principals {
		if existing.ID == pr.ID {
			p.Principals[i] = pr
			d.projects[projectID] = p
			return nil
		}
	}
	p.Principals = append(p.Principals, pr)
	d.projects[projectID] = p
	return nil
}

// Principals returns the principals registered for a project, or the global
// registrations when projectID is empty.
func (d *Directory) Principals(_ context.Context, projectID string) ([]principal.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[projectID]
	if !ok {
		if projectID == globalScope {
			return nil, nil
		}
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrUnknownProject)
	}
	return append([]principal.Principal(nil), p.Principals...), nil
}
