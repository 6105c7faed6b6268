package service

import (
	"context"
	"errors"
	"testing"

	"github.com/hxplabs/hxpd/internal/adapter/memory"
	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/domain/request"
)

func seededRouter(t *testing.T) *Router {
	t.Helper()
	ctx := context.Background()
	dir := memory.NewDirectory()
	if err := dir.RegisterProject(ctx, principal.Project{ID: "p1", Name: "payments"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, pr := range []principal.Principal{
		{ID: "owner-1", Name: "Alice", Owner: true},
		{ID: "delegate-1", Name: "Bob", Delegate: true},
		{ID: "member-1", Name: "Carol"},
	} {
		if err := dir.AddPrincipal(ctx, "p1", pr); err != nil {
			t.Fatalf("add principal: %v", err)
		}
	}
	return NewRouter(dir)
}

func TestRouterEligibleByRole(t *testing.T) {
	r := seededRouter(t)
	ctx := context.Background()

	tests := []struct {
		role request.Role
		want []string
	}{
		{request.RoleOwner, []string{"owner-1"}},
		{request.RoleDelegate, []string{"delegate-1"}},
		{request.RolePool, []string{"owner-1", "delegate-1", "member-1"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got, err := r.EligibleForRole(ctx, "p1", tt.role)
			if err != nil {
				t.Fatalf("eligible: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d principals, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestRouterAuthorize(t *testing.T) {
	r := seededRouter(t)
	ctx := context.Background()

	req := &request.Request{ID: "r1", ProjectID: "p1", Role: request.RoleOwner}
	if err := r.Authorize(ctx, req, "owner-1"); err != nil {
		t.Errorf("owner should be authorized: %v", err)
	}
	if err := r.Authorize(ctx, req, "delegate-1"); !errors.Is(err, ErrNotEligible) {
		t.Errorf("delegate on owner request: expected ErrNotEligible, got %v", err)
	}
	if err := r.Authorize(ctx, req, "stranger"); !errors.Is(err, ErrNotEligible) {
		t.Errorf("stranger: expected ErrNotEligible, got %v", err)
	}

	req.Role = request.RolePool
	if err := r.Authorize(ctx, req, "member-1"); err != nil {
		t.Errorf("pool member should be authorized: %v", err)
	}
}

func TestRouterUnknownProject(t *testing.T) {
	r := seededRouter(t)
	req := &request.Request{ID: "r1", ProjectID: "ghost", Role: request.RolePool}
	if _, err := r.Eligible(context.Background(), req); err == nil {
		t.Error("expected error for unknown project")
	}
}
