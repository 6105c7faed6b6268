package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hxplabs/hxpd/internal/adapter/memory"
	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/domain/receipt"
	"github.com/hxplabs/hxpd/internal/domain/request"
	"github.com/hxplabs/hxpd/internal/service"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	dir := memory.NewDirectory()
	if err := dir.RegisterProject(ctx, principal.Project{ID: "p1", Name: "payments"}); err != nil {
		t.Fatalf("register project: %v", err)
	}
	for _, pr := range []principal.Principal{
		{ID: "owner-1", Name: "Alice", Owner: true},
		{ID: "member-1", Name: "Carol"},
	} {
		if err := dir.AddPrincipal(ctx, "p1", pr); err != nil {
			t.Fatalf("add principal: %v", err)
		}
	}

	notifier := service.NewNotifier(nil, nil)
	var resolver *service.Resolver
	clock := service.NewClock(func(id string) { resolver.HandleDeadline(id) })
	resolver = service.NewResolver(store, clock, notifier)
	router := service.NewRouter(dir)
	svc := service.NewRequestService(store, router, resolver, clock, notifier, nil, time.Minute)

	r := chi.NewRouter()
	MountRoutes(r, &Handlers{Requests: svc, Router: router, Directory: dir})
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createApprove(t *testing.T, r chi.Router) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests", map[string]any{
		"action":     "APPROVE",
		"role":       "pool",
		"agent_id":   "agent-1",
		"project_id": "p1",
		"payload":    map[string]any{"item": "deploy v2"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]string](t, rec)["request_id"]
}

func TestServerInfo(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/hxp", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	info := decode[map[string]string](t, rec)
	if info["name"] != "hxpd" || info["version"] == "" {
		t.Errorf("unexpected identity: %v", info)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCreateRequestLifecycle(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodGet, "/hxp/v1/requests/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decode[request.Request](t, rec)
	if got.Status != request.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.Receipt != nil {
		t.Error("pending request must not carry a receipt")
	}
}

func TestCreateRequestValidation(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests", map[string]any{
		"action":   "DECIDE",
		"agent_id": "agent-1",
		"payload":  map[string]any{"question": "?", "options": []string{"only-one"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["message"] == "" {
		t.Error("validation error carries no message")
	}
}

func TestCreateRequestUnknownProject(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests", map[string]any{
		"action":     "APPROVE",
		"role":       "pool",
		"agent_id":   "agent-1",
		"project_id": "ghost",
		"payload":    map[string]any{"item": "deploy v2"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["message"] != "project not registered" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestResolveFlow(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/resolve", map[string]any{
		"principal_id": "owner-1",
		"result":       "approved",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[request.Request](t, rec)
	if got.Status != request.StatusCompleted || got.Receipt == nil {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.Receipt.CompletedBy != "owner-1" || got.Receipt.EvidenceHash == "" {
		t.Errorf("bad receipt: %+v", got.Receipt)
	}

	// The loser gets 409 plus the winning receipt.
	rec = doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/resolve", map[string]any{
		"principal_id": "member-1",
		"result":       "rejected",
		"reason":       "too late",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second resolve: status %d, want 409", rec.Code)
	}
	conflict := decode[struct {
		Message string           `json:"message"`
		Receipt *receipt.Receipt `json:"receipt"`
	}](t, rec)
	if conflict.Receipt == nil || conflict.Receipt.CompletedBy != "owner-1" {
		t.Errorf("conflict body lacks winning receipt: %+v", conflict)
	}
}

func TestResolveNotEligible(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests", map[string]any{
		"action":     "APPROVE",
		"role":       "owner",
		"agent_id":   "agent-1",
		"project_id": "p1",
		"payload":    map[string]any{"item": "rotate keys"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	id := decode[map[string]string](t, rec)["request_id"]

	rec = doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/resolve", map[string]any{
		"principal_id": "member-1",
		"result":       "approved",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status %d, want 403", rec.Code)
	}
}

func TestResolveInvalidResult(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/resolve", map[string]any{
		"principal_id": "owner-1",
		"result":       "maybe",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestClaimFlow(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/claim", map[string]any{
		"principal_id": "member-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[request.Request](t, rec)
	if got.Status != request.StatusAssigned || got.AssignedTo != "member-1" {
		t.Errorf("unexpected claim state: %+v", got)
	}

	rec = doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/claim", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("claim without principal_id: status %d, want 400", rec.Code)
	}
}

func TestCancelFlow(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", rec.Code)
	}
	got := decode[request.Request](t, rec)
	if got.Status != request.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	rec = doJSON(t, r, http.MethodPost, "/hxp/v1/requests/"+id+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel from terminal: status %d, want 409", rec.Code)
	}
}

func TestGetUnknownRequest(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/hxp/v1/requests/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestListRequests(t *testing.T) {
	r := newTestRouter(t)
	createApprove(t, r)
	createApprove(t, r)

	rec := doJSON(t, r, http.MethodGet, "/hxp/v1/requests?project_id=p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	got := decode[[]request.Request](t, rec)
	if len(got) != 2 {
		t.Errorf("got %d requests, want 2", len(got))
	}

	rec = doJSON(t, r, http.MethodGet, "/hxp/v1/requests?project_id=other", nil)
	got = decode[[]request.Request](t, rec)
	if len(got) != 0 {
		t.Errorf("foreign project filter leaked %d requests", len(got))
	}
}

func TestProjectAdmin(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/hxp/v1/projects", map[string]any{"name": "billing"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: status %d", rec.Code)
	}
	proj := decode[principal.Project](t, rec)
	if proj.ID == "" {
		t.Fatal("no project id generated")
	}

	rec = doJSON(t, r, http.MethodPost, "/hxp/v1/projects/"+proj.ID+"/principals", map[string]any{
		"name":  "Dana",
		"owner": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add principal: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/hxp/v1/projects/"+proj.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get project: status %d", rec.Code)
	}
	proj = decode[principal.Project](t, rec)
	if len(proj.Principals) != 1 || proj.Principals[0].Name != "Dana" {
		t.Errorf("unexpected principals: %+v", proj.Principals)
	}

	rec = doJSON(t, r, http.MethodGet, "/hxp/v1/projects/"+proj.ID+"/eligible?role=owner", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("eligible: status %d", rec.Code)
	}
	eligible := decode[[]principal.Principal](t, rec)
	if len(eligible) != 1 {
		t.Errorf("got %d eligible owners, want 1", len(eligible))
	}

	rec = doJSON(t, r, http.MethodGet, "/hxp/v1/projects/ghost/eligible?role=pool", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown project eligible: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/hxp/v1/projects/"+proj.ID+"/eligible?role=boss", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown role: status %d, want 400", rec.Code)
	}
}

func TestRequestEligibleEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := createApprove(t, r)

	rec := doJSON(t, r, http.MethodGet, "/hxp/v1/requests/"+id+"/eligible", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	eligible := decode[[]principal.Principal](t, rec)
	if len(eligible) != 2 {
		t.Errorf("pool request should route to 2 principals, got %d", len(eligible))
	}
}
