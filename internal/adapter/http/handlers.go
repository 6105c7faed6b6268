package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/domain/request"
	"github.com/hxplabs/hxpd/internal/middleware"
	"github.com/hxplabs/hxpd/internal/port/directory"
	"github.com/hxplabs/hxpd/internal/service"
)

const (
	serverName    = "hxpd"
	serverVersion = "0.1.0"
)

// Handlers holds the services the HTTP layer dispatches to.
type Handlers struct {
	Requests  *service.RequestService
	Router    *service.Router
	Directory directory.Directory
}

// ServerInfo handles GET /hxp. Agent SDKs probe this before delegating.
func (h *Handlers) ServerInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    serverName,
		"version": serverVersion,
	})
}

// CreateRequest handles POST /hxp/v1/requests
func (h *Handlers) CreateRequest(w http.ResponseWriter, r *http.Request) {
	spec, ok := readJSON[request.CreateRequest](w, r)
	if !ok {
		return
	}

	// The authenticated agent identity wins over whatever the body claims.
	if agentID := middleware.AgentFromContext(r.Context()); agentID != "" {
		spec.AgentID = agentID
	}

	req, err := h.Requests.Create(r.Context(), spec)
	if err != nil {
		writeDomainError(w, err, "request creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": req.ID})
}

// GetRequest handles GET /hxp/v1/requests/{id}
func (h *Handlers) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, err := h.Requests.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRequests handles GET /hxp/v1/requests?project_id=&agent_id=&status=
func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := request.ListFilter{
		ProjectID: q.Get("project_id"),
		AgentID:   q.Get("agent_id"),
		Status:    request.Status(q.Get("status")),
	}

	reqs, err := h.Requests.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if reqs == nil {
		reqs = []request.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// ClaimRequest handles POST /hxp/v1/requests/{id}/claim
func (h *Handlers) ClaimRequest(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	body, ok := readJSON[struct {
		PrincipalID string `json:"principal_id"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.PrincipalID, "principal_id") {
		return
	}

	req, err := h.Requests.Claim(r.Context(), id, body.PrincipalID)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ResolveRequest handles POST /hxp/v1/requests/{id}/resolve
func (h *Handlers) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	body, ok := readJSON[struct {
		PrincipalID string `json:"principal_id"`
		Result      string `json:"result"`
		Reason      string `json:"reason"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.PrincipalID, "principal_id") {
		return
	}
	if !requireField(w, body.Result, "result") {
		return
	}

	req, err := h.Requests.Resolve(r.Context(), id, body.PrincipalID, body.Result, body.Reason)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// CancelRequest handles POST /hxp/v1/requests/{id}/cancel
func (h *Handlers) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	by := middleware.AgentFromContext(r.Context())
	if by == "" {
		by = "api"
	}

	req, err := h.Requests.Cancel(r.Context(), id, by)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// RequestEligible handles GET /hxp/v1/requests/{id}/eligible
func (h *Handlers) RequestEligible(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	principals, err := h.Requests.Eligible(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "request not found")
		return
	}
	if principals == nil {
		principals = []principal.Principal{}
	}
	writeJSON(w, http.StatusOK, principals)
}

// CreateProject handles POST /hxp/v1/projects
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.Name, "name") {
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	p := principal.Project{ID: body.ID, Name: body.Name, CreatedAt: time.Now().UTC()}
	if err := h.Directory.RegisterProject(r.Context(), p); err != nil {
		writeDomainError(w, err, "project registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /hxp/v1/projects/{id}
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	p, err := h.Directory.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddPrincipal handles POST /hxp/v1/projects/{id}/principals
func (h *Handlers) AddPrincipal(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "id")
	body, ok := readJSON[struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Owner    bool   `json:"owner"`
		Delegate bool   `json:"delegate"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.Name, "name") {
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	pr := principal.Principal{
		ID:        body.ID,
		Name:      body.Name,
		Owner:     body.Owner,
		Delegate:  body.Delegate,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Directory.AddPrincipal(r.Context(), projectID, pr); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// ProjectEligible handles GET /hxp/v1/projects/{id}/eligible?role=
func (h *Handlers) ProjectEligible(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "id")
	role := request.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = request.RolePool
	}
	switch role {
	case request.RoleOwner, request.RoleDelegate, request.RolePool:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	principals, err := h.Router.EligibleForRole(r.Context(), projectID, role)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if principals == nil {
		principals = []principal.Principal{}
	}
	writeJSON(w, http.StatusOK, principals)
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
