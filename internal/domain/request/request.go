// Package request defines the Request domain entity: the unit of work an
// agent delegates to a human.
package request

import (
	"time"

	"github.com/hxplabs/hxpd/internal/domain/receipt"
)

// Action fixes the shape of the payload and the legal result values.
type Action string

const (
	ActionDecide  Action = "DECIDE"
	ActionApprove Action = "APPROVE"
	ActionProvide Action = "PROVIDE"
)

// Role governs which human principals are eligible to act on a request.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleDelegate Role = "delegate"
	RolePool     Role = "pool"
)

// Priority affects how pending work is surfaced to humans. It is advisory
// metadata, never a scheduling constraint the engine enforces.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Fallback is the policy applied when the deadline elapses unresolved.
type Fallback string

const (
	FallbackPause   Fallback = "pause"
	FallbackFail    Fallback = "fail"
	FallbackDefault Fallback = "default"
)

// Status represents the current state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Payload carries the action-specific data of a request. Which fields are
// meaningful depends on the Action; Validate enforces the required ones.
type Payload struct {
	// DECIDE
	Question      string   `json:"question,omitempty"`
	Options       []string `json:"options,omitempty"`
	DefaultOption string   `json:"default_option,omitempty"`

	// APPROVE
	Item                 string         `json:"item,omitempty"`
	Details              map[string]any `json:"details,omitempty"`
	RejectRequiresReason bool           `json:"reject_requires_reason,omitempty"`

	// PROVIDE
	Prompt      string      `json:"prompt,omitempty"`
	InputType   string      `json:"input_type,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Validation  *Validation `json:"validation,omitempty"`

	// Shared
	Context string `json:"context,omitempty"`
}

// Validation holds optional constraints on a PROVIDE result.
type Validation struct {
	MinLength int    `json:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// Request represents a delegated decision, approval, or information request.
type Request struct {
	ID             string            `json:"id"`
	Action         Action            `json:"action"`
	Role           Role              `json:"role"`
	Priority       Priority          `json:"priority"`
	AgentID        string            `json:"agent_id"`
	ProjectID      string            `json:"project_id,omitempty"`
	Payload        Payload           `json:"payload"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Fallback       Fallback          `json:"fallback"`
	Status         Status            `json:"status"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	Receipt        *receipt.Receipt  `json:"receipt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new request.
type CreateRequest struct {
	Action         Action            `json:"action"`
	Role           Role              `json:"role"`
	Priority       Priority          `json:"priority"`
	AgentID        string            `json:"agent_id"`
	ProjectID      string            `json:"project_id,omitempty"`
	Payload        Payload           `json:"payload"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Fallback       Fallback          `json:"fallback"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ListFilter selects requests for list queries.
type ListFilter struct {
	ProjectID string
	AgentID   string
	Status    Status
}

// PriorityRank maps a priority to its sort weight; higher surfaces first.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}
