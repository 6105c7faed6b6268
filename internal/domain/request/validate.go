package request

import (
	"fmt"
	"slices"

	"github.com/hxplabs/hxpd/internal/domain"
)

const (
	minDecideOptions = 2
	maxDecideOptions = 6
)

// InputTypes lists the values accepted for a PROVIDE payload's input_type.
var InputTypes = []string{"text", "number", "url", "email", "file", "selection"}

// Validate checks the creation invariants. A nil return means the spec can be
// persisted as a pending request.
func (c CreateRequest) Validate() error {
	switch c.Action {
	case ActionDecide, ActionApprove, ActionProvide:
	default:
		return fmt.Errorf("%w: action must be DECIDE, APPROVE, or PROVIDE", domain.ErrValidation)
	}

	switch c.Role {
	case RoleOwner, RoleDelegate, RolePool:
	default:
		return fmt.Errorf("%w: role must be owner, delegate, or pool", domain.ErrValidation)
	}

	switch c.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
	default:
		return fmt.Errorf("%w: priority must be low, normal, high, or critical", domain.ErrValidation)
	}

	switch c.Fallback {
	case FallbackPause, FallbackFail, FallbackDefault:
	default:
		return fmt.Errorf("%w: fallback must be pause, fail, or default", domain.ErrValidation)
	}

	if c.AgentID == "" {
		return fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout_seconds must be >= 0", domain.ErrValidation)
	}

	switch c.Action {
	case ActionDecide:
		return c.validateDecide()
	case ActionApprove:
		if c.Payload.Item == "" {
			return fmt.Errorf("%w: APPROVE payload requires item", domain.ErrValidation)
		}
	case ActionProvide:
		if c.Payload.Prompt == "" {
			return fmt.Errorf("%w: PROVIDE payload requires prompt", domain.ErrValidation)
		}
		if c.Payload.InputType != "" && !slices.Contains(InputTypes, c.Payload.InputType) {
			return fmt.Errorf("%w: unknown input_type %q", domain.ErrValidation, c.Payload.InputType)
		}
	}
	return nil
}

func (c CreateRequest) validateDecide() error {
	opts := c.Payload.Options
	if c.Payload.Question == "" {
		return fmt.Errorf("%w: DECIDE payload requires question", domain.ErrValidation)
	}
	if len(opts) < minDecideOptions || len(opts) > maxDecideOptions {
		return fmt.Errorf("%w: DECIDE requires %d-%d options, got %d",
			domain.ErrValidation, minDecideOptions, maxDecideOptions, len(opts))
	}
	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		if o == "" {
			return fmt.Errorf("%w: DECIDE options must be non-empty", domain.ErrValidation)
		}
		if seen[o] {
			return fmt.Errorf("%w: DECIDE options must be distinct, %q repeated", domain.ErrValidation, o)
		}
		seen[o] = true
	}
	if c.Fallback == FallbackDefault && c.Payload.DefaultOption == "" {
		return fmt.Errorf("%w: DECIDE with fallback=default requires default_option", domain.ErrValidation)
	}
	if c.Payload.DefaultOption != "" && !slices.Contains(opts, c.Payload.DefaultOption) {
		return fmt.Errorf("%w: default_option %q is not one of the options",
			domain.ErrValidation, c.Payload.DefaultOption)
	}
	return nil
}
