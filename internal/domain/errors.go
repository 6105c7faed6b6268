// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a malformed request; it is surfaced to the caller
// and never retried by the engine.
var ErrValidation = errors.New("validation failed")

// ErrInvalidState indicates an illegal transition attempt out of a terminal
// state. The record is left unchanged.
var ErrInvalidState = errors.New("invalid state transition")

// ErrAlreadyResolved indicates a lost resolution race: another caller
// completed the request first. service.AlreadyResolvedError wraps this
// sentinel and carries the winning receipt.
var ErrAlreadyResolved = errors.New("request already resolved")

// ErrUnknownProject indicates routing against an unregistered project scope.
var ErrUnknownProject = errors.New("unknown project")
