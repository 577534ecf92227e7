package service

import (
	"fmt"
	"strings"
)

// ValidationError carries field-level messages for malformed input.
// Nothing is mutated when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// NotFoundError identifies a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ForbiddenTransitionError is returned when the actor's role does not
// match the stage the request is currently waiting in.
type ForbiddenTransitionError struct {
	RequiredRole string
	ActorRole    string
	Status       string
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("request in status %s requires role %s, actor has %s",
		e.Status, e.RequiredRole, e.ActorRole)
}

// InvalidStateError is returned when an action is attempted on a
// request or delivery that is no longer in a state accepting it.
type InvalidStateError struct {
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in status %s", e.Action, e.Status)
}

// InsufficientStockError names the material and the shortfall.
type InsufficientStockError struct {
	MaterialID   string
	MaterialName string
	Requested    int
	Available    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.MaterialName, e.Requested, e.Available)
}

// DuplicateNameError is returned on a case-insensitive material name
// collision.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a material named %q already exists", e.Name)
}
