// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPlanNotFound indicates a plan was not found by the given identifier.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrPlanAlreadyExists indicates a plan with the same identifier already exists.
	ErrPlanAlreadyExists = errors.New("plan already exists")

	// ErrInvalidPlanStatus indicates an invalid plan status was provided.
	ErrInvalidPlanStatus = errors.New("invalid plan status")

	// ErrNodeNotFound indicates a node was not found by the given identifier.
	ErrNodeNotFound = errors.New("node not found")
)

// PlanError wraps plan-related errors with additional context.
type PlanError struct {
	Op      string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	PlanID  string // Plan ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *PlanError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for plan %s: %s (%v)", e.Op, e.PlanID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for plan %s: %v", e.Op, e.PlanID, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for plan errors.
func (e *PlanError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPlanError creates a new plan error with context.
func NewPlanError(op, planID string, err error) *PlanError {
	return &PlanError{
		Op:     op,
		PlanID: planID,
		Err:    err,
	}
}

// IsPlanNotFound checks if an error indicates a plan was not found.
func IsPlanNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound)
}

// IsNodeNotFound checks if an error indicates a node was not found.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
