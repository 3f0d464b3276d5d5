// Package notebook provides the plan registry, authoring API, and the
// dependency-scheduled execution engine.
package notebook

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Authoring errors. These are raised synchronously from the CRUD surface
// and always leave the plan unchanged.
var (
	ErrPlanNotFound       = errors.New("plan not found")
	ErrNodeNotFound       = errors.New("node not found in plan")
	ErrParentNotFound     = errors.New("parent node not found in plan")
	ErrDependencyNotFound = errors.New("dependency node not found in plan")
	ErrInvalidNodeType    = errors.New("invalid node type for this operation")
	ErrPlanRunning        = errors.New("plan is currently executing")
)

// IsValidationError checks if an error is an authoring validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrParentNotFound) ||
		errors.Is(err, ErrDependencyNotFound) ||
		errors.Is(err, ErrInvalidNodeType) ||
		errors.Is(err, ErrPlanRunning)
}

// UnsatisfiableDependencyError is the one fatal scheduling condition: some
// pending nodes have dependencies that can never be satisfied (a cycle, or
// an edge pointing at a node that does not exist). Unlike every other
// failure mode it propagates out of ExecutePlan as an error instead of
// being folded into the execution summary.
type UnsatisfiableDependencyError struct {
	PlanID  string
	NodeIDs []string
}

func (e *UnsatisfiableDependencyError) Error() string {
	ids := append([]string(nil), e.NodeIDs...)
	sort.Strings(ids)

	return fmt.Sprintf(
		"plan %s is stuck: dependencies can never be satisfied for nodes [%s]",
		e.PlanID, strings.Join(ids, ", "),
	)
}

// Cancellation and failure reasons surfaced through status notifications.
const (
	reasonRunCancelled   = "Plan execution was cancelled"
	reasonPreviousFailed = "Previous node failed"
	reasonDepUnsatisfied = "Dependency was not satisfied"
	reasonRetrying       = "Retrying after failure"
)
