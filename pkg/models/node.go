// Package models defines the core domain models for plan-based agent orchestration.
package models

import (
	"time"
)

// NodeType represents the kind of work a plan node performs.
type NodeType string

const (
	NodeTypeTask       NodeType = "task"       // Leaf work item executed by an agent or tool
	NodeTypeSubPlan    NodeType = "subplan"    // Nested plan scheduled over its own descendants
	NodeTypeSequential NodeType = "sequential" // Composite whose children run in declared order
	NodeTypeParallel   NodeType = "parallel"   // Composite whose children run concurrently
)

// NodeStatus defines the possible states of a plan node.
type NodeStatus string

const (
	NodeStatusPending    NodeStatus = "pending"
	NodeStatusInProgress NodeStatus = "in_progress"
	NodeStatusCompleted  NodeStatus = "completed"
	NodeStatusFailed     NodeStatus = "failed"
	NodeStatusCancelled  NodeStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state for a run.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusCancelled
}

// PlanNode represents a single work item inside a plan.
//
// Hierarchy (ParentID/Children) and ordering (Dependencies) are independent
// graphs over the same id space: a node may depend on a node that is not its
// sibling. Both are kept as id lists over the plan's flat node table rather
// than embedded references, so cross-references and cycle detection stay
// cheap.
type PlanNode struct {
	ID           string   `json:"id"           validate:"required"`
	Name         string   `json:"name"         validate:"required,min=1"`
	Description  string   `json:"description"`
	Type         NodeType `json:"type"         validate:"required,oneof=task subplan sequential parallel"`
	ParentID     string   `json:"parent_id,omitempty"`
	Children     []string `json:"children,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	// Execution parameters for task nodes.
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	Inputs        map[string]any `json:"inputs,omitempty"`

	Status     NodeStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsComposite reports whether the node executes its children itself rather
// than leaving them to the scheduling loop.
func (n *PlanNode) IsComposite() bool {
	return n.Type == NodeTypeSubPlan || n.Type == NodeTypeSequential || n.Type == NodeTypeParallel
}

// DependsOn reports whether the node already declares a dependency on id.
func (n *PlanNode) DependsOn(id string) bool {
	for _, dep := range n.Dependencies {
		if dep == id {
			return true
		}
	}

	return false
}

// RetriesLeft returns the remaining retry budget.
func (n *PlanNode) RetriesLeft() int {
	left := n.MaxRetries - n.RetryCount
	if left < 0 {
		return 0
	}

	return left
}
