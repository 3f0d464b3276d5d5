// Package testutil provides test data builders and scripted collaborators
// for testing.
package testutil

import (
	"github.com/google/uuid"
	"github.com/planbook/planbook/pkg/models"
)

// CreateTestNode creates a task node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.PlanNode)) *models.PlanNode {
	node := &models.PlanNode{
		ID:     uuid.New().String(),
		Name:   "Test Node",
		Type:   models.NodeTypeTask,
		Status: models.NodeStatusPending,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithName sets the node name.
func WithName(name string) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.Name = name
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.Type = nodeType
	}
}

// WithTool assigns a tool and its rendered inputs.
func WithTool(toolName string, inputs map[string]any) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.ToolName = toolName
		n.Inputs = inputs
	}
}

// WithAgent assigns a named agent.
func WithAgent(agentName string) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.AssignedAgent = agentName
	}
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(maxRetries int) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.MaxRetries = maxRetries
	}
}

// WithDependencies sets the dependency edges.
func WithDependencies(ids ...string) func(*models.PlanNode) {
	return func(n *models.PlanNode) {
		n.Dependencies = ids
	}
}

// CreateTestPlan creates a plan with a sequential root node and the given
// nodes as root children.
func CreateTestPlan(name string, children ...*models.PlanNode) *models.Plan {
	rootID := uuid.New().String()

	root := &models.PlanNode{
		ID:     rootID,
		Name:   name,
		Type:   models.NodeTypeSequential,
		Status: models.NodeStatusPending,
	}

	plan := &models.Plan{
		ID:     uuid.New().String(),
		Name:   name,
		Status: models.PlanStatusDraft,
		RootID: rootID,
		Nodes:  map[string]*models.PlanNode{rootID: root},
	}

	for _, child := range children {
		child.ParentID = rootID
		root.Children = append(root.Children, child.ID)
		plan.Nodes[child.ID] = child
	}

	return plan
}
