package models

import "time"

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"     // Being authored, never executed
	PlanStatusRunning   PlanStatus = "running"   // A run is in flight
	PlanStatusCompleted PlanStatus = "completed" // Last run finished with every node completed
	PlanStatusFailed    PlanStatus = "failed"    // Last run left at least one node failed
	PlanStatusCancelled PlanStatus = "cancelled" // Last run was cancelled before finishing
)

// Plan is a named, addressable tree-plus-DAG of work items.
//
// Nodes live in a flat id-indexed table; the root node (always sequential)
// anchors the composition tree. Dependency edges are kept on the nodes
// themselves and may cross tree branches.
type Plan struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"        validate:"required,min=3"`
	Description string               `json:"description"`
	Status      PlanStatus           `json:"status"`
	RootID      string               `json:"root_id"`
	Nodes       map[string]*PlanNode `json:"nodes"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// FindNode returns the node with the given id, or nil when unknown.
func (p *Plan) FindNode(id string) *PlanNode {
	return p.Nodes[id]
}

// Root returns the plan's root node.
func (p *Plan) Root() *PlanNode {
	return p.Nodes[p.RootID]
}

// AllNodes flattens the plan into an id-to-node map. The map is a fresh
// copy; the nodes are shared.
func (p *Plan) AllNodes() map[string]*PlanNode {
	all := make(map[string]*PlanNode, len(p.Nodes))
	for id, node := range p.Nodes {
		all[id] = node
	}

	return all
}

// Descendants collects every node reachable from rootID through Children,
// excluding rootID itself.
func (p *Plan) Descendants(rootID string) map[string]*PlanNode {
	result := make(map[string]*PlanNode)

	queue := append([]string(nil), p.childrenOf(rootID)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node := p.Nodes[id]
		if node == nil {
			continue
		}

		if _, seen := result[id]; seen {
			continue
		}

		result[id] = node
		queue = append(queue, node.Children...)
	}

	return result
}

func (p *Plan) childrenOf(id string) []string {
	if node := p.Nodes[id]; node != nil {
		return node.Children
	}

	return nil
}

// IsSuccessful reports whether every node in the plan reached completed.
// The root container counts as completed once the run finishes.
func (p *Plan) IsSuccessful() bool {
	for id, node := range p.Nodes {
		if id == p.RootID {
			continue
		}

		if node.Status != NodeStatusCompleted {
			return false
		}
	}

	return true
}

// ResetForRun puts every node back to pending with a zeroed retry counter.
func (p *Plan) ResetForRun() {
	for _, node := range p.Nodes {
		node.Status = NodeStatusPending
		node.RetryCount = 0
		node.Output = nil
		node.Error = ""
		node.StartedAt = nil
		node.CompletedAt = nil
	}

	p.CompletedAt = nil
}

// ExecutionSummary derives the structured result of the most recent run.
func (p *Plan) ExecutionSummary() *ExecutionSummary {
	summary := &ExecutionSummary{
		PlanID:      p.ID,
		PlanName:    p.Name,
		Status:      p.Status,
		NodeResults: make(map[string]*NodeResult, len(p.Nodes)),
		CompletedAt: p.CompletedAt,
	}

	for id, node := range p.Nodes {
		if id == p.RootID {
			continue
		}

		summary.TotalNodes++

		switch node.Status {
		case NodeStatusCompleted:
			summary.CompletedNodes++
		case NodeStatusFailed:
			summary.FailedNodes++
		case NodeStatusCancelled:
			summary.CancelledNodes++
		}

		summary.NodeResults[id] = &NodeResult{
			NodeID:      id,
			NodeName:    node.Name,
			Status:      node.Status,
			Output:      node.Output,
			Error:       node.Error,
			Attempts:    node.RetryCount + 1,
			StartedAt:   node.StartedAt,
			CompletedAt: node.CompletedAt,
		}
	}

	return summary
}
