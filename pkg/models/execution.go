package models

import "time"

// DefaultMaxParallelism bounds simultaneously running nodes when the caller
// does not say otherwise.
const DefaultMaxParallelism = 5

// ExecutionOptions configure a single plan run.
type ExecutionOptions struct {
	// MaxParallelism caps the number of simultaneously in-progress nodes.
	MaxParallelism int `json:"max_parallelism" validate:"min=0"`

	// ContinueOnError keeps scheduling remaining nodes after a terminal
	// node failure instead of cancelling everything still pending.
	ContinueOnError bool `json:"continue_on_error"`

	// EnableRetry allows failed nodes with remaining retry budget to be
	// reset to pending and rescheduled.
	EnableRetry bool `json:"enable_retry"`

	// GlobalTimeout bounds the whole run. Zero means no timeout.
	GlobalTimeout time.Duration `json:"global_timeout"`

	// PropagateOutputs writes each completed node's output into the shared
	// state store under "outputs.<node id>".
	PropagateOutputs bool `json:"propagate_outputs"`
}

// DefaultExecutionOptions returns the option set used when a run is started
// without explicit options.
func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		MaxParallelism:   DefaultMaxParallelism,
		ContinueOnError:  false,
		EnableRetry:      true,
		PropagateOutputs: true,
	}
}

// NodeResult captures a single node's outcome within an execution summary.
type NodeResult struct {
	NodeID      string     `json:"node_id"`
	NodeName    string     `json:"node_name"`
	Status      NodeStatus `json:"status"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionSummary is the structured, non-throwing result of a plan run.
type ExecutionSummary struct {
	PlanID         string                 `json:"plan_id"`
	PlanName       string                 `json:"plan_name"`
	Status         PlanStatus             `json:"status"`
	NodeResults    map[string]*NodeResult `json:"node_results"`
	TotalNodes     int                    `json:"total_nodes"`
	CompletedNodes int                    `json:"completed_nodes"`
	FailedNodes    int                    `json:"failed_nodes"`
	CancelledNodes int                    `json:"cancelled_nodes"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Duration       time.Duration          `json:"duration"`
}
