// Package web provides HTTP request and response types for the plan API.
package web

// CreatePlanRequest represents the request body for creating a new plan.
type CreatePlanRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
}

// AddTaskRequest represents the request body for appending a task node.
// ParentID defaults to the plan's root node when omitted.
type AddTaskRequest struct {
	ParentID      string         `json:"parent_id,omitempty"`
	Name          string         `json:"name"                     validate:"required,min=1"`
	Description   string         `json:"description,omitempty"`
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	Inputs        map[string]any `json:"inputs,omitempty"`
	MaxRetries    int            `json:"max_retries"              validate:"min=0"`
}

// AddSubPlanRequest represents the request body for appending a subplan node.
type AddSubPlanRequest struct {
	ParentID    string `json:"parent_id,omitempty"`
	Name        string `json:"name"                  validate:"required,min=1"`
	Description string `json:"description,omitempty"`
}

// AddGroupRequest represents the request body for appending a sequential or
// parallel group node.
type AddGroupRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Type     string `json:"type"                validate:"required,oneof=sequential parallel"`
	Name     string `json:"name"                validate:"required,min=1"`
}

// AddDependencyRequest represents the request body for adding a dependency edge.
type AddDependencyRequest struct {
	NodeID      string `json:"node_id"       validate:"required"`
	DependsOnID string `json:"depends_on_id" validate:"required"`
}

// AgentConfig names an agent factory and its construction config for a run.
type AgentConfig struct {
	Type   string         `json:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// ExecutePlanRequest represents the request body for executing a plan.
type ExecutePlanRequest struct {
	MaxParallelism       int            `json:"max_parallelism"         validate:"min=0"`
	ContinueOnError      bool           `json:"continue_on_error"`
	DisableRetry         bool           `json:"disable_retry"`
	GlobalTimeoutSeconds int            `json:"global_timeout_seconds"  validate:"min=0"`
	DisableOutputSharing bool           `json:"disable_output_sharing"`
	Agents               []AgentConfig  `json:"agents,omitempty"        validate:"dive"`
	InitialState         map[string]any `json:"initial_state,omitempty"`
}
