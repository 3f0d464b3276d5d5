package protocol

import "context"

// ToolResult is the structured outcome of a tool invocation. A tool may
// report a domain-level failure through Success/Error without returning a Go
// error; the engine treats both the same way.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool executes a named operation with a parameter map.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]any) (*ToolResult, error)
}

// ToolFactory creates tool instances from a configuration map. Schema
// returns a JSON schema describing the parameters Execute accepts; the
// engine validates task inputs against it before dispatch.
type ToolFactory interface {
	ID() string
	Create(config map[string]any) (Tool, error)
	Schema() map[string]any
}
