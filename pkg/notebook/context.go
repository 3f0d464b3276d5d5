package notebook

import (
	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/protocol"
	"github.com/planbook/planbook/pkg/registry"
	"github.com/planbook/planbook/pkg/state"
)

// ExecutionContext is the environment a single plan run executes in. It is
// built fresh per run and never persisted with the plan.
type ExecutionContext struct {
	// Agents and Tools available to task nodes, by name.
	Agents map[string]protocol.Agent
	Tools  map[string]protocol.Tool

	// DefaultAgent is consulted when a task names no agent of its own.
	DefaultAgent string

	// State is the shared key/value store visible to all nodes during the
	// run. The store implementations are safe for concurrent use; callers
	// composing nodes that read and write the same keys are responsible
	// for any ordering between them.
	State state.Store

	// Registry, when set, supplies tool input schemas for validation
	// before dispatch.
	Registry *registry.Registry

	Options models.ExecutionOptions
}

// NewExecutionContext returns a context with empty collaborator maps, an
// in-memory state store, and the given options.
func NewExecutionContext(options models.ExecutionOptions) *ExecutionContext {
	return &ExecutionContext{
		Agents:  make(map[string]protocol.Agent),
		Tools:   make(map[string]protocol.Tool),
		State:   state.NewMemoryStore(nil),
		Options: options,
	}
}

// WithAgent registers an agent under its own name. The first agent added
// becomes the default unless one was set explicitly.
func (ec *ExecutionContext) WithAgent(agent protocol.Agent) *ExecutionContext {
	ec.Agents[agent.Name()] = agent

	if ec.DefaultAgent == "" {
		ec.DefaultAgent = agent.Name()
	}

	return ec
}

// WithTool registers a tool under its own name.
func (ec *ExecutionContext) WithTool(tool protocol.Tool) *ExecutionContext {
	ec.Tools[tool.Name()] = tool

	return ec
}

// ResolveAgent returns the agent a task should use: its assigned agent when
// that resolves, the context default otherwise.
func (ec *ExecutionContext) ResolveAgent(assigned string) (protocol.Agent, bool) {
	if assigned != "" {
		if agent, ok := ec.Agents[assigned]; ok {
			return agent, true
		}
	}

	if ec.DefaultAgent != "" {
		if agent, ok := ec.Agents[ec.DefaultAgent]; ok {
			return agent, true
		}
	}

	return nil, false
}

// normalizedOptions applies option defaults for a run.
func (ec *ExecutionContext) normalizedOptions() models.ExecutionOptions {
	opts := ec.Options
	if opts.MaxParallelism <= 0 {
		opts.MaxParallelism = models.DefaultMaxParallelism
	}

	return opts
}
