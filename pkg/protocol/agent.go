// Package protocol defines the capability interfaces the plan engine
// consumes from external collaborators.
package protocol

import "context"

// Agent runs a text prompt and returns text back. Implementations are
// expected to honor ctx cancellation; the engine never forcibly aborts an
// in-flight call.
type Agent interface {
	Name() string
	Call(ctx context.Context, prompt string) (string, error)
}

// AgentFactory creates agent instances from a configuration map.
type AgentFactory interface {
	ID() string
	Create(config map[string]any) (Agent, error)
}

// AgentFunc adapts a plain function into an Agent.
type AgentFunc struct {
	AgentName string
	Fn        func(ctx context.Context, prompt string) (string, error)
}

func (a AgentFunc) Name() string {
	return a.AgentName
}

func (a AgentFunc) Call(ctx context.Context, prompt string) (string, error) {
	return a.Fn(ctx, prompt)
}
