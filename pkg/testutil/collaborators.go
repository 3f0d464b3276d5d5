package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/planbook/planbook/pkg/protocol"
)

// ScriptedAgent answers every prompt with a fixed reply, or the scripted
// error when one is set.
type ScriptedAgent struct {
	AgentName string
	Reply     string
	Err       error

	calls atomic.Int64
}

func (a *ScriptedAgent) Name() string {
	return a.AgentName
}

func (a *ScriptedAgent) Call(ctx context.Context, prompt string) (string, error) {
	a.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if a.Err != nil {
		return "", a.Err
	}

	return a.Reply, nil
}

// Calls reports how many times the agent was invoked.
func (a *ScriptedAgent) Calls() int {
	return int(a.calls.Load())
}

// FlakyAgent fails the first FailuresBeforeSuccess calls, then succeeds.
type FlakyAgent struct {
	AgentName             string
	Reply                 string
	FailuresBeforeSuccess int

	calls atomic.Int64
}

func (a *FlakyAgent) Name() string {
	return a.AgentName
}

func (a *FlakyAgent) Call(_ context.Context, _ string) (string, error) {
	attempt := int(a.calls.Add(1))

	if attempt <= a.FailuresBeforeSuccess {
		return "", errors.New("transient failure")
	}

	return a.Reply, nil
}

// Calls reports how many times the agent was invoked.
func (a *FlakyAgent) Calls() int {
	return int(a.calls.Load())
}

// BlockingAgent blocks until its context is cancelled or Release is called.
type BlockingAgent struct {
	AgentName string
	release   chan struct{}
	once      sync.Once
}

func NewBlockingAgent(name string) *BlockingAgent {
	return &BlockingAgent{
		AgentName: name,
		release:   make(chan struct{}),
	}
}

func (a *BlockingAgent) Name() string {
	return a.AgentName
}

func (a *BlockingAgent) Call(ctx context.Context, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-a.release:
		return "released", nil
	}
}

// Release unblocks every in-flight and future call.
func (a *BlockingAgent) Release() {
	a.once.Do(func() { close(a.release) })
}

// ScriptedTool reports a fixed ToolResult and records the inputs it saw.
type ScriptedTool struct {
	ToolName string
	Result   *protocol.ToolResult
	Err      error

	mu     sync.Mutex
	inputs []map[string]any
}

func (t *ScriptedTool) Name() string {
	return t.ToolName
}

func (t *ScriptedTool) Execute(_ context.Context, params map[string]any) (*protocol.ToolResult, error) {
	t.mu.Lock()
	t.inputs = append(t.inputs, params)
	t.mu.Unlock()

	if t.Err != nil {
		return nil, t.Err
	}

	if t.Result != nil {
		return t.Result, nil
	}

	return &protocol.ToolResult{Success: true, Output: "ok"}, nil
}

// Inputs returns a copy of every params map the tool received.
func (t *ScriptedTool) Inputs() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]map[string]any(nil), t.inputs...)
}
