package notebook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/planbook/planbook/pkg/models"
	"github.com/planbook/planbook/pkg/otelhelper"
	"github.com/planbook/planbook/pkg/protocol"
	"github.com/planbook/planbook/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// executeNode runs one node and reports its outcome. It never mutates the
// scheduling loop's bookkeeping; composites mutate only their own interior
// nodes. Panics are converted into failed outcomes so a misbehaving tool
// cannot take the loop down.
func (n *Notebook) executeNode(ctx context.Context, plan *models.Plan, node *models.PlanNode, ec *ExecutionContext) (outcome nodeOutcome) {
	outcome.node = node

	defer func() {
		if r := recover(); r != nil {
			outcome = nodeOutcome{
				node:   node,
				errMsg: fmt.Sprintf("node execution panicked: %v", r),
			}
		}
	}()

	if ctx.Err() != nil {
		outcome.cancelled = true

		return outcome
	}

	ctx, span := otelhelper.StartSpan(ctx, n.tracer, "node.execute",
		attribute.String(otelhelper.PlanIDKey, plan.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeNameKey, node.Name),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.Int(otelhelper.AttemptKey, node.RetryCount+1),
	)
	defer span.End()

	switch node.Type {
	case models.NodeTypeTask:
		outcome = n.executeTask(ctx, node, ec)
	case models.NodeTypeSubPlan:
		outcome = n.executeSubPlan(ctx, plan, node, ec)
	case models.NodeTypeSequential:
		outcome = n.executeSequential(ctx, plan, node, ec)
	case models.NodeTypeParallel:
		outcome = n.executeParallel(ctx, plan, node, ec)
	default:
		outcome.errMsg = fmt.Sprintf("unknown node type: %s", node.Type)
	}

	outcome.node = node

	if !outcome.success && !outcome.cancelled && outcome.errMsg != "" {
		otelhelper.SetError(span, fmt.Errorf("%s", outcome.errMsg))
	}

	return outcome
}

// executeTask dispatches a leaf work item. A resolvable tool name wins;
// otherwise the task goes to its assigned agent or the context default.
func (n *Notebook) executeTask(ctx context.Context, node *models.PlanNode, ec *ExecutionContext) nodeOutcome {
	outcome := nodeOutcome{node: node}

	if node.ToolName != "" {
		if tool, ok := ec.Tools[node.ToolName]; ok {
			return n.invokeTool(ctx, node, ec, tool)
		}
	}

	agent, ok := ec.ResolveAgent(node.AssignedAgent)
	if !ok {
		outcome.errMsg = "No agent available"

		return outcome
	}

	prompt := node.Description
	if prompt == "" {
		prompt = node.Name
	}

	text, err := agent.Call(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			outcome.cancelled = true

			return outcome
		}

		outcome.errMsg = fmt.Sprintf("agent %s failed: %v", agent.Name(), err)

		return outcome
	}

	outcome.success = true
	outcome.output = text

	return outcome
}

// invokeTool renders the task's inputs against the shared state, validates
// them against the tool's declared schema, and executes the tool.
func (n *Notebook) invokeTool(ctx context.Context, node *models.PlanNode, ec *ExecutionContext, tool protocol.Tool) nodeOutcome {
	outcome := nodeOutcome{node: node}

	inputs, err := n.renderInputs(ctx, node, ec)
	if err != nil {
		outcome.errMsg = err.Error()

		return outcome
	}

	if ec.Registry != nil {
		if err := ec.Registry.ValidateToolInputs(node.ToolName, inputs); err != nil {
			outcome.errMsg = err.Error()

			return outcome
		}
	}

	result, err := tool.Execute(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			outcome.cancelled = true

			return outcome
		}

		outcome.errMsg = fmt.Sprintf("tool %s failed: %v", node.ToolName, err)

		return outcome
	}

	outcome.success = result.Success
	outcome.output = result.Output
	outcome.errMsg = result.Error

	if !result.Success && result.Error == "" {
		outcome.errMsg = fmt.Sprintf("tool %s reported failure", node.ToolName)
	}

	return outcome
}

func (n *Notebook) renderInputs(ctx context.Context, node *models.PlanNode, ec *ExecutionContext) (map[string]any, error) {
	if len(node.Inputs) == 0 {
		return node.Inputs, nil
	}

	data := map[string]any{}

	if ec.State != nil {
		snapshot, err := ec.State.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot shared state: %w", err)
		}

		data["state"] = snapshot
	}

	return template.RenderInputs(node.Inputs, data)
}

// executeSubPlan flattens the node's descendants into a nested node set and
// runs the scheduling loop over only that subset. A fatal scheduling error
// inside the nested run becomes the subplan node's failure rather than
// aborting the outer run.
func (n *Notebook) executeSubPlan(ctx context.Context, plan *models.Plan, node *models.PlanNode, ec *ExecutionContext) nodeOutcome {
	outcome := nodeOutcome{node: node}

	nested := n.schedulableSet(plan, node.ID)

	if err := n.runScheduler(ctx, plan, nested, ec, ec.normalizedOptions()); err != nil {
		outcome.errMsg = err.Error()

		return outcome
	}

	if ctx.Err() != nil {
		outcome.cancelled = true

		return outcome
	}

	for id, descendant := range plan.Descendants(node.ID) {
		if status := n.nodeStatus(descendant); status != models.NodeStatusCompleted {
			outcome.errMsg = fmt.Sprintf("subplan node %s ended %s", id, status)

			return outcome
		}
	}

	outcome.success = true
	outcome.output = node.Name

	return outcome
}

// executeSequential runs the children one at a time in declared order,
// stopping at the first terminal failure unless the run continues on
// error. Children skipped after an early stop are cancelled.
func (n *Notebook) executeSequential(ctx context.Context, plan *models.Plan, node *models.PlanNode, ec *ExecutionContext) nodeOutcome {
	outcome := nodeOutcome{node: node}
	opts := ec.normalizedOptions()

	failed := false

	for i, childID := range node.Children {
		child := plan.FindNode(childID)
		if child == nil {
			continue
		}

		if ctx.Err() != nil {
			n.cancelChildren(ctx, plan, node.Children[i:])
			outcome.cancelled = true

			return outcome
		}

		childOutcome := n.executeChild(ctx, plan, child, ec)

		if childOutcome.cancelled {
			n.cancelChildren(ctx, plan, node.Children[i:])
			outcome.cancelled = true

			return outcome
		}

		if !childOutcome.success {
			failed = true

			if !opts.ContinueOnError {
				n.cancelChildren(ctx, plan, node.Children[i+1:])
				outcome.errMsg = fmt.Sprintf("child %s failed: %s", child.Name, childOutcome.errMsg)

				return outcome
			}
		}
	}

	if failed {
		outcome.errMsg = "one or more children failed"

		return outcome
	}

	outcome.success = true
	outcome.output = node.Name

	return outcome
}

// executeParallel runs all children concurrently. The slot this composite
// occupies is the only cap it consumes from the global parallelism bound.
func (n *Notebook) executeParallel(ctx context.Context, plan *models.Plan, node *models.PlanNode, ec *ExecutionContext) nodeOutcome {
	outcome := nodeOutcome{node: node}

	children := make([]*models.PlanNode, 0, len(node.Children))

	for _, childID := range node.Children {
		if child := plan.FindNode(childID); child != nil {
			children = append(children, child)
		}
	}

	results := make([]nodeOutcome, len(children))

	var wg sync.WaitGroup

	for i, child := range children {
		wg.Add(1)

		go func(i int, child *models.PlanNode) {
			defer wg.Done()

			results[i] = n.executeChild(ctx, plan, child, ec)
		}(i, child)
	}

	wg.Wait()

	if ctx.Err() != nil {
		outcome.cancelled = true

		return outcome
	}

	for i, result := range results {
		if result.cancelled {
			outcome.cancelled = true

			return outcome
		}

		if !result.success {
			outcome.errMsg = fmt.Sprintf("child %s failed: %s", children[i].Name, result.errMsg)

			return outcome
		}
	}

	outcome.success = true
	outcome.output = node.Name

	return outcome
}

// executeChild runs a composite's interior node, applying the same retry
// policy the scheduling loop applies to the nodes it owns.
func (n *Notebook) executeChild(ctx context.Context, plan *models.Plan, child *models.PlanNode, ec *ExecutionContext) nodeOutcome {
	if outcome, proceed := n.awaitDependencies(ctx, plan, child); !proceed {
		return outcome
	}

	opts := ec.normalizedOptions()

	for {
		n.setNodeStatus(ctx, plan, child, models.NodeStatusInProgress, "")

		outcome := n.executeNode(ctx, plan, child, ec)

		switch {
		case outcome.cancelled:
			n.setNodeStatus(ctx, plan, child, models.NodeStatusCancelled, reasonRunCancelled)

			return outcome

		case outcome.success:
			child.Output = outcome.output
			child.Error = ""
			n.setNodeStatus(ctx, plan, child, models.NodeStatusCompleted, "")
			n.propagateOutput(ctx, ec, opts, child)

			return outcome

		case opts.EnableRetry && child.RetryCount < child.MaxRetries:
			child.RetryCount++
			child.Error = outcome.errMsg
			n.setNodeStatus(ctx, plan, child, models.NodeStatusPending, reasonRetrying)

		default:
			child.Error = outcome.errMsg
			n.setNodeStatus(ctx, plan, child, models.NodeStatusFailed, outcome.errMsg)

			return outcome
		}
	}
}

// awaitDependencies blocks a composite's interior node until every
// dependency completes. Dependencies may point at nodes owned by another
// container's loop, so the wait re-polls instead of assuming local
// bookkeeping. Returns proceed=false with the terminal outcome when the
// node cannot run: a missing dependency fails it, a failed or cancelled
// dependency cancels it, and run cancellation cancels it.
func (n *Notebook) awaitDependencies(ctx context.Context, plan *models.Plan, child *models.PlanNode) (nodeOutcome, bool) {
	if len(child.Dependencies) == 0 {
		return nodeOutcome{}, true
	}

	for {
		satisfied := true

		for _, depID := range child.Dependencies {
			dep := plan.FindNode(depID)
			if dep == nil {
				errMsg := fmt.Sprintf("dependency %s not found", depID)
				child.Error = errMsg
				n.setNodeStatus(ctx, plan, child, models.NodeStatusFailed, errMsg)

				return nodeOutcome{node: child, errMsg: errMsg}, false
			}

			switch n.nodeStatus(dep) {
			case models.NodeStatusFailed, models.NodeStatusCancelled:
				child.Error = reasonDepUnsatisfied
				n.setNodeStatus(ctx, plan, child, models.NodeStatusCancelled, reasonDepUnsatisfied)

				return nodeOutcome{node: child, errMsg: reasonDepUnsatisfied}, false

			case models.NodeStatusCompleted:

			default:
				satisfied = false
			}
		}

		if satisfied {
			return nodeOutcome{}, true
		}

		select {
		case <-ctx.Done():
			n.setNodeStatus(ctx, plan, child, models.NodeStatusCancelled, reasonRunCancelled)

			return nodeOutcome{node: child, cancelled: true}, false

		case <-time.After(dependencyPollInterval):
		}
	}
}

func (n *Notebook) cancelChildren(ctx context.Context, plan *models.Plan, childIDs []string) {
	for _, id := range childIDs {
		child := plan.FindNode(id)
		if child != nil && n.nodeStatus(child) == models.NodeStatusPending {
			n.setNodeStatus(ctx, plan, child, models.NodeStatusCancelled, reasonPreviousFailed)
		}
	}
}
